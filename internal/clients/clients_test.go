package clients

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/animus-labs/animus-ingest/internal/storage/objectstore"
)

type nopStore struct{ objectstore.Store }

func TestConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("INGEST_HTTP_AUTH", "")
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.Auth != AuthNone || cfg.Timeout != 10*time.Minute {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestConfigFromEnvRejectsUnknownMode(t *testing.T) {
	t.Setenv("INGEST_HTTP_AUTH", "kerberos")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"none", Config{Auth: AuthNone, Timeout: time.Second}, true},
		{"cc missing token url", Config{Auth: AuthClientCredentials, ClientID: "id", Timeout: time.Second}, false},
		{"cc missing client id", Config{Auth: AuthClientCredentials, TokenURL: "http://x", Timeout: time.Second}, false},
		{"cc", Config{Auth: AuthClientCredentials, TokenURL: "http://x", ClientID: "id", Timeout: time.Second}, true},
		{"bearer missing token", Config{Auth: AuthBearer, Timeout: time.Second}, false},
		{"zero timeout", Config{Auth: AuthNone}, false},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestNewRequiresStoreAndBucket(t *testing.T) {
	cfg := Config{Auth: AuthNone, Timeout: time.Second}
	if _, err := New(context.Background(), cfg, nil, "archive", "", nil); err == nil {
		t.Fatalf("expected error without store")
	}
	if _, err := New(context.Background(), cfg, nopStore{}, "", "", nil); err == nil {
		t.Fatalf("expected error without bucket")
	}
	b, err := New(context.Background(), cfg, nopStore{}, "archive", "", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if b.PreviewBucket != "archive" || b.HTTP == nil || b.HTTP.Timeout != time.Second {
		t.Fatalf("bundle=%+v", b)
	}
}

func TestClientCredentialsAttachesToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`)
	})
	var gotAuth string
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, "ok")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := Config{
		Auth:         AuthClientCredentials,
		TokenURL:     srv.URL + "/token",
		ClientID:     "ingest",
		ClientSecret: "secret",
		Timeout:      5 * time.Second,
	}
	b, err := New(context.Background(), cfg, nopStore{}, "archive", "previews", srv.Client())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := b.HTTP.Get(srv.URL + "/data")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if gotAuth != "Bearer tok-1" {
		t.Fatalf("Authorization=%q", gotAuth)
	}
}
