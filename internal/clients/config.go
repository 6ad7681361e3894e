package clients

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/animus-labs/animus-ingest/internal/platform/env"
)

// AuthMode selects how outbound HTTP requests to data sources authenticate.
type AuthMode string

const (
	AuthNone              AuthMode = "none"
	AuthClientCredentials AuthMode = "client_credentials"
	AuthBearer            AuthMode = "bearer"
)

type Config struct {
	Auth AuthMode

	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string

	// BearerToken is a pre-issued token, used with AuthBearer.
	BearerToken string

	Timeout time.Duration
}

func ConfigFromEnv() (Config, error) {
	modeRaw := strings.ToLower(strings.TrimSpace(env.String("INGEST_HTTP_AUTH", string(AuthNone))))
	var mode AuthMode
	switch modeRaw {
	case string(AuthNone), "":
		mode = AuthNone
	case string(AuthClientCredentials):
		mode = AuthClientCredentials
	case string(AuthBearer):
		mode = AuthBearer
	default:
		return Config{}, fmt.Errorf("INGEST_HTTP_AUTH must be one of: none, client_credentials, bearer (got %q)", modeRaw)
	}
	timeout, err := env.Duration("INGEST_HTTP_TIMEOUT", 10*time.Minute)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Auth:         mode,
		TokenURL:     strings.TrimSpace(env.String("INGEST_HTTP_TOKEN_URL", "")),
		ClientID:     strings.TrimSpace(env.String("INGEST_HTTP_CLIENT_ID", "")),
		ClientSecret: env.String("INGEST_HTTP_CLIENT_SECRET", ""),
		Scopes:       env.Strings("INGEST_HTTP_SCOPES", nil),
		BearerToken:  env.String("INGEST_HTTP_BEARER_TOKEN", ""),
		Timeout:      timeout,
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return errors.New("INGEST_HTTP_TIMEOUT must be positive")
	}
	switch c.Auth {
	case AuthNone, "":
		return nil
	case AuthClientCredentials:
		if c.TokenURL == "" {
			return errors.New("INGEST_HTTP_TOKEN_URL is required for client_credentials")
		}
		if c.ClientID == "" {
			return errors.New("INGEST_HTTP_CLIENT_ID is required for client_credentials")
		}
		return nil
	case AuthBearer:
		if strings.TrimSpace(c.BearerToken) == "" {
			return errors.New("INGEST_HTTP_BEARER_TOKEN is required for bearer")
		}
		return nil
	default:
		return fmt.Errorf("unsupported auth mode %q", c.Auth)
	}
}
