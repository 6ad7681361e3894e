// Package clients bundles the handles a unit passes, untouched, to its run
// pipeline: the archive store and an HTTP client for URL data sources.
package clients

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/animus-labs/animus-ingest/internal/storage/objectstore"
)

type Bundle struct {
	Store         objectstore.Store
	Bucket        string
	PreviewBucket string
	HTTP          *http.Client
}

// New builds the bundle. base, when non-nil, supplies the transport under
// any authentication layer.
func New(ctx context.Context, cfg Config, store objectstore.Store, bucket, previewBucket string, base *http.Client) (*Bundle, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	if bucket == "" {
		return nil, errors.New("archive bucket is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if previewBucket == "" {
		previewBucket = bucket
	}
	httpClient, err := newHTTPClient(ctx, cfg, base)
	if err != nil {
		return nil, err
	}
	return &Bundle{
		Store:         store,
		Bucket:        bucket,
		PreviewBucket: previewBucket,
		HTTP:          httpClient,
	}, nil
}

func newHTTPClient(ctx context.Context, cfg Config, base *http.Client) (*http.Client, error) {
	if base == nil {
		base = &http.Client{}
	}
	// oauth2 picks up the base client from the context for token requests
	// and as the transport underneath the token source.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	var client *http.Client
	switch cfg.Auth {
	case AuthClientCredentials:
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		client = cc.Client(ctx)
	case AuthBearer:
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.BearerToken, TokenType: "Bearer"}))
	default:
		c := *base
		client = &c
	}
	client.Timeout = cfg.Timeout
	return client, nil
}
