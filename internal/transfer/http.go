package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
)

// HTTP downloads URL sources with the client from the clients bundle.
type HTTP struct {
	Client *http.Client
	Logger *slog.Logger
}

func (h HTTP) Get(ctx context.Context, source, dest string) error {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", source, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: unexpected status %s", source, resp.Status)
	}
	n, err := writeFile(dest, resp.Body)
	if err != nil {
		return fmt.Errorf("get %s: %w", source, err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return fmt.Errorf("get %s: short body %d of %d bytes", source, n, resp.ContentLength)
	}
	if h.Logger != nil {
		h.Logger.Debug("downloaded", "source", source, "dest", dest, "bytes", n)
	}
	return nil
}
