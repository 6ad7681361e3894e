package pipeline

import (
	"context"
	"fmt"

	"github.com/animus-labs/animus-ingest/internal/fits"
	"github.com/animus-labs/animus-ingest/internal/naming"
)

// Visitor acts on one named file, for example to build or update a record
// of the observation it belongs to.
type Visitor interface {
	Visit(ctx context.Context, s *naming.Strategy) error
}

type VisitorFunc func(ctx context.Context, s *naming.Strategy) error

func (f VisitorFunc) Visit(ctx context.Context, s *naming.Strategy) error { return f(ctx, s) }

// Chooser decides whether an entry needs work at all. A nil Chooser selects
// every entry.
type Chooser interface {
	Choose(ctx context.Context, s *naming.Strategy) (bool, string)
}

// RequireHeaders fails FITS files whose metadata is not a non-empty header
// list. Other files pass.
var RequireHeaders = VisitorFunc(func(_ context.Context, s *naming.Strategy) error {
	if !naming.IsFITS(s.FileName()) {
		return nil
	}
	headers, ok := s.Metadata().([]fits.Header)
	if !ok || len(headers) == 0 {
		return fmt.Errorf("%s: no FITS headers", s.FileName())
	}
	return nil
})
