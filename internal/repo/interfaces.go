package repo

import (
	"context"
	"errors"
	"time"

	"github.com/animus-labs/animus-ingest/internal/domain"
)

var ErrNotFound = errors.New("not found")

type UnitRunFilter struct {
	Collection string
	Status     domain.UnitRunStatus
	// Since keeps runs whose window ends after it.
	Since time.Time
	Limit int
}

type UnitRunRepository interface {
	Insert(ctx context.Context, run domain.UnitRun) error
	Get(ctx context.Context, id string) (domain.UnitRun, error)
	List(ctx context.Context, filter UnitRunFilter) ([]domain.UnitRun, error)
}
