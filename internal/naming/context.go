package naming

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
)

var ErrNotTracked = errors.New("key not tracked")

// Expander turns one raw listing entry (a file, a directory, a bundle) into
// zero or more strategies. The same entry must always expand to the same set.
type Expander interface {
	Expand(ctx context.Context, coll *Collection, entry string) ([]*Strategy, error)
}

type ExpanderFunc func(ctx context.Context, coll *Collection, entry string) ([]*Strategy, error)

func (f ExpanderFunc) Expand(ctx context.Context, coll *Collection, entry string) ([]*Strategy, error) {
	return f(ctx, coll, entry)
}

// Context is the keyed set of strategies for one listing. It is safe for
// concurrent use.
type Context struct {
	coll     *Collection
	expander Expander
	logger   *slog.Logger

	mu         sync.RWMutex
	strategies map[string]*Strategy
}

func NewContext(coll *Collection, expander Expander, logger *slog.Logger) (*Context, error) {
	if coll == nil {
		return nil, errors.New("collection is required")
	}
	if expander == nil {
		expander = FileExpander{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{
		coll:       coll,
		expander:   expander,
		logger:     logger.With("component", "NamingContext"),
		strategies: map[string]*Strategy{},
	}, nil
}

func (c *Context) Collection() *Collection { return c.coll }

// Expand expands entry and tracks every valid result under its key. Names
// that do not match the collection pattern are skipped. It returns the keys
// added, sorted.
func (c *Context) Expand(ctx context.Context, entry string) ([]string, error) {
	strategies, err := c.expander.Expand(ctx, c.coll, entry)
	if err != nil {
		return nil, fmt.Errorf("expand %s: %w", entry, err)
	}
	keys := make([]string, 0, len(strategies))
	for _, s := range strategies {
		if !s.IsValid() {
			c.logger.Warn("file name does not match collection pattern", "file_name", s.FileName(), "entry", entry)
			continue
		}
		c.Add(s)
		keys = append(keys, s.Key())
	}
	sort.Strings(keys)
	return keys, nil
}

// Add tracks s, replacing any strategy with the same key.
func (c *Context) Add(s *Strategy) {
	c.mu.Lock()
	c.strategies[s.Key()] = s
	c.mu.Unlock()
	c.logger.Debug("tracking storage name", "key", s.Key(), "strategy", s.String())
}

// Unset removes exactly the given keys. An unknown or repeated key means the caller's
// bookkeeping has drifted from the context: nothing is removed and the error
// wraps ErrNotTracked.
func (c *Context) Unset(keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			return fmt.Errorf("unset %s: duplicate key: %w", key, ErrNotTracked)
		}
		seen[key] = struct{}{}
		if _, ok := c.strategies[key]; !ok {
			return fmt.Errorf("unset %s: %w", key, ErrNotTracked)
		}
	}
	for _, key := range keys {
		delete(c.strategies, key)
		c.logger.Debug("removing from list of storage names", "key", key)
	}
	return nil
}

func (c *Context) Get(key string) (*Strategy, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.strategies[key]
	return s, ok
}

func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.strategies)
}

// Keys returns the tracked keys in sorted order.
func (c *Context) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, len(c.strategies))
	for k := range c.strategies {
		keys = append(keys, k)
	}
	c.mu.RUnlock()
	slices.Sort(keys)
	return keys
}

// Snapshot returns a copy of the key to strategy mapping. The strategies
// themselves are shared.
func (c *Context) Snapshot() map[string]*Strategy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*Strategy, len(c.strategies))
	for k, v := range c.strategies {
		out[k] = v
	}
	return out
}
