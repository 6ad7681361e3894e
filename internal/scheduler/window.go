package scheduler

import (
	"sort"
	"time"

	"github.com/animus-labs/animus-ingest/internal/reader"
)

// Window is the slice of a listing handled by one execution unit: entries
// modified in [Start, End).
type Window struct {
	Start   time.Time
	End     time.Time
	Entries []reader.Entry
}

// Keys returns the pending-set keys of the window's entries.
func (w Window) Keys() []string {
	keys := make([]string, 0, len(w.Entries))
	for _, e := range w.Entries {
		keys = append(keys, e.Key)
	}
	return keys
}

// Latest is the modification time of the newest entry.
func (w Window) Latest() time.Time {
	var latest time.Time
	for _, e := range w.Entries {
		if e.ModTime.After(latest) {
			latest = e.ModTime
		}
	}
	return latest
}

// Windows groups entries into interval-aligned windows, oldest first. Empty
// windows are not returned.
func Windows(entries []reader.Entry, interval time.Duration) []Window {
	if len(entries) == 0 || interval <= 0 {
		return nil
	}
	sorted := append([]reader.Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].ModTime.Equal(sorted[j].ModTime) {
			return sorted[i].ModTime.Before(sorted[j].ModTime)
		}
		return sorted[i].Key < sorted[j].Key
	})

	var out []Window
	for _, e := range sorted {
		start := e.ModTime.UTC().Truncate(interval)
		if n := len(out); n > 0 && out[n-1].Start.Equal(start) {
			out[n-1].Entries = append(out[n-1].Entries, e)
			continue
		}
		out = append(out, Window{Start: start, End: start.Add(interval), Entries: []reader.Entry{e}})
	}
	return out
}
