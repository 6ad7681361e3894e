package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type UnitRunStatus string

const (
	UnitRunSucceeded UnitRunStatus = "succeeded"
	UnitRunFailed    UnitRunStatus = "failed"
	// UnitRunMismatch marks a unit whose workspace did not hold the number
	// of files its listing window promised.
	UnitRunMismatch UnitRunStatus = "count_mismatch"
	// UnitRunErrored marks a unit that could not run at all.
	UnitRunErrored UnitRunStatus = "errored"
)

// UnitRun is the ledger record of one execution unit.
type UnitRun struct {
	ID              string        `json:"id"`
	Collection      string        `json:"collection"`
	Label           string        `json:"label"`
	WindowStart     time.Time     `json:"window_start"`
	WindowEnd       time.Time     `json:"window_end"`
	EntryTime       time.Time     `json:"entry_time"`
	ExpectedEntries int           `json:"expected_entries"`
	Result          int           `json:"result"`
	Status          UnitRunStatus `json:"status"`
	Error           string        `json:"error,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      time.Time     `json:"finished_at"`
	IntegritySHA256 string        `json:"-"`
}

func (r UnitRun) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("unit run id is required")
	}
	if strings.TrimSpace(r.Collection) == "" {
		return errors.New("collection is required")
	}
	if strings.TrimSpace(r.Label) == "" {
		return errors.New("label is required")
	}
	switch r.Status {
	case UnitRunSucceeded, UnitRunFailed, UnitRunMismatch, UnitRunErrored:
	default:
		return fmt.Errorf("unsupported status %q", r.Status)
	}
	if r.WindowEnd.Before(r.WindowStart) {
		return errors.New("window end precedes window start")
	}
	if r.ExpectedEntries < 0 {
		return errors.New("expected entries must be >= 0")
	}
	return nil
}

// ComputeIntegritySHA256 hashes the JSON form of the record, excluding the hash
// itself. Times are normalized to UTC first so the hash does not depend on
// the zone they were recorded in.
func (r UnitRun) ComputeIntegritySHA256() (string, error) {
	r.IntegritySHA256 = ""
	r.WindowStart = r.WindowStart.UTC()
	r.WindowEnd = r.WindowEnd.UTC()
	r.EntryTime = r.EntryTime.UTC()
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	blob, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal integrity input: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}
