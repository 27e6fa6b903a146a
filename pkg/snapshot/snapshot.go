// Package snapshot persists the result of analysing a profile. Snapshots
// are append-only: every analysis run stores a new record.
package snapshot

import (
	"context"
	"strings"
	"time"

	"github.com/Abraxas-365/profilejobs/pkg/profile"
	"github.com/google/uuid"
)

// Snapshot is one analysis of a subject on behalf of a requester.
type Snapshot struct {
	ID          string          `json:"id"`
	RequesterID string          `json:"requester_id"`
	SubjectKey  string          `json:"subject_key"`
	Profile     profile.Profile `json:"profile"`
	Summary     Summary         `json:"summary"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Summary holds the figures derived from a profile.
type Summary struct {
	AccountAgeDays int     `json:"account_age_days"`
	FollowerRatio  float64 `json:"follower_ratio"`
	ReposPerYear   float64 `json:"repos_per_year"`
	Completeness   float64 `json:"completeness"`
}

// Store saves and reads snapshots.
type Store interface {
	// Save stores s and returns its id. A missing ID or CreatedAt is filled
	// in by the store.
	Save(ctx context.Context, s Snapshot) (string, error)
	// Latest returns the newest snapshot for the pair, or ErrNotFound.
	Latest(ctx context.Context, requesterID, subjectKey string) (*Snapshot, error)
	// List returns every snapshot for the pair, oldest first.
	List(ctx context.Context, requesterID, subjectKey string) ([]*Snapshot, error)
}

// Prepare validates s and assigns an id and timestamp where missing.
// Stores call it before writing.
func Prepare(s Snapshot, now time.Time) (Snapshot, error) {
	s.RequesterID = strings.TrimSpace(s.RequesterID)
	s.SubjectKey = strings.TrimSpace(s.SubjectKey)
	if s.RequesterID == "" {
		return s, invalid("requester_id")
	}
	if s.SubjectKey == "" {
		return s, invalid("subject_key")
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	} else if _, err := uuid.Parse(s.ID); err != nil {
		return s, invalid("id")
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}
