// Package profile fetches public profile data from the external source
// that analyses are built from.
package profile

import (
	"context"
	"encoding/json"
	"time"
)

// Profile is the subset of the external profile an analysis keeps, plus
// the raw document.
type Profile struct {
	Login       string          `json:"login"`
	Name        string          `json:"name,omitempty"`
	Company     string          `json:"company,omitempty"`
	Location    string          `json:"location,omitempty"`
	Bio         string          `json:"bio,omitempty"`
	PublicRepos int             `json:"public_repos"`
	Followers   int             `json:"followers"`
	Following   int             `json:"following"`
	CreatedAt   time.Time       `json:"created_at"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// Fetcher loads a profile by subject key.
type Fetcher interface {
	Fetch(ctx context.Context, subjectKey string) (*Profile, error)
}
