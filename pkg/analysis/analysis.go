// Package analysis implements the job processor: fetch the subject's
// profile, derive a summary and persist it as a new snapshot.
package analysis

import (
	"context"
	"math"
	"time"

	"github.com/Abraxas-365/profilejobs/pkg/jobx"
	"github.com/Abraxas-365/profilejobs/pkg/logx"
	"github.com/Abraxas-365/profilejobs/pkg/profile"
	"github.com/Abraxas-365/profilejobs/pkg/snapshot"
)

// Processor implements jobx.Processor. It never retries; the queue owns
// retry decisions.
type Processor struct {
	fetcher profile.Fetcher
	store   snapshot.Store
	now     func() time.Time
}

var _ jobx.Processor = (*Processor)(nil)

func NewProcessor(fetcher profile.Fetcher, store snapshot.Store) *Processor {
	return &Processor{fetcher: fetcher, store: store, now: time.Now}
}

// Process returns the id of the stored snapshot. Errors from the fetcher
// and the store are returned as they are; the caller owns retry and
// logging.
func (p *Processor) Process(ctx context.Context, payload jobx.Payload) (string, error) {
	prof, err := p.fetcher.Fetch(ctx, payload.SubjectKey)
	if err != nil {
		return "", err
	}

	now := p.now()
	id, err := p.store.Save(ctx, snapshot.Snapshot{
		RequesterID: payload.RequesterID,
		SubjectKey:  payload.SubjectKey,
		Profile:     *prof,
		Summary:     Summarize(prof, now),
		CreatedAt:   now,
	})
	if err != nil {
		return "", err
	}

	logx.Component("analysis").WithFields(logx.Fields{
		"requester_id": payload.RequesterID,
		"subject_key":  payload.SubjectKey,
		"snapshot_id":  id,
	}).Debug("snapshot stored")
	return id, nil
}

// Summarize derives the summary figures of a profile as of now.
func Summarize(p *profile.Profile, now time.Time) snapshot.Summary {
	var s snapshot.Summary

	if !p.CreatedAt.IsZero() && now.After(p.CreatedAt) {
		age := now.Sub(p.CreatedAt)
		s.AccountAgeDays = int(age.Hours() / 24)
		if years := age.Hours() / (24 * 365); years >= 1.0/12 {
			s.ReposPerYear = round2(float64(p.PublicRepos) / years)
		}
	}

	// Zero following counts as one so the ratio stays finite.
	s.FollowerRatio = round2(float64(p.Followers) / math.Max(1, float64(p.Following)))

	fields := []string{p.Name, p.Company, p.Location, p.Bio}
	filled := 0
	for _, f := range fields {
		if f != "" {
			filled++
		}
	}
	s.Completeness = round2(float64(filled) / float64(len(fields)))
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
