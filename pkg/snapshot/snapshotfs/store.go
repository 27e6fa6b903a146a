// Package snapshotfs stores snapshots as JSON documents on an fsx
// backend, one file per snapshot under <requester>/<subject>/.
package snapshotfs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Abraxas-365/profilejobs/pkg/fsx"
	"github.com/Abraxas-365/profilejobs/pkg/snapshot"
)

type Store struct {
	fs  fsx.FileSystem
	now func() time.Time
}

var _ snapshot.Store = (*Store)(nil)

func New(fs fsx.FileSystem) *Store {
	return &Store{fs: fs, now: time.Now}
}

func (s *Store) Save(ctx context.Context, snap snapshot.Snapshot) (string, error) {
	snap, err := snapshot.Prepare(snap, s.now())
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", snapshot.Wrap(snapshot.ErrEncode, err)
	}
	p := s.fs.Join(s.dir(snap.RequesterID, snap.SubjectKey), fileName(snap))
	if err := s.fs.WriteFile(ctx, p, data); err != nil {
		return "", snapshot.Wrap(snapshot.ErrSave, err).WithDetail("path", p)
	}
	return snap.ID, nil
}

func (s *Store) Latest(ctx context.Context, requesterID, subjectKey string) (*snapshot.Snapshot, error) {
	names, err := s.names(ctx, requesterID, subjectKey)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, snapshot.NotFound(requesterID, subjectKey)
	}
	return s.read(ctx, s.fs.Join(s.dir(requesterID, subjectKey), names[len(names)-1]))
}

func (s *Store) List(ctx context.Context, requesterID, subjectKey string) ([]*snapshot.Snapshot, error) {
	names, err := s.names(ctx, requesterID, subjectKey)
	if err != nil {
		return nil, err
	}
	dir := s.dir(requesterID, subjectKey)
	out := make([]*snapshot.Snapshot, 0, len(names))
	for _, name := range names {
		snap, err := s.read(ctx, s.fs.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// names lists snapshot files oldest first. File names start with a fixed
// width timestamp so lexical order is creation order.
func (s *Store) names(ctx context.Context, requesterID, subjectKey string) ([]string, error) {
	infos, err := s.fs.List(ctx, s.dir(requesterID, subjectKey))
	if err != nil {
		return nil, snapshot.Wrap(snapshot.ErrLoad, err)
	}
	var names []string
	for _, info := range infos {
		if !info.IsDir && strings.HasSuffix(info.Name, ".json") {
			names = append(names, info.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) read(ctx context.Context, p string) (*snapshot.Snapshot, error) {
	data, err := s.fs.ReadFile(ctx, p)
	if err != nil {
		return nil, snapshot.Wrap(snapshot.ErrLoad, err).WithDetail("path", p)
	}
	var snap snapshot.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, snapshot.Wrap(snapshot.ErrDecode, err).WithDetail("path", p)
	}
	return &snap, nil
}

func (s *Store) dir(requesterID, subjectKey string) string {
	return s.fs.Join(escape(requesterID), escape(subjectKey))
}

// escape makes a key safe as a single path segment.
func escape(key string) string {
	seg := url.PathEscape(strings.TrimSpace(key))
	if strings.Trim(seg, ".") == "" {
		return strings.ReplaceAll(seg, ".", "%2E")
	}
	return seg
}

func fileName(snap snapshot.Snapshot) string {
	return fmt.Sprintf("%020d-%s.json", snap.CreatedAt.UnixNano(), snap.ID)
}
