package snapshotfs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Abraxas-365/profilejobs/pkg/fsx/fsxlocal"
	"github.com/Abraxas-365/profilejobs/pkg/profile"
	"github.com/Abraxas-365/profilejobs/pkg/snapshot"
	"github.com/Abraxas-365/profilejobs/pkg/snapshot/snapshotfs"
)

func newStore(t *testing.T) *snapshotfs.Store {
	t.Helper()
	lfs, err := fsxlocal.NewLocalFileSystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFileSystem: %v", err)
	}
	return snapshotfs.New(lfs)
}

func TestSaveAppendsAndOrders(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	var ids []string
	for i, followers := range []int{10, 20, 30} {
		id, err := store.Save(ctx, snapshot.Snapshot{
			RequesterID: "alice",
			SubjectKey:  "octocat",
			Profile:     profile.Profile{Login: "octocat", Followers: followers},
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		ids = append(ids, id)
	}
	if ids[0] == ids[1] || ids[1] == ids[2] {
		t.Fatalf("ids not unique: %v", ids)
	}

	list, err := store.List(ctx, "alice", "octocat")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 || list[0].ID != ids[0] || list[2].ID != ids[2] {
		t.Fatalf("list order wrong: %+v", list)
	}

	latest, err := store.Latest(ctx, "alice", "octocat")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.ID != ids[2] || latest.Profile.Followers != 30 {
		t.Fatalf("latest = %+v", latest)
	}
}

func TestLatestNotFound(t *testing.T) {
	_, err := newStore(t).Latest(context.Background(), "alice", "ghost")
	if !errors.Is(err, snapshot.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestKeysAreEscaped(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	if _, err := store.Save(ctx, snapshot.Snapshot{RequesterID: "team/a", SubjectKey: "..", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	list, err := store.List(ctx, "team/a", "..")
	if err != nil || len(list) != 1 {
		t.Fatalf("List = %v, %v", list, err)
	}
	other, err := store.List(ctx, "team", "a")
	if err != nil || len(other) != 0 {
		t.Fatalf("escaped pair leaked: %v, %v", other, err)
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	_, err := newStore(t).Save(context.Background(), snapshot.Snapshot{SubjectKey: "x"})
	if !errors.Is(err, snapshot.ErrInvalid) {
		t.Fatalf("err = %v", err)
	}
}
