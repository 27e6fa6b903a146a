package snapshotpg_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/Abraxas-365/profilejobs/pkg/profile"
	"github.com/Abraxas-365/profilejobs/pkg/snapshot"
	"github.com/Abraxas-365/profilejobs/pkg/snapshot/snapshotpg"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func openStore(t *testing.T) *snapshotpg.PostgresStore {
	t.Helper()
	dsn := os.Getenv("SNAPSHOT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("SNAPSHOT_TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := snapshotpg.NewPostgresStore(db)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return store
}

func TestPostgresStore_SaveLatestList(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	// A fresh requester per run keeps reruns against the same database independent.
	requester := "test-" + uuid.NewString()
	base := time.Now().UTC().Truncate(time.Millisecond)

	first, err := store.Save(ctx, snapshot.Snapshot{
		RequesterID: requester,
		SubjectKey:  "octocat",
		Profile:     profile.Profile{Login: "octocat", Followers: 1},
		CreatedAt:   base,
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	second, err := store.Save(ctx, snapshot.Snapshot{
		RequesterID: requester,
		SubjectKey:  "octocat",
		Profile:     profile.Profile{Login: "octocat", Followers: 2},
		Summary:     snapshot.Summary{FollowerRatio: 2},
		CreatedAt:   base.Add(time.Second),
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	latest, err := store.Latest(ctx, requester, "octocat")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.ID != second || latest.Profile.Followers != 2 || latest.Summary.FollowerRatio != 2 {
		t.Fatalf("latest = %+v", latest)
	}

	list, err := store.List(ctx, requester, "octocat")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != first {
		t.Fatalf("list = %+v", list)
	}
}

func TestPostgresStore_DuplicateID(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	s := snapshot.Snapshot{ID: uuid.NewString(), RequesterID: "test-dup", SubjectKey: "x"}
	if _, err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Save(ctx, s); !errors.Is(err, snapshot.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestPostgresStore_LatestNotFound(t *testing.T) {
	store := openStore(t)
	_, err := store.Latest(context.Background(), "test-"+uuid.NewString(), "ghost")
	if !errors.Is(err, snapshot.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}
