package fsxlocal_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Abraxas-365/profilejobs/pkg/fsx"
	"github.com/Abraxas-365/profilejobs/pkg/fsx/fsxlocal"
)

func newFS(t *testing.T) *fsxlocal.LocalFileSystem {
	t.Helper()
	lfs, err := fsxlocal.NewLocalFileSystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFileSystem: %v", err)
	}
	return lfs
}

func TestWriteReadList(t *testing.T) {
	ctx := context.Background()
	lfs := newFS(t)

	p := lfs.Join("alice", "octocat", "one.json")
	if err := lfs.WriteFile(ctx, p, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := lfs.WriteFile(ctx, p, []byte(`{"a":2}`)); err != nil {
		t.Fatalf("WriteFile overwrite: %v", err)
	}

	data, err := lfs.ReadFile(ctx, p)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != `{"a":2}` {
		t.Fatalf("data = %s", data)
	}

	infos, err := lfs.List(ctx, "alice/octocat")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 1 || infos[0].Name != "one.json" || infos[0].ContentType != "application/json" {
		t.Fatalf("infos = %+v", infos)
	}

	ok, err := lfs.Exists(ctx, p)
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
}

func TestMissingPaths(t *testing.T) {
	ctx := context.Background()
	lfs := newFS(t)

	if _, err := lfs.ReadFile(ctx, "nope.json"); !errors.Is(err, fsx.ErrNotFound) {
		t.Fatalf("ReadFile err = %v, want ErrNotFound", err)
	}
	infos, err := lfs.List(ctx, "nobody")
	if err != nil || len(infos) != 0 {
		t.Fatalf("List = %v, %v", infos, err)
	}
	ok, err := lfs.Exists(ctx, "nope.json")
	if err != nil || ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
}

func TestRejectsTraversal(t *testing.T) {
	lfs := newFS(t)
	err := lfs.WriteFile(context.Background(), "../escape.json", []byte("x"))
	if !errors.Is(err, fsx.ErrInvalidPath) {
		t.Fatalf("err = %v, want ErrInvalidPath", err)
	}
}
