package fsxs3_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Abraxas-365/profilejobs/pkg/fsx"
	"github.com/Abraxas-365/profilejobs/pkg/fsx/fsxs3"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 keeps objects in memory and pages ListObjectsV2 one key at a time.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	lists   int
}

func newFake() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++

	prefix := aws.ToString(in.Prefix)
	var keys []string
	seen := map[string]bool{}
	for k := range f.objects {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := strings.TrimPrefix(k, prefix)
		if i := strings.Index(rest, "/"); i >= 0 {
			dir := prefix + rest[:i+1]
			if !seen[dir] {
				seen[dir] = true
				keys = append(keys, dir)
			}
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := 0
	if tok := aws.ToString(in.ContinuationToken); tok != "" {
		for i, k := range keys {
			if k == tok {
				start = i
			}
		}
	}
	out := &s3.ListObjectsV2Output{}
	if start < len(keys) {
		k := keys[start]
		if strings.HasSuffix(k, "/") {
			out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(k)})
		} else {
			out.Contents = append(out.Contents, types.Object{
				Key:          aws.String(k),
				Size:         aws.Int64(int64(len(f.objects[k]))),
				LastModified: aws.Time(time.Unix(0, 0)),
			})
		}
	}
	if start+1 < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[start+1])
	}
	return out, nil
}

func TestWriteReadUnderPrefix(t *testing.T) {
	ctx := context.Background()
	fake := newFake()
	fs := fsxs3.NewS3FileSystem(fake, "bucket", "/snapshots/")

	if err := fs.WriteFile(ctx, "alice/octocat/1.json", []byte("{}")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, ok := fake.objects["snapshots/alice/octocat/1.json"]; !ok {
		t.Fatalf("keys = %v", fake.objects)
	}
	if got := fake.types["snapshots/alice/octocat/1.json"]; got != "application/json" {
		t.Fatalf("content type = %q", got)
	}

	data, err := fs.ReadFile(ctx, "alice/octocat/1.json")
	if err != nil || string(data) != "{}" {
		t.Fatalf("ReadFile = %q, %v", data, err)
	}
	ok, err := fs.Exists(ctx, "alice/octocat/1.json")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
}

func TestMissingObjects(t *testing.T) {
	ctx := context.Background()
	fs := fsxs3.NewS3FileSystem(newFake(), "bucket", "")

	if _, err := fs.ReadFile(ctx, "nope.json"); !errors.Is(err, fsx.ErrNotFound) {
		t.Fatalf("ReadFile err = %v", err)
	}
	ok, err := fs.Exists(ctx, "nope.json")
	if err != nil || ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
}

func TestListPagesAndDirectories(t *testing.T) {
	ctx := context.Background()
	fake := newFake()
	fs := fsxs3.NewS3FileSystem(fake, "bucket", "p")

	for _, p := range []string{"a/x/1.json", "a/x/2.json", "a/x/3.json", "a/x/deeper/4.json"} {
		if err := fs.WriteFile(ctx, p, []byte("1")); err != nil {
			t.Fatalf("WriteFile(%s): %v", p, err)
		}
	}

	infos, err := fs.List(ctx, "a/x")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var files, dirs []string
	for _, info := range infos {
		if info.IsDir {
			dirs = append(dirs, info.Name)
		} else {
			files = append(files, info.Name)
		}
	}
	sort.Strings(files)
	if strings.Join(files, ",") != "1.json,2.json,3.json" {
		t.Fatalf("files = %v", files)
	}
	if len(dirs) != 1 || dirs[0] != "deeper" {
		t.Fatalf("dirs = %v", dirs)
	}
	if fake.lists != 4 {
		t.Fatalf("list calls = %d, want 4 pages", fake.lists)
	}
}

func TestRejectsTraversal(t *testing.T) {
	fs := fsxs3.NewS3FileSystem(newFake(), "bucket", "")
	if err := fs.WriteFile(context.Background(), "../x", nil); !errors.Is(err, fsx.ErrInvalidPath) {
		t.Fatalf("err = %v", err)
	}
}
