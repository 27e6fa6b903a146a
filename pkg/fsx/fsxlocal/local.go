package fsxlocal

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/Abraxas-365/profilejobs/pkg/fsx"
)

// LocalFileSystem implements fsx.FileSystem using local disk
type LocalFileSystem struct {
	basePath string // Root directory for all files
}

// NewLocalFileSystem creates the base directory if needed.
// basePath: root directory (e.g., "./snapshots")
func NewLocalFileSystem(basePath string) (*LocalFileSystem, error) {
	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fsx.Wrap(fsx.ErrWrite, basePath, err)
	}
	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return nil, fsx.Wrap(fsx.ErrWrite, basePath, err)
	}
	return &LocalFileSystem{basePath: absPath}, nil
}

var _ fsx.FileSystem = (*LocalFileSystem)(nil)

func (l *LocalFileSystem) ReadFile(ctx context.Context, p string) ([]byte, error) {
	full, err := l.fullPath(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fsx.NotFound(p)
		}
		return nil, fsx.Wrap(fsx.ErrRead, p, err)
	}
	return data, nil
}

func (l *LocalFileSystem) List(ctx context.Context, p string) ([]fsx.FileInfo, error) {
	full, err := l.fullPath(p)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fsx.Wrap(fsx.ErrList, p, err)
	}

	infos := make([]fsx.FileInfo, 0, len(entries))
	for _, entry := range entries {
		// Half-written temp files from WriteFile.
		if strings.HasPrefix(entry.Name(), ".tmp-") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, fsx.FileInfo{
			Name:        info.Name(),
			Size:        info.Size(),
			ModTime:     info.ModTime(),
			IsDir:       info.IsDir(),
			ContentType: detectContentType(info.Name()),
		})
	}
	return infos, nil
}

func (l *LocalFileSystem) Exists(ctx context.Context, p string) (bool, error) {
	full, err := l.fullPath(p)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fsx.Wrap(fsx.ErrRead, p, err)
	}
	return true, nil
}

// WriteFile writes to a temp file in the target directory and renames it
// over the destination.
func (l *LocalFileSystem) WriteFile(ctx context.Context, p string, data []byte) error {
	full, err := l.fullPath(p)
	if err != nil {
		return err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fsx.Wrap(fsx.ErrWrite, p, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fsx.Wrap(fsx.ErrWrite, p, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fsx.Wrap(fsx.ErrWrite, p, err)
	}
	if err := tmp.Close(); err != nil {
		return fsx.Wrap(fsx.ErrWrite, p, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fsx.Wrap(fsx.ErrWrite, p, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return fsx.Wrap(fsx.ErrWrite, p, err)
	}
	return nil
}

func (l *LocalFileSystem) Join(elem ...string) string {
	return path.Join(elem...)
}

// GetBasePath returns the base path
func (l *LocalFileSystem) GetBasePath() string {
	return l.basePath
}

// fullPath resolves p under the base path and rejects escapes.
func (l *LocalFileSystem) fullPath(p string) (string, error) {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fsx.InvalidPath(p)
		}
	}
	clean := path.Clean("/" + p)
	full := filepath.Join(l.basePath, filepath.FromSlash(clean))
	if full != l.basePath && !strings.HasPrefix(full, l.basePath+string(filepath.Separator)) {
		return "", fsx.InvalidPath(p)
	}
	return full, nil
}

func detectContentType(name string) string {
	switch filepath.Ext(name) {
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
