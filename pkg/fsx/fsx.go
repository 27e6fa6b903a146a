// Package fsx abstracts the blob storage snapshots are written to.
// Paths are slash separated and relative to the backend root.
package fsx

import (
	"context"
	"time"

	"github.com/Abraxas-365/profilejobs/pkg/errx"
)

var fsxErrors = errx.NewRegistry("FSX")

var (
	ErrNotFound    = fsxErrors.Register("NOT_FOUND", errx.TypeNotFound, "File not found")
	ErrInvalidPath = fsxErrors.Register("INVALID_PATH", errx.TypeValidation, "Path escapes the storage root")
	ErrRead        = fsxErrors.Register("READ", errx.TypeExternal, "Failed to read file")
	ErrWrite       = fsxErrors.Register("WRITE", errx.TypeExternal, "Failed to write file")
	ErrList        = fsxErrors.Register("LIST", errx.TypeExternal, "Failed to list files")
)

// NotFound builds the error backends return for a missing path.
func NotFound(path string) error {
	return fsxErrors.New(ErrNotFound).WithDetail("path", path)
}

// InvalidPath builds the error backends return for a path outside the root.
func InvalidPath(path string) error {
	return fsxErrors.New(ErrInvalidPath).WithDetail("path", path)
}

// Wrap attaches a registry code and the path to a backend error.
func Wrap(code *errx.ErrorCode, path string, err error) error {
	return fsxErrors.NewWithCause(code, err).WithDetail("path", path)
}

// FileInfo represents information about a file
type FileInfo struct {
	Name        string // Base name of the file
	Size        int64
	ModTime     time.Time
	IsDir       bool
	ContentType string
}

// FileReader provides read-only operations
type FileReader interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	// List returns the direct children of a directory. A missing
	// directory lists as empty.
	List(ctx context.Context, path string) ([]FileInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// FileWriter provides write operations
type FileWriter interface {
	// WriteFile creates parent directories as needed and replaces the file
	// atomically where the backend allows it.
	WriteFile(ctx context.Context, path string, data []byte) error
}

// FileSystem combines all file operations
type FileSystem interface {
	FileReader
	FileWriter
	Join(elem ...string) string
}
