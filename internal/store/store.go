// Package store reads and publishes calendar documents.
package store

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// ErrNotExist is returned by Read when no document has been published under the name
var ErrNotExist = fs.ErrNotExist

// Store holds published calendar documents by name
type Store interface {
	// Read returns the current document, or ErrNotExist
	Read(ctx context.Context, name string) ([]byte, error)

	// Write replaces the document atomically; readers see the old or the new bytes, never a mix
	Write(ctx context.Context, name string, data []byte) error

	// Lock excludes other runs publishing the same document until the returned func is called
	Lock(ctx context.Context, name string) (func() error, error)

	// Location describes where name is published, for logs and reports
	Location(name string) string
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || path.Clean(name) != name {
		return fmt.Errorf("invalid document name %q", name)
	}
	return nil
}
