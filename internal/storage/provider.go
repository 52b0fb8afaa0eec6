// Package storage defines the artifact file-system abstraction used for
// export output, import sources and the inbox directory.
package storage

import "time"

// Artifact describes one text artifact under the root.
type Artifact struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider is the interface for artifact file operations. Paths are relative
// to the provider root.
type Provider interface {
	// List returns metadata for every regular, non-hidden file under dir.
	List(dir string) ([]Artifact, error)
	// Glob returns the paths matching a doublestar pattern, sorted.
	Glob(pattern string) ([]string, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// WriteIfChanged writes content unless path already holds identical
	// bytes; written reports whether the file was touched.
	WriteIfChanged(path string, content []byte) (written bool, err error)
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
}
