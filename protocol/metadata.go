// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import "strings"

// Entry is one node of the directory tree carried by a
// read-metadata-done message. The root entry represents the archive
// itself and has the empty name.
type Entry struct {
	// Name is the entry's base name within its parent directory.
	Name string `cbor:"name"`

	// IsDirectory distinguishes directories from regular files.
	IsDirectory bool `cbor:"is_directory"`

	// Size is the decompressed size in bytes. Zero for directories.
	Size int64 `cbor:"size"`

	// ModificationTime is the entry's timestamp in Unix seconds.
	// Zero when the archive format does not record one.
	ModificationTime int64 `cbor:"modification_time,omitempty"`

	// Entries maps child base names to child entries. Nil for files.
	Entries map[string]*Entry `cbor:"entries,omitempty"`
}

// NewRoot returns an empty directory tree root.
func NewRoot() *Entry {
	return &Entry{IsDirectory: true, Entries: map[string]*Entry{}}
}

// Insert places file at the slash-separated path below e, creating
// intermediate directories as needed. Archive formats store flat path
// lists; this builds the tree the front end renders. Inserting over an
// existing entry replaces it.
func (e *Entry) Insert(path string, file *Entry) {
	parent := e
	parts := splitPath(path)
	for _, name := range parts[:len(parts)-1] {
		child, ok := parent.Entries[name]
		if !ok || !child.IsDirectory {
			child = &Entry{Name: name, IsDirectory: true, Entries: map[string]*Entry{}}
			parent.Entries[name] = child
		}
		parent = child
	}
	file.Name = parts[len(parts)-1]
	if file.IsDirectory && file.Entries == nil {
		file.Entries = map[string]*Entry{}
	}
	parent.Entries[file.Name] = file
}

// Lookup walks the slash-separated path below e and returns the entry
// it names, or nil if any component is missing. The empty path and "/"
// return e itself.
func (e *Entry) Lookup(path string) *Entry {
	current := e
	for _, name := range splitPath(path) {
		if name == "" {
			continue
		}
		if current == nil || !current.IsDirectory {
			return nil
		}
		current = current.Entries[name]
	}
	return current
}

// splitPath normalizes a path to its non-empty components. Leading and
// trailing slashes are insignificant.
func splitPath(path string) []string {
	raw := strings.Split(path, "/")
	parts := raw[:0]
	for _, p := range raw {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return []string{""}
	}
	return parts
}
