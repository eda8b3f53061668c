// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"crawshaw.dev/jsonfile"
)

// JSONFile is a file-backed implementation of the [Store] interface. Every
// Set rewrites the file atomically.
type JSONFile struct {
	f *jsonfile.JSONFile[jsonStore]
}

type jsonStore struct {
	Data map[string]string `json:"data"`
}

// NewJSONFile creates a new [JSONFile] backed by the file at path, creating
// the file and its parent directory if they don't exist.
func NewJSONFile(path string) (*JSONFile, error) {
	f, err := jsonfile.Load[jsonStore](path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		f, err = jsonfile.New[jsonStore](path)
		if err == nil {
			err = f.Write(func(js *jsonStore) error {
				js.Data = make(map[string]string)
				return nil
			})
		}
	}
	if err != nil {
		return nil, err
	}
	return &JSONFile{f: f}, nil
}

// Get retrieves a value for a given key.
func (s *JSONFile) Get(_ context.Context, key string) (string, bool, error) {
	var (
		val string
		ok  bool
	)
	s.f.Read(func(js *jsonStore) {
		val, ok = js.Data[key]
	})
	return val, ok, nil
}

// Set stores a value for a given key.
func (s *JSONFile) Set(_ context.Context, key, val string) error {
	return s.f.Write(func(js *jsonStore) error {
		if js.Data == nil {
			js.Data = make(map[string]string)
		}
		js.Data[key] = val
		return nil
	})
}

// Contains reports whether the key is present.
func (s *JSONFile) Contains(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// SetMax stores n for a given key unless it holds a higher or equal integer.
func (s *JSONFile) SetMax(_ context.Context, key string, n int64) error {
	return s.f.Write(func(js *jsonStore) error {
		if js.Data == nil {
			js.Data = make(map[string]string)
		}
		if lower(js.Data[key], n) {
			js.Data[key] = strconv.FormatInt(n, 10)
		}
		return nil
	})
}

// Close closes the file store.
func (s *JSONFile) Close() error { return nil }
