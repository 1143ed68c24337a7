// Package preset materializes administrator-declared values into tier caches.
//
// A preset Entry names a tier identity, a key, a serialized payload and the type
// descriptor used to decode it. Entries come from a Source; an Index snapshots
// the enabled entries once and decodes payloads only when they are read.
package preset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	// ErrSource indicates the entry source could not be read.
	ErrSource = errors.New("preset source")
	// ErrInvalidPreset indicates a preset payload that cannot be decoded.
	ErrInvalidPreset = errors.New("invalid preset value")
)

// Entry is one configured preset record. The index never writes entries back.
type Entry struct {
	// Tier is the identity of the target tier.
	Tier string `yaml:"tier"`
	Key  string `yaml:"key"`
	// Value is the serialized payload.
	Value string `yaml:"value"`
	// Type is the codec descriptor of Value.
	Type    string `yaml:"type"`
	Enabled bool   `yaml:"enabled"`
}

// Source supplies preset entries in declared order.
type Source interface {
	Entries(ctx context.Context) ([]Entry, error)
}

// StaticSource is an in-process list of entries.
//
// Tests append to it and must Clear it between runs.
type StaticSource struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewStaticSource returns a source holding entries.
func NewStaticSource(entries ...Entry) *StaticSource {
	return &StaticSource{entries: slices.Clone(entries)}
}

// Append adds entries after the existing ones.
func (s *StaticSource) Append(entries ...Entry) {
	s.mu.Lock()
	s.entries = append(s.entries, entries...)
	s.mu.Unlock()
}

// Clear removes every entry.
func (s *StaticSource) Clear() {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
}

// Entries implements Source.
func (s *StaticSource) Entries(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.entries), nil
}

// File is the YAML document read by FileSource.
//
//	presets:
//	  - tier: organization
//	    key: support-email
//	    type: string
//	    value: help@example.com
//	    enabled: true
type File struct {
	Presets []Entry `yaml:"presets"`
}

// FileSource reads entries from a YAML file.
//
// A path of the form "env:NAME" reads the document from the NAME environment
// variable instead. The file is read on every call; the Index decides how
// often that happens.
type FileSource struct {
	Path string

	readFile func(string) ([]byte, error)
	getenv   func(string) string
}

// NewFileSource returns a source for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{
		Path:     path,
		readFile: os.ReadFile,
		getenv:   os.Getenv,
	}
}

// Entries implements Source.
func (s *FileSource) Entries(_ context.Context) ([]Entry, error) {
	contents, err := s.contents()
	if err != nil {
		return nil, err
	}

	var file File
	dec := yaml.NewDecoder(bytes.NewReader(contents))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %w", ErrSource, s.Path, err)
	}

	return file.Presets, nil
}

func (s *FileSource) contents() ([]byte, error) {
	if name, ok := strings.CutPrefix(s.Path, "env:"); ok {
		value := s.getenv(name)
		if value == "" {
			return nil, fmt.Errorf("%w: environment variable %s is not set", ErrSource, name)
		}
		return []byte(value), nil
	}

	contents, err := s.readFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read file %s: %w", ErrSource, s.Path, err)
	}

	return contents, nil
}
