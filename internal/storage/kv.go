package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
)

// KVFile is a JSON object on disk holding independent keys. Writing one key
// leaves the others untouched.
type KVFile struct {
	// Path is the backing file.
	Path string

	mu sync.Mutex
}

// NewKVFile returns a key-value file rooted at path. The file is created on
// the first Set.
func NewKVFile(path string) *KVFile {
	return &KVFile{Path: path}
}

// Get decodes the value stored under key into v.
func (kv *KVFile) Get(key string, v any) error {
	if key == "" {
		return ErrKeyRequired
	}
	kv.mu.Lock()
	defer kv.mu.Unlock()

	entries, err := kv.load()
	if err != nil {
		return err
	}
	raw, ok := entries[key]
	if !ok {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// Set stores v under key, replacing the previous value.
func (kv *KVFile) Set(key string, v any) error {
	if key == "" {
		return ErrKeyRequired
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	kv.mu.Lock()
	defer kv.mu.Unlock()

	entries, err := kv.load()
	if err != nil {
		return err
	}
	entries[key] = raw

	return AtomicWrite(kv.Path, 0o600, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	})
}

// Keys lists the stored keys in sorted order.
func (kv *KVFile) Keys() ([]string, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	entries, err := kv.load()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

// load reads the whole file. A missing or empty file is an empty map.
func (kv *KVFile) load() (map[string]json.RawMessage, error) {
	entries := make(map[string]json.RawMessage)
	data, err := os.ReadFile(kv.Path)
	if errors.Is(err, os.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", kv.Path, err)
	}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", kv.Path, err)
	}
	return entries, nil
}
