// Package cache persists per-URL records as whole JSON documents, one document
// per record type, keyed by the hex MD5 of the survey URL.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"autosurvey-backend/internal/shared/storage/object"
	"autosurvey-backend/internal/shared/telemetry"
	"autosurvey-backend/internal/shared/util"
)

// RecordType names a cache document.
type RecordType string

const (
	SubmissionLog RecordType = "submission_log.json"
	QuizAnalysis  RecordType = "quiz_analysis.json"
)

// Key is the cache key for a survey URL.
type Key string

// ComputeKey returns the cache key for url.
func ComputeKey(url string) Key {
	return Key(util.HashURL(url))
}

// Store reads and writes cache documents through an object store. Writes from
// one process are serialized; concurrent writers in separate processes are
// not coordinated and the last write wins.
type Store struct {
	objects object.ObjectStore
	mu      sync.Mutex
}

// New returns a Store backed by objects.
func New(objects object.ObjectStore) *Store {
	return &Store{objects: objects}
}

// Load returns the document for rt. A missing or unreadable document yields an
// empty map; read and parse failures are logged, never returned.
func (s *Store) Load(ctx context.Context, rt RecordType) map[Key]json.RawMessage {
	return s.load(ctx, rt)
}

// Save overwrites the document for rt with mapping.
func (s *Store) Save(ctx context.Context, rt RecordType, mapping map[Key]json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, rt, mapping)
}

// Update loads the document for rt, applies fn, and saves the result while
// holding the store's write lock. If fn returns an error nothing is written.
func (s *Store) Update(ctx context.Context, rt RecordType, fn func(map[Key]json.RawMessage) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mapping := s.load(ctx, rt)
	if err := fn(mapping); err != nil {
		return err
	}
	return s.save(ctx, rt, mapping)
}

func (s *Store) load(ctx context.Context, rt RecordType) map[Key]json.RawMessage {
	out := make(map[Key]json.RawMessage)
	name, err := util.SanitizeFileName(string(rt))
	if err != nil {
		telemetry.Error("cache.load_failed", map[string]any{"record_type": string(rt), "error": err})
		return out
	}
	rc, err := s.objects.Open(ctx, name)
	if err != nil {
		if !errors.Is(err, object.ErrNotFound) {
			telemetry.Error("cache.load_failed", map[string]any{"record_type": string(rt), "error": err})
		}
		return out
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		telemetry.Error("cache.load_failed", map[string]any{"record_type": string(rt), "error": err})
		return out
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		telemetry.Error("cache.load_failed", map[string]any{"record_type": string(rt), "error": err})
		return make(map[Key]json.RawMessage)
	}
	return out
}

func (s *Store) save(ctx context.Context, rt RecordType, mapping map[Key]json.RawMessage) error {
	name, err := util.SanitizeFileName(string(rt))
	if err != nil {
		return fmt.Errorf("cache record type: %w", err)
	}
	if mapping == nil {
		mapping = map[Key]json.RawMessage{}
	}
	payload, err := encodePretty(mapping)
	if err != nil {
		return fmt.Errorf("encode %s: %w", rt, err)
	}
	if _, err := s.objects.SaveWithKey(ctx, name, "application/json", bytes.NewReader(payload)); err != nil {
		return fmt.Errorf("save %s: %w", rt, err)
	}
	return nil
}

// LoadAs decodes every record of rt into T. Records that fail to decode are
// logged and dropped.
func LoadAs[T any](ctx context.Context, s *Store, rt RecordType) map[Key]T {
	raw := s.Load(ctx, rt)
	out := make(map[Key]T, len(raw))
	for k, v := range raw {
		var rec T
		if err := json.Unmarshal(v, &rec); err != nil {
			telemetry.Error("cache.record_decode_failed", map[string]any{
				"record_type": string(rt),
				"key":         string(k),
				"error":       err,
			})
			continue
		}
		out[k] = rec
	}
	return out
}

// SaveAs encodes records and overwrites the document for rt.
func SaveAs[T any](ctx context.Context, s *Store, rt RecordType, records map[Key]T) error {
	mapping := make(map[Key]json.RawMessage, len(records))
	for k, v := range records {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", k, err)
		}
		mapping[k] = raw
	}
	return s.Save(ctx, rt, mapping)
}

// encodePretty writes two-space indented UTF-8 JSON without HTML escaping.
func encodePretty(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
