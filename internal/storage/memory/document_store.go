package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/page-insights/internal/clock/system"
	"github.com/JakeFAU/page-insights/internal/insights"
	"github.com/JakeFAU/page-insights/internal/store"
)

// DocumentStore provides an in-memory store.DocumentStore for development/testing.
type DocumentStore struct {
	mu    sync.RWMutex
	clock insights.Clock
	docs  map[insights.Kind]map[string]store.Document
}

// NewDocumentStore constructs a DocumentStore. A nil clock uses the system clock.
func NewDocumentStore(clock insights.Clock) *DocumentStore {
	if clock == nil {
		clock = system.New()
	}
	return &DocumentStore{
		clock: clock,
		docs:  make(map[insights.Kind]map[string]store.Document),
	}
}

// Upsert inserts or replaces a document keyed by (kind, key).
func (s *DocumentStore) Upsert(_ context.Context, doc store.Document) error {
	if doc.Key == "" {
		return fmt.Errorf("document key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.docs[doc.Kind]
	if !ok {
		bucket = make(map[string]store.Document)
		s.docs[doc.Kind] = bucket
	}
	now := s.clock.Now().UTC()
	doc.Body = append(json.RawMessage(nil), doc.Body...)
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if existing, found := bucket[doc.Key]; found {
		doc.CreatedAt = existing.CreatedAt
		if existing.LastScraped.After(doc.LastScraped) {
			doc.LastScraped = existing.LastScraped
		}
	}
	bucket[doc.Key] = doc
	return nil
}

// FindByKey fetches a document by identity key.
func (s *DocumentStore) FindByKey(_ context.Context, kind insights.Kind, key string) (store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[kind][key]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return cloneDocument(doc), nil
}

// Find returns copies of the documents matching filter.
func (s *DocumentStore) Find(
	_ context.Context,
	kind insights.Kind,
	filter store.Filter,
	opts store.FindOptions,
) ([]store.Document, error) {
	matches, err := s.match(kind, filter)
	if err != nil {
		return nil, err
	}
	sortDocuments(matches, opts.Sort)
	if opts.Skip > 0 {
		if opts.Skip >= len(matches) {
			return []store.Document{}, nil
		}
		matches = matches[opts.Skip:]
	}
	if opts.Limit > 0 && len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}
	out := make([]store.Document, len(matches))
	for i, m := range matches {
		out[i] = cloneDocument(m.doc)
	}
	return out, nil
}

// Count returns the number of matching documents.
func (s *DocumentStore) Count(_ context.Context, kind insights.Kind, filter store.Filter) (int64, error) {
	matches, err := s.match(kind, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(matches)), nil
}

// Close is a no-op.
func (s *DocumentStore) Close() {}

type candidate struct {
	doc    store.Document
	fields map[string]json.RawMessage
}

func (s *DocumentStore) match(kind insights.Kind, filter store.Filter) ([]candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []candidate
	for _, doc := range s.docs[kind] {
		if filter.ParentKey != "" && doc.ParentKey != filter.ParentKey {
			continue
		}
		fields := map[string]json.RawMessage{}
		if err := json.Unmarshal(doc.Body, &fields); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", kind, doc.Key, err)
		}
		ok, err := matchFields(fields, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, candidate{doc: doc, fields: fields})
		}
	}
	return out, nil
}

func matchFields(fields map[string]json.RawMessage, filter store.Filter) (bool, error) {
	if filter.Name != "" {
		name := stringField(fields, "name")
		if !strings.Contains(strings.ToLower(name), strings.ToLower(filter.Name)) {
			return false, nil
		}
	}
	if filter.Industry != "" && stringField(fields, "industry") != string(filter.Industry) {
		return false, nil
	}
	if filter.MinFollowers != nil || filter.MaxFollowers != nil {
		followers := intField(fields, "follower_count")
		if filter.MinFollowers != nil && followers < *filter.MinFollowers {
			return false, nil
		}
		if filter.MaxFollowers != nil && followers > *filter.MaxFollowers {
			return false, nil
		}
	}
	for name, want := range filter.Attrs {
		encoded, err := json.Marshal(want)
		if err != nil {
			return false, fmt.Errorf("encode attribute %s: %w", name, err)
		}
		if !bytes.Equal(fields[name], encoded) {
			return false, nil
		}
	}
	return true, nil
}

func sortDocuments(items []candidate, field store.SortField) {
	sort.SliceStable(items, func(i, j int) bool {
		switch field {
		case store.SortPublishedDesc:
			a, b := timeField(items[i].fields, "published_at"), timeField(items[j].fields, "published_at")
			if !a.Equal(b) {
				// Zero (missing) timestamps sort last.
				return a.After(b)
			}
		case store.SortFollowersDesc:
			a, b := intField(items[i].fields, "follower_count"), intField(items[j].fields, "follower_count")
			if a != b {
				return a > b
			}
		}
		return items[i].doc.Key < items[j].doc.Key
	})
}

func stringField(fields map[string]json.RawMessage, name string) string {
	var out string
	_ = json.Unmarshal(fields[name], &out)
	return out
}

func intField(fields map[string]json.RawMessage, name string) int64 {
	var out int64
	_ = json.Unmarshal(fields[name], &out)
	return out
}

func timeField(fields map[string]json.RawMessage, name string) time.Time {
	var out time.Time
	_ = json.Unmarshal(fields[name], &out)
	return out
}

func cloneDocument(doc store.Document) store.Document {
	doc.Body = append(json.RawMessage(nil), doc.Body...)
	return doc
}
