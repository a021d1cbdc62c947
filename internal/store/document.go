package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/page-insights/internal/insights"
)

// ErrNotFound signals that the requested document does not exist.
var ErrNotFound = errors.New("document not found")

// Keys owned by the persistence layer rather than the entity body.
const (
	fieldCreatedAt   = "created_at"
	fieldUpdatedAt   = "updated_at"
	fieldLastScraped = "last_scraped"
)

// Document is the storage representation of one entity.
type Document struct {
	Kind        insights.Kind
	Key         string
	ParentKey   string
	Body        json.RawMessage
	LastScraped time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SortField selects one of the supported orderings.
type SortField string

// Supported orderings.
const (
	SortNone          SortField = ""
	SortPublishedDesc SortField = "published_at_desc"
	SortFollowersDesc SortField = "follower_count_desc"
)

// Filter narrows a Find or Count. Zero values are ignored.
type Filter struct {
	ParentKey    string
	Name         string
	Industry     insights.Industry
	MinFollowers *int64
	MaxFollowers *int64
	// Attrs matches top-level body attributes by equality.
	Attrs map[string]any
}

// FindOptions controls ordering and paging.
type FindOptions struct {
	Sort  SortField
	Skip  int
	Limit int
}

// DocumentStore is the durable tier. Upsert is keyed by (Kind, Key).
type DocumentStore interface {
	// Upsert inserts or replaces the document, setting UpdatedAt always and
	// CreatedAt only on insert. LastScraped never moves backwards.
	Upsert(ctx context.Context, doc Document) error
	FindByKey(ctx context.Context, kind insights.Kind, key string) (Document, error)
	Find(ctx context.Context, kind insights.Kind, filter Filter, opts FindOptions) ([]Document, error)
	Count(ctx context.Context, kind insights.Kind, filter Filter) (int64, error)
	Close()
}

// NewDocument encodes rec, leaving persistence-owned timestamps out of the body.
func NewDocument(rec insights.Record) (Document, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return Document{}, fmt.Errorf("marshal %s: %w", rec.Kind(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Document{}, fmt.Errorf("split %s fields: %w", rec.Kind(), err)
	}
	delete(fields, fieldCreatedAt)
	delete(fields, fieldUpdatedAt)
	delete(fields, fieldLastScraped)
	body, err := json.Marshal(fields)
	if err != nil {
		return Document{}, fmt.Errorf("marshal %s body: %w", rec.Kind(), err)
	}
	return Document{
		Kind:        rec.Kind(),
		Key:         rec.Key(),
		ParentKey:   rec.ParentKey(),
		Body:        body,
		LastScraped: rec.Scraped().UTC(),
	}, nil
}

// Materialize returns the canonical wire shape: body plus persistence timestamps.
func (d Document) Materialize() (json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if len(d.Body) > 0 {
		if err := json.Unmarshal(d.Body, &fields); err != nil {
			return nil, fmt.Errorf("decode %s/%s body: %w", d.Kind, d.Key, err)
		}
	}
	for name, ts := range map[string]time.Time{
		fieldCreatedAt:   d.CreatedAt,
		fieldUpdatedAt:   d.UpdatedAt,
		fieldLastScraped: d.LastScraped,
	} {
		encoded, err := json.Marshal(ts.UTC())
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		fields[name] = encoded
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s/%s: %w", d.Kind, d.Key, err)
	}
	return out, nil
}

// Decode materializes d into a typed entity.
func Decode[T insights.Record](d Document) (T, error) {
	var out T
	raw, err := d.Materialize()
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s/%s: %w", d.Kind, d.Key, err)
	}
	return out, nil
}
