package store

import (
	"context"
	"fmt"

	"github.com/JakeFAU/page-insights/internal/insights"
)

// Collection is a typed view over one logical collection of a DocumentStore.
type Collection[T insights.Record] struct {
	docs DocumentStore
	kind insights.Kind
}

// NewCollection binds a typed collection for T.
func NewCollection[T insights.Record](docs DocumentStore) *Collection[T] {
	var zero T
	return &Collection[T]{docs: docs, kind: zero.Kind()}
}

// Kind reports the entity kind stored by c.
func (c *Collection[T]) Kind() insights.Kind {
	return c.kind
}

// Upsert writes rec keyed by its identity.
func (c *Collection[T]) Upsert(ctx context.Context, rec T) error {
	if rec.Key() == "" {
		return fmt.Errorf("upsert %s: identity key is required", c.kind)
	}
	doc, err := NewDocument(rec)
	if err != nil {
		return err
	}
	if err := c.docs.Upsert(ctx, doc); err != nil {
		return fmt.Errorf("upsert %s/%s: %w", c.kind, rec.Key(), err)
	}
	return nil
}

// Get loads one entity by identity key. Missing keys return ErrNotFound.
func (c *Collection[T]) Get(ctx context.Context, key string) (T, error) {
	var zero T
	doc, err := c.docs.FindByKey(ctx, c.kind, key)
	if err != nil {
		return zero, fmt.Errorf("find %s/%s: %w", c.kind, key, err)
	}
	return Decode[T](doc)
}

// FindByParent lists the children of parentKey.
func (c *Collection[T]) FindByParent(
	ctx context.Context,
	parentKey string,
	sort SortField,
	limit int,
) ([]T, error) {
	return c.Find(ctx, Filter{ParentKey: parentKey}, FindOptions{Sort: sort, Limit: limit})
}

// Find lists entities matching filter.
func (c *Collection[T]) Find(ctx context.Context, filter Filter, opts FindOptions) ([]T, error) {
	docs, err := c.docs.Find(ctx, c.kind, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", c.kind, err)
	}
	return decodeAll[T](docs)
}

// QueryFiltered returns one page of matches along with the total match count.
func (c *Collection[T]) QueryFiltered(ctx context.Context, filter Filter, skip, limit int) ([]T, int64, error) {
	total, err := c.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	items, err := c.Find(ctx, filter, FindOptions{Skip: skip, Limit: limit})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Count returns the number of entities matching filter.
func (c *Collection[T]) Count(ctx context.Context, filter Filter) (int64, error) {
	n, err := c.docs.Count(ctx, c.kind, filter)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", c.kind, err)
	}
	return n, nil
}

func decodeAll[T insights.Record](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		rec, err := Decode[T](doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
