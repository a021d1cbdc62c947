package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/page-insights/internal/insights"
	"github.com/JakeFAU/page-insights/internal/store"
)

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(time.Minute)
	return c.now
}

func orgDoc(key, body string, scraped time.Time) store.Document {
	return store.Document{
		Kind:        insights.KindOrganization,
		Key:         key,
		Body:        json.RawMessage(body),
		LastScraped: scraped,
	}
}

func TestDocumentStoreUpsertKeepsCreatedAt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewDocumentStore(clk)
	scraped := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Upsert(ctx, orgDoc("acme", `{"page_id":"acme","name":"Acme"}`, scraped)))
	first, err := s.FindByKey(ctx, insights.KindOrganization, "acme")
	require.NoError(t, err)

	require.NoError(t, s.Upsert(ctx, orgDoc("acme", `{"page_id":"acme","name":"Acme Corp"}`, scraped.Add(-time.Hour))))
	second, err := s.FindByKey(ctx, insights.KindOrganization, "acme")
	require.NoError(t, err)

	require.Equal(t, first.CreatedAt, second.CreatedAt)
	require.True(t, second.UpdatedAt.After(first.UpdatedAt))
	require.Equal(t, scraped, second.LastScraped, "last_scraped must not move backwards")
	require.JSONEq(t, `{"page_id":"acme","name":"Acme Corp"}`, string(second.Body))

	n, err := s.Count(ctx, insights.KindOrganization, store.Filter{})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestDocumentStoreFindByKeyMissing(t *testing.T) {
	t.Parallel()

	s := NewDocumentStore(nil)
	_, err := s.FindByKey(context.Background(), insights.KindPost, "nope")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDocumentStoreFindReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewDocumentStore(nil)
	require.NoError(t, s.Upsert(ctx, orgDoc("acme", `{"name":"Acme"}`, time.Now())))

	docs, err := s.Find(ctx, insights.KindOrganization, store.Filter{}, store.FindOptions{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	docs[0].Body[2] = 'X'

	again, err := s.FindByKey(ctx, insights.KindOrganization, "acme")
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"Acme"}`, string(again.Body))
}

func TestDocumentStoreFilters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewDocumentStore(nil)
	now := time.Now()
	require.NoError(t, s.Upsert(ctx, orgDoc("acme", `{"name":"Acme Robotics","industry":"Technology","follower_count":500}`, now)))
	require.NoError(t, s.Upsert(ctx, orgDoc("bank", `{"name":"First Bank","industry":"Finance","follower_count":9000}`, now)))
	require.NoError(t, s.Upsert(ctx, orgDoc("bolt", `{"name":"Bolt Robotics","industry":"Technology","follower_count":20}`, now)))

	minFollowers := int64(100)
	testCases := []struct {
		name   string
		filter store.Filter
		want   []string
	}{
		{"all", store.Filter{}, []string{"bank", "acme", "bolt"}},
		{"name", store.Filter{Name: "robotics"}, []string{"acme", "bolt"}},
		{"industry", store.Filter{Industry: insights.IndustryFinance}, []string{"bank"}},
		{"min followers", store.Filter{MinFollowers: &minFollowers, Industry: insights.IndustryTechnology}, []string{"acme"}},
		{"attrs", store.Filter{Attrs: map[string]any{"industry": "Technology"}}, []string{"acme", "bolt"}},
	}
	for _, tc := range testCases {
		docs, err := s.Find(ctx, insights.KindOrganization, tc.filter, store.FindOptions{Sort: store.SortFollowersDesc})
		require.NoError(t, err, tc.name)
		keys := make([]string, 0, len(docs))
		for _, d := range docs {
			keys = append(keys, d.Key)
		}
		require.Equal(t, tc.want, keys, tc.name)
	}
}

func TestDocumentStoreSortPublishedNullsLastAndPaging(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewDocumentStore(nil)
	put := func(key, body string) {
		require.NoError(t, s.Upsert(ctx, store.Document{
			Kind: insights.KindPost, Key: key, ParentKey: "acme", Body: json.RawMessage(body),
		}))
	}
	put("p-old", `{"post_id":"p-old","published_at":"2024-01-01T00:00:00Z"}`)
	put("p-none", `{"post_id":"p-none"}`)
	put("p-new", `{"post_id":"p-new","published_at":"2024-03-01T00:00:00Z"}`)
	put("other", `{"post_id":"other","published_at":"2024-05-01T00:00:00Z"}`)
	require.NoError(t, s.Upsert(ctx, store.Document{Kind: insights.KindPost, Key: "x", ParentKey: "globex", Body: json.RawMessage(`{}`)}))

	docs, err := s.Find(ctx, insights.KindPost, store.Filter{ParentKey: "acme"}, store.FindOptions{Sort: store.SortPublishedDesc})
	require.NoError(t, err)
	require.Len(t, docs, 4)
	require.Equal(t, "other", docs[0].Key)
	require.Equal(t, "p-new", docs[1].Key)
	require.Equal(t, "p-old", docs[2].Key)
	require.Equal(t, "p-none", docs[3].Key)

	page, err := s.Find(ctx, insights.KindPost, store.Filter{ParentKey: "acme"}, store.FindOptions{
		Sort: store.SortPublishedDesc, Skip: 1, Limit: 2,
	})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "p-new", page[0].Key)

	empty, err := s.Find(ctx, insights.KindPost, store.Filter{ParentKey: "acme"}, store.FindOptions{Skip: 10})
	require.NoError(t, err)
	require.Empty(t, empty)
}
