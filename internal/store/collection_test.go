package store_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/page-insights/internal/insights"
	"github.com/JakeFAU/page-insights/internal/storage/memory"
	"github.com/JakeFAU/page-insights/internal/store"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestCollectionRoundTripSetsTimestamps(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	orgs := store.NewCollection[insights.Organization](memory.NewDocumentStore(fixedClock{now: now}))
	require.Equal(t, insights.KindOrganization, orgs.Kind())

	org := insights.Organization{
		PageID:        "acme",
		Name:          "Acme",
		Industry:      insights.IndustryTechnology,
		FollowerCount: 1200,
		Specialities:  []string{"rockets"},
		ExtraData:     map[string]any{"linkedin_id": "123"},
		LastScraped:   now.Add(-time.Minute),
	}
	require.NoError(t, orgs.Upsert(ctx, org))
	require.NoError(t, orgs.Upsert(ctx, org))

	got, err := orgs.Get(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, "Acme", got.Name)
	require.Equal(t, now, got.CreatedAt)
	require.Equal(t, now, got.UpdatedAt)
	require.Equal(t, org.LastScraped, got.LastScraped)
	require.Equal(t, []string{"rockets"}, got.Specialities)

	n, err := orgs.Count(ctx, store.Filter{})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestCollectionGetMissingWrapsNotFound(t *testing.T) {
	t.Parallel()

	posts := store.NewCollection[insights.Post](memory.NewDocumentStore(nil))
	_, err := posts.Get(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCollectionUpsertRequiresKey(t *testing.T) {
	t.Parallel()

	people := store.NewCollection[insights.Person](memory.NewDocumentStore(nil))
	require.Error(t, people.Upsert(context.Background(), insights.Person{Name: "anon"}))
}

func TestCollectionQueryFiltered(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	orgs := store.NewCollection[insights.Organization](memory.NewDocumentStore(nil))
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, orgs.Upsert(ctx, insights.Organization{PageID: id, Name: "Org " + id, Industry: insights.IndustryRetail}))
	}
	items, total, err := orgs.QueryFiltered(ctx, store.Filter{Industry: insights.IndustryRetail}, 1, 1)
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, items, 1)
	require.Equal(t, "b", items[0].PageID)
}

func TestNewDocumentStripsPersistenceFields(t *testing.T) {
	t.Parallel()

	scraped := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	page := "acme"
	doc, err := store.NewDocument(insights.Person{UserID: "jane", CompanyPageID: &page, LastScraped: scraped})
	require.NoError(t, err)
	require.Equal(t, "acme", doc.ParentKey)
	require.Equal(t, scraped, doc.LastScraped)

	fields := map[string]json.RawMessage{}
	require.NoError(t, json.Unmarshal(doc.Body, &fields))
	require.NotContains(t, fields, "created_at")
	require.NotContains(t, fields, "updated_at")
	require.NotContains(t, fields, "last_scraped")

	raw, err := doc.Materialize()
	require.NoError(t, err)
	require.Contains(t, string(raw), `"last_scraped":"2024-02-01T00:00:00Z"`)
}
