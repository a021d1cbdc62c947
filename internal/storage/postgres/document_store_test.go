package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/page-insights/internal/insights"
	"github.com/JakeFAU/page-insights/internal/store"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*DocumentStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s, err := NewDocumentStoreWithPool(mock, fixedClock{now: testNow})
	require.NoError(t, err)
	return s, mock
}

func TestUpsertInsertsDocument(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	scraped := testNow.Add(-time.Minute)
	body := []byte(`{"page_id":"acme","name":"Acme"}`)

	mock.ExpectExec(`(?s)INSERT INTO organizations.*ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("acme", nil, body, nil, scraped, testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.Upsert(context.Background(), store.Document{
		Kind:        insights.KindOrganization,
		Key:         "acme",
		Body:        body,
		LastScraped: scraped,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPreservesCreatedAtAndMonotonicScrape(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectExec(`GREATEST\(posts.last_scraped, EXCLUDED.last_scraped\)`).
		WithArgs("p1", "acme", pgxmock.AnyArg(), nil, pgxmock.AnyArg(), testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.Upsert(context.Background(), store.Document{
		Kind:      insights.KindPost,
		Key:       "p1",
		ParentKey: "acme",
		Body:      []byte(`{}`),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertLiftsPublishTimeIntoColumn(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	published := time.Date(2024, 5, 30, 9, 0, 0, 0, time.UTC)
	body := []byte(`{"post_id":"p1","published_at":"2024-05-30T11:00:00+02:00"}`)

	mock.ExpectExec(`(?s)INSERT INTO posts \(id, parent_id, doc, published_at,.*published_at = EXCLUDED.published_at`).
		WithArgs("p1", "acme", body, published, testNow, testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.Upsert(context.Background(), store.Document{
		Kind:        insights.KindPost,
		Key:         "p1",
		ParentKey:   "acme",
		Body:        body,
		LastScraped: testNow,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishedAtIgnoresMissingOrMalformed(t *testing.T) {
	t.Parallel()

	require.Nil(t, publishedAt([]byte(`{"post_id":"p1"}`)))
	require.Nil(t, publishedAt([]byte(`{"published_at":"yesterday"}`)))
	require.Nil(t, publishedAt(nil))
}

func TestMigrationsIndexPublishTime(t *testing.T) {
	t.Parallel()

	sql, err := migrations.ReadFile("migrations/00003_published_at.sql")
	require.NoError(t, err)
	require.Contains(t, string(sql), "ADD COLUMN IF NOT EXISTS published_at TIMESTAMPTZ")
	require.Contains(t, string(sql), "ON posts (parent_id, published_at DESC NULLS LAST)")
}

func TestUpsertRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	err := s.Upsert(context.Background(), store.Document{Kind: "job", Key: "x"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByKeyMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery(`(?s)SELECT id,.*FROM organizations\s+WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.FindByKey(context.Background(), insights.KindOrganization, "ghost")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByKeyScansRow(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	created := testNow.Add(-24 * time.Hour)
	rows := pgxmock.NewRows([]string{"id", "parent_id", "doc", "last_scraped", "created_at", "updated_at"}).
		AddRow("jane", "acme", []byte(`{"user_id":"jane"}`), testNow, created, testNow)
	mock.ExpectQuery(`FROM people`).WithArgs("jane").WillReturnRows(rows)

	doc, err := s.FindByKey(context.Background(), insights.KindPerson, "jane")
	require.NoError(t, err)
	require.Equal(t, insights.KindPerson, doc.Kind)
	require.Equal(t, "acme", doc.ParentKey)
	require.Equal(t, created, doc.CreatedAt)
	require.JSONEq(t, `{"user_id":"jane"}`, string(doc.Body))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindPostsByParentSortedAndLimited(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	rows := pgxmock.NewRows([]string{"id", "parent_id", "doc", "last_scraped", "created_at", "updated_at"}).
		AddRow("p2", "acme", []byte(`{"post_id":"p2"}`), testNow, testNow, testNow).
		AddRow("p1", "acme", []byte(`{"post_id":"p1"}`), testNow, testNow, testNow)
	mock.ExpectQuery(`FROM posts\s+WHERE parent_id = \$1\s+ORDER BY published_at DESC NULLS LAST, id\s+LIMIT \$2`).
		WithArgs("acme", 15).
		WillReturnRows(rows)

	docs, err := s.Find(context.Background(), insights.KindPost, store.Filter{ParentKey: "acme"}, store.FindOptions{
		Sort:  store.SortPublishedDesc,
		Limit: 15,
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "p2", docs[0].Key)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindEmptyReturnsEmptySlice(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery(`FROM comments`).
		WithArgs("123").
		WillReturnRows(pgxmock.NewRows([]string{"id", "parent_id", "doc", "last_scraped", "created_at", "updated_at"}))

	docs, err := s.Find(context.Background(), insights.KindComment, store.Filter{ParentKey: "123"}, store.FindOptions{})
	require.NoError(t, err)
	require.NotNil(t, docs)
	require.Empty(t, docs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountBuildsFilterClauses(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	minFollowers := int64(100)
	mock.ExpectQuery(`(?s)SELECT count\(\*\) FROM organizations\s+WHERE to_tsvector.*AND doc->>'industry' = \$2 AND \(doc->>'follower_count'\)::bigint >= \$3`).
		WithArgs("acme", "Technology", minFollowers).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(4)))

	n, err := s.Count(context.Background(), insights.KindOrganization, store.Filter{
		Name:         "acme",
		Industry:     insights.IndustryTechnology,
		MinFollowers: &minFollowers,
	})
	require.NoError(t, err)
	require.Equal(t, int64(4), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountAttrsUsesContainment(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery(`FROM people\s+WHERE parent_id = \$1 AND doc @> \$2::jsonb`).
		WithArgs("acme", []byte(`{"is_employee":true}`)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))

	n, err := s.Count(context.Background(), insights.KindPerson, store.Filter{
		ParentKey: "acme",
		Attrs:     map[string]any{"is_employee": true},
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewDocumentStoreWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewDocumentStoreWithPool(nil, nil)
	require.Error(t, err)
}

func TestPingReportsFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	s, err := NewDocumentStoreWithPool(mock, fixedClock{now: testNow})
	require.NoError(t, err)

	mock.ExpectPing()
	require.NoError(t, s.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(pgx.ErrTxClosed)
	require.ErrorIs(t, s.Ping(context.Background()), pgx.ErrTxClosed)
	require.NoError(t, mock.ExpectationsWereMet())
}
