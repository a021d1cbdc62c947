package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestPublisher(t *testing.T, topics ...string) (*Publisher, *pstest.Server) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	client, err := pubsub.NewClient(ctx, "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	for _, topic := range topics {
		_, err := client.CreateTopic(ctx, topic)
		require.NoError(t, err)
	}

	pub := NewWithClient(client)
	t.Cleanup(func() { _ = pub.Close() })
	return pub, srv
}

func TestPublishWritesJSON(t *testing.T) {
	t.Parallel()

	pub, srv := newTestPublisher(t, "organization.acquired")
	id, err := pub.Publish(context.Background(), "organization.acquired", map[string]any{"page_id": "acme", "posts": 3})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var body map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &body))
	require.Equal(t, "acme", body["page_id"])
	require.Equal(t, "organization.acquired", msgs[0].Attributes["event"])
	require.Equal(t, "application/json", msgs[0].Attributes["content_type"])
}

func TestPublishReusesTopicHandle(t *testing.T) {
	t.Parallel()

	pub, srv := newTestPublisher(t, "a")
	for range 2 {
		_, err := pub.Publish(context.Background(), "a", "payload")
		require.NoError(t, err)
	}
	require.Len(t, pub.topics, 1)
	require.Len(t, srv.Messages(), 2)
}

func TestPublishValidation(t *testing.T) {
	t.Parallel()

	_, err := (&Publisher{}).Publish(context.Background(), "a", "x")
	require.Error(t, err)

	pub, _ := newTestPublisher(t)
	_, err = pub.Publish(context.Background(), "", "x")
	require.Error(t, err)

	_, err = pub.Publish(context.Background(), "a", func() {})
	require.ErrorContains(t, err, "marshal payload")
}

func TestNewRequiresProject(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), "")
	require.Error(t, err)
}
