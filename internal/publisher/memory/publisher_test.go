package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherNumbersPerTopic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pub := New()
	for _, topic := range []string{"documents", "documents", "sessions"} {
		_, err := pub.Publish(ctx, topic, map[string]string{"crawl_id": "CC-MAIN-2024-10"})
		require.NoError(t, err)
	}

	msgs := pub.Messages()
	require.Len(t, msgs, 3)
	require.Equal(t, []string{"documents/1", "documents/2", "sessions/1"}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})

	docs := pub.Topic("documents")
	require.Len(t, docs, 2)
	require.Empty(t, pub.Topic("unknown"))

	msgs[0].Topic = "changed"
	require.Equal(t, "documents", pub.Messages()[0].Topic)
}

func TestPublisherFailures(t *testing.T) {
	t.Parallel()

	pub := New()
	pub.FailWith(errors.New("broker down"))
	_, err := pub.Publish(context.Background(), "documents", "x")
	require.ErrorContains(t, err, "publish to documents: broker down")

	pub.FailWith(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pub.Publish(ctx, "documents", "x")
	require.ErrorIs(t, err, context.Canceled)

	id, err := pub.Publish(context.Background(), "documents", "x")
	require.NoError(t, err)
	require.Equal(t, "documents/1", id)
	require.Len(t, pub.Messages(), 1)
}
