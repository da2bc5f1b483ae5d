package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/nexus-search/internal/crawler"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	return m.Called(ctx, msgs).Error(0)
}

func (m *mockWriter) Close() error {
	return m.Called().Error(0)
}

func TestPublishPageIndexedEvent(t *testing.T) {
	t.Parallel()

	evt := crawler.PageIndexedEvent{
		EventID:   "evt-1",
		URL:       "https://a.test",
		Title:     "A",
		Postings:  3,
		IndexedAt: time.Unix(0, 0).UTC(),
	}

	w := &mockWriter{}
	w.On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
		if len(msgs) != 1 {
			return false
		}
		msg := msgs[0]
		var got crawler.PageIndexedEvent
		if err := json.Unmarshal(msg.Value, &got); err != nil {
			return false
		}
		return msg.Topic == "nexus.page-indexed" &&
			string(msg.Key) == "https://a.test" &&
			got.Postings == 3 &&
			string(msg.Headers[0].Value) == "evt-1"
	})).Return(nil)

	pub := newWithWriter(w)
	id, err := pub.Publish(context.Background(), "nexus.page-indexed", evt)
	require.NoError(t, err)
	require.Equal(t, "evt-1", id)
	w.AssertExpectations(t)
}

func TestPublishGenericPayloadGetsID(t *testing.T) {
	t.Parallel()

	w := &mockWriter{}
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(nil)

	id, err := newWithWriter(w).Publish(context.Background(), "misc", map[string]string{"k": "v"})
	require.NoError(t, err)
	require.NotEmpty(t, id)
}

func TestPublishErrors(t *testing.T) {
	t.Parallel()

	w := &mockWriter{}
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	pub := newWithWriter(w)

	_, err := pub.Publish(context.Background(), "misc", "x")
	require.Error(t, err)

	_, err = pub.Publish(context.Background(), "", "x")
	require.Error(t, err)

	_, err = pub.Publish(context.Background(), "misc", func() {})
	require.Error(t, err)
}

func TestNewRequiresBrokers(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	require.Error(t, err)

	pub, err := New([]string{"localhost:9092"})
	require.NoError(t, err)
	require.NoError(t, pub.Close())
}
