package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/nexus-search/internal/crawler"
	"github.com/JakeFAU/nexus-search/internal/queue"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestQueueEnqueueClaimAcknowledge(t *testing.T) {
	t.Parallel()

	q := NewQueue(time.Minute)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, crawler.WorkItem{URL: "https://example.com"}))

	claim, ok, err := q.Claim(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, claim.Token)
	require.JSONEq(t, `{"url":"https://example.com"}`, string(claim.Body))
	require.Equal(t, 0, q.Pending())
	require.Equal(t, 1, q.InFlight())

	require.NoError(t, q.Acknowledge(ctx, claim.Token))
	require.Equal(t, 0, q.InFlight())

	_, ok, err = q.Claim(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestQueueClaimIsFIFO(t *testing.T) {
	t.Parallel()

	q := NewQueue(time.Minute)
	ctx := context.Background()
	for _, u := range []string{"https://a.test", "https://b.test", "https://c.test"} {
		require.NoError(t, q.Enqueue(ctx, crawler.WorkItem{URL: u}))
	}
	for _, want := range []string{"https://a.test", "https://b.test", "https://c.test"} {
		claim, ok, err := q.Claim(ctx, 10*time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok)
		item, err := crawler.DecodeWorkItem(claim.Body)
		require.NoError(t, err)
		require.Equal(t, want, item.URL)
	}
}

func TestQueueClaimWakesOnEnqueue(t *testing.T) {
	t.Parallel()

	q := NewQueue(time.Minute)
	ctx := context.Background()
	result := make(chan crawler.Claim, 1)
	go func() {
		claim, ok, err := q.Claim(ctx, 5*time.Second)
		if err == nil && ok {
			result <- claim
		}
		close(result)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, crawler.WorkItem{URL: "https://late.test"}))

	select {
	case claim, ok := <-result:
		require.True(t, ok, "claim returned without a delivery")
		require.Contains(t, string(claim.Body), "late.test")
	case <-time.After(2 * time.Second):
		t.Fatal("claim did not wake on enqueue")
	}
}

func TestQueueUnacknowledgedClaimReappears(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	q := NewQueue(30*time.Second, WithClock(clk))
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, crawler.WorkItem{URL: "https://retry.test"}))

	first, ok, err := q.Claim(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = q.Claim(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok, "claimed item must stay invisible until its deadline")

	clk.Advance(31 * time.Second)
	second, ok, err := q.Claim(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, first.Body, second.Body)
	require.NotEqual(t, first.Token, second.Token)

	err = q.Acknowledge(ctx, first.Token)
	require.ErrorIs(t, err, queue.ErrUnknownClaim)
	require.NoError(t, q.Acknowledge(ctx, second.Token))
}

func TestQueueAcknowledgeUnknownToken(t *testing.T) {
	t.Parallel()

	q := NewQueue(time.Minute)
	err := q.Acknowledge(context.Background(), "nope")
	require.ErrorIs(t, err, queue.ErrUnknownClaim)
}

func TestQueueCancelation(t *testing.T) {
	t.Parallel()

	q := NewQueue(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := q.Claim(ctx, time.Second)
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, q.Enqueue(ctx, crawler.WorkItem{URL: "https://x.test"}), context.Canceled)
}

func TestQueueEnqueueRejectsEmptyURL(t *testing.T) {
	t.Parallel()

	q := NewQueue(time.Minute)
	err := q.Enqueue(context.Background(), crawler.WorkItem{})
	require.ErrorIs(t, err, crawler.ErrMalformedWorkItem)
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(time.Minute)
	done := make(chan error, 1)
	go func() {
		_, _, err := q.Claim(context.Background(), 5*time.Second)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	select {
	case err := <-done:
		require.ErrorIs(t, err, queue.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("close did not wake claimer")
	}
	require.ErrorIs(t, q.EnqueueRaw(context.Background(), []byte("{}")), queue.ErrClosed)
}
