package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/client/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func newTestCache(t *testing.T, opts ...Option) (*Cache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now), WithBackoff(time.Millisecond)}, opts...)
	c := NewCache(opts...)
	t.Cleanup(c.Wait)
	return c, clock
}

// counter returns a fetch function yielding "<prefix>-<n>" for the n-th call.
func counter(calls *atomic.Int32, value string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		n := calls.Add(1)
		return value + "-" + string(rune('0'+n)), nil
	}
}

func TestKeyMatches(t *testing.T) {
	tests := []struct {
		name   string
		key    Key
		prefix Key
		want   bool
	}{
		{name: "exact", key: PostKey("1"), prefix: PostKey("1"), want: true},
		{name: "other scope", key: PostKey("1"), prefix: PostKey("2"), want: false},
		{name: "kind prefix", key: PostsKey("7"), prefix: Key{Kind: KindPosts}, want: true},
		{name: "other kind", key: CommentsKey("1"), prefix: Key{Kind: KindPost}, want: false},
		{name: "match all", key: CommentsKey("1"), prefix: Key{}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.Matches(tt.prefix))
		})
	}

	assert.Equal(t, "post/3", PostKey("3").String())
	assert.Equal(t, "posts", Key{Kind: KindPosts}.String())
}

func TestFetch_CachesWhileFresh(t *testing.T) {
	c, clock := newTestCache(t, WithStaleTime(time.Minute))
	ctx := context.Background()
	var calls atomic.Int32
	q := Query[string]{Key: PostKey("1"), Fn: counter(&calls, "v"), Enabled: true}

	v, err := Fetch(ctx, c, q)
	require.NoError(t, err)
	assert.Equal(t, "v-1", v)

	v, err = Fetch(ctx, c, q)
	require.NoError(t, err)
	assert.Equal(t, "v-1", v)
	assert.EqualValues(t, 1, calls.Load())

	clock.Advance(time.Minute)
	v, err = Fetch(ctx, c, q)
	require.NoError(t, err)
	assert.Equal(t, "v-2", v)

	snap := c.Peek(PostKey("1"))
	assert.Equal(t, StatusSuccess, snap.Status)
	assert.False(t, snap.Stale)
	got, ok := Data[string](snap)
	require.True(t, ok)
	assert.Equal(t, "v-2", got)
}

func TestFetch_Disabled(t *testing.T) {
	c, _ := newTestCache(t)
	var calls atomic.Int32

	_, err := Fetch(context.Background(), c, Query[string]{Key: PostKey(""), Fn: counter(&calls, "v")})
	require.ErrorIs(t, err, ErrDisabled)
	assert.Zero(t, calls.Load())
	assert.Equal(t, StatusIdle, c.Peek(PostKey("")).Status)
}

func TestFetch_DeduplicatesConcurrentLoads(t *testing.T) {
	c, _ := newTestCache(t)
	release := make(chan struct{})
	var calls atomic.Int32

	q := Query[int]{Key: PostsKey("1"), Enabled: true, Fn: func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}}

	const n = 8
	var wg sync.WaitGroup
	results := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := Fetch(context.Background(), c, q)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	require.Eventually(t, func() bool { return c.Peek(PostsKey("1")).IsLoading() }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestFetch_ErrorKeepsPreviousData(t *testing.T) {
	c, _ := newTestCache(t, WithStaleTime(0))
	ctx := context.Background()
	fail := false

	q := Query[string]{Key: PostKey("1"), Enabled: true, Fn: func(context.Context) (string, error) {
		if fail {
			return "", &client.RequestError{Op: "get post", Kind: client.ErrNotFound}
		}
		return "ok", nil
	}}

	_, err := Fetch(ctx, c, q)
	require.NoError(t, err)

	fail = true
	_, err = Fetch(ctx, c, q)
	require.ErrorIs(t, err, client.ErrNotFound)

	snap := c.Peek(PostKey("1"))
	assert.Equal(t, StatusError, snap.Status)
	assert.ErrorIs(t, snap.Err, client.ErrNotFound)
	assert.Equal(t, "ok", snap.Data)
}

func TestFetch_RetriesTransientErrors(t *testing.T) {
	c, _ := newTestCache(t)
	var calls atomic.Int32

	q := Query[string]{Key: PostsKey("1"), Enabled: true, Retries: 2, Fn: func(context.Context) (string, error) {
		if calls.Add(1) < 3 {
			return "", &client.RequestError{Op: "list posts", Kind: client.ErrUnavailable}
		}
		return "posts", nil
	}}

	v, err := Fetch(context.Background(), c, q)
	require.NoError(t, err)
	assert.Equal(t, "posts", v)
	assert.EqualValues(t, 3, calls.Load())
}

func TestFetch_GivesUpAfterRetries(t *testing.T) {
	c, _ := newTestCache(t)
	var calls atomic.Int32

	q := Query[string]{Key: PostsKey("1"), Enabled: true, Retries: 2, Fn: func(context.Context) (string, error) {
		calls.Add(1)
		return "", &client.RequestError{Op: "list posts", StatusCode: 500, Kind: client.ErrServer}
	}}

	_, err := Fetch(context.Background(), c, q)
	require.ErrorIs(t, err, client.ErrServer)
	assert.EqualValues(t, 3, calls.Load())
}

func TestFetch_DoesNotRetryPermanentErrors(t *testing.T) {
	c, _ := newTestCache(t)
	var calls atomic.Int32

	q := Query[string]{Key: PostsKey("1"), Enabled: true, Retries: 2, Fn: func(context.Context) (string, error) {
		calls.Add(1)
		return "", &client.RequestError{Op: "list posts", StatusCode: 400, Kind: client.ErrRejected}
	}}

	_, err := Fetch(context.Background(), c, q)
	require.ErrorIs(t, err, client.ErrRejected)
	assert.EqualValues(t, 1, calls.Load())
}

func TestFetch_CallerCancellation(t *testing.T) {
	c, _ := newTestCache(t)
	release := make(chan struct{})

	q := Query[string]{Key: PostKey("1"), Enabled: true, Fn: func(context.Context) (string, error) {
		<-release
		return "late", nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Fetch(ctx, c, q)
	require.ErrorIs(t, err, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		return c.Peek(PostKey("1")).Status == StatusSuccess
	}, time.Second, time.Millisecond, "the detached load still completes")
}

func TestInvalidate_NextFetchReloads(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	var calls atomic.Int32
	q := Query[string]{Key: PostsKey("1"), Fn: counter(&calls, "v"), Enabled: true}

	_, err := Fetch(ctx, c, q)
	require.NoError(t, err)

	c.Invalidate(Key{Kind: KindComments})
	v, _ := Fetch(ctx, c, q)
	assert.Equal(t, "v-1", v, "unrelated invalidation keeps the entry fresh")

	c.Invalidate(PostsKey("1"))
	assert.True(t, c.Peek(PostsKey("1")).Stale)

	v, err = Fetch(ctx, c, q)
	require.NoError(t, err)
	assert.Equal(t, "v-2", v)
	assert.False(t, c.Peek(PostsKey("1")).Stale)
}

func TestInvalidate_RefetchesSubscribedEntries(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	var calls atomic.Int32

	subscribed := Query[string]{Key: PostsKey("1"), Fn: counter(&calls, "list"), Enabled: true}
	var other atomic.Int32
	unsubscribed := Query[string]{Key: PostsKey("2"), Fn: counter(&other, "other"), Enabled: true}

	_, err := Fetch(ctx, c, subscribed)
	require.NoError(t, err)
	_, err = Fetch(ctx, c, unsubscribed)
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []Snapshot
	unsubscribe := c.Subscribe(PostsKey("1"), func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s)
	})
	defer unsubscribe()

	c.Invalidate(Key{Kind: KindPosts})
	c.Wait()

	assert.EqualValues(t, 2, calls.Load())
	assert.EqualValues(t, 1, other.Load())

	snap := c.Peek(PostsKey("1"))
	assert.Equal(t, "list-2", snap.Data)
	assert.False(t, snap.Stale)
	assert.True(t, c.Peek(PostsKey("2")).Stale)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.True(t, seen[0].Stale)
	assert.Equal(t, StatusSuccess, seen[len(seen)-1].Status)
	assert.Equal(t, "list-2", seen[len(seen)-1].Data)
}

func TestInvalidate_DiscardsInFlightResult(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	var calls atomic.Int32
	first := make(chan struct{})

	q := Query[string]{Key: PostsKey("1"), Enabled: true, Fn: func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			<-first
			return "old", nil
		}
		return "new", nil
	}}

	done := make(chan string)
	go func() {
		v, _ := Fetch(ctx, c, q)
		done <- v
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	c.Invalidate(PostsKey("1"))
	c.Wait()
	assert.Equal(t, "new", c.Peek(PostsKey("1")).Data)

	close(first)
	assert.Equal(t, "old", <-done)
	assert.Equal(t, "new", c.Peek(PostsKey("1")).Data, "a superseded load must not overwrite a newer one")
}

func TestRefetch(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	var calls atomic.Int32
	q := Query[string]{Key: PostsKey("1"), Fn: counter(&calls, "v"), Enabled: true}

	require.ErrorIs(t, c.Refetch(ctx, PostsKey("1")), ErrUnknownKey)

	_, err := Fetch(ctx, c, q)
	require.NoError(t, err)

	require.NoError(t, c.Refetch(ctx, PostsKey("1")))
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, "v-2", c.Peek(PostsKey("1")).Data)
}

func TestClear_DropsEntriesAndLateResults(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	release := make(chan struct{})

	q := Query[string]{Key: PostKey("1"), Enabled: true, Fn: func(context.Context) (string, error) {
		<-release
		return "secret", nil
	}}

	var last atomic.Value
	unsubscribe := c.Subscribe(PostKey("1"), func(s Snapshot) { last.Store(s) })
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = Fetch(ctx, c, q)
	}()
	require.Eventually(t, func() bool { return c.Peek(PostKey("1")).IsLoading() }, time.Second, time.Millisecond)

	c.Clear()
	assert.Equal(t, StatusIdle, last.Load().(Snapshot).Status)

	close(release)
	<-done
	assert.Equal(t, Snapshot{}, c.Peek(PostKey("1")))
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	c, _ := newTestCache(t)
	var calls atomic.Int32
	var notified atomic.Int32

	unsubscribe := c.Subscribe(PostKey("1"), func(Snapshot) { notified.Add(1) })
	_, err := Fetch(context.Background(), c, Query[string]{Key: PostKey("1"), Fn: counter(&calls, "v"), Enabled: true})
	require.NoError(t, err)
	assert.EqualValues(t, 2, notified.Load(), "loading then success")

	unsubscribe()
	unsubscribe()
	require.NoError(t, c.Refetch(context.Background(), PostKey("1")))
	assert.EqualValues(t, 2, notified.Load())
}

func TestLock_SerializesOverlappingKeys(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	unlock, err := c.Lock(ctx, PostsKey("1"), PostKey("2"), PostsKey("1"))
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		release, err := c.Lock(ctx, PostKey("2"))
		if err != nil {
			return
		}
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("lock acquired while held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock not released")
	}

	// Disjoint keys do not block.
	unlockA, err := c.Lock(ctx, CommentsKey("1"))
	require.NoError(t, err)
	unlockB, err := c.Lock(ctx, CommentsKey("2"))
	require.NoError(t, err)
	unlockB()
	unlockA()
}

func TestLock_GivesUpWhenContextEnds(t *testing.T) {
	c, _ := newTestCache(t)

	unlock, err := c.Lock(context.Background(), PostsKey("1"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	// "post/2" sorts before "posts/1", so it is taken before the wait.
	_, err = c.Lock(ctx, PostsKey("1"), PostKey("2"))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The partially taken key was released.
	other, err := c.Lock(context.Background(), PostKey("2"))
	require.NoError(t, err)
	other()

	unlock()
	again, err := c.Lock(context.Background(), PostsKey("1"), PostKey("2"))
	require.NoError(t, err)
	again()
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "idle", StatusIdle.String())
	assert.Equal(t, "loading", StatusLoading.String())
	assert.Equal(t, "success", StatusSuccess.String())
	assert.Equal(t, "error", StatusError.String())
	assert.Equal(t, "unknown", Status(9).String())
}

func TestWithRetryable(t *testing.T) {
	errFlaky := errors.New("flaky")
	c, _ := newTestCache(t, WithRetryable(func(err error) bool { return errors.Is(err, errFlaky) }))
	var calls atomic.Int32

	q := Query[string]{Key: PostsKey("1"), Enabled: true, Retries: 1, Fn: func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "", errFlaky
		}
		return "ok", nil
	}}

	v, err := Fetch(context.Background(), c, q)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}
