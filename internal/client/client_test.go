package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   5,
		BaseDelay:     time.Millisecond,
		MaxDelay:      10 * time.Millisecond,
		Multiplier:    2,
		RetryStatuses: []int{429, 503},
	}
}

func TestReferenceCounting(t *testing.T) {
	c := New("http://localhost:1", fastPolicy())

	require.NoError(t, c.Connect())
	require.NoError(t, c.Connect())
	require.NoError(t, c.Connect())
	assert.Equal(t, 3, sessionRefs(c.key))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, sessionRefs(c.key), "session must survive the first two closes")

	require.NoError(t, c.Close())
	assert.Equal(t, 0, sessionRefs(c.key), "last close tears the session down")

	assert.Error(t, c.Close(), "close without a matching connect")
}

func TestSessionSharedAcrossHandles(t *testing.T) {
	a := New("http://localhost:1", fastPolicy())
	b := New("http://localhost:1", fastPolicy())
	require.Equal(t, a.key, b.key)

	require.NoError(t, a.Connect())
	require.NoError(t, b.Connect())
	assert.Equal(t, 2, sessionRefs(a.key))

	// One sibling closing must not tear down the shared session.
	require.NoError(t, a.Close())
	assert.Equal(t, 1, sessionRefs(b.key))
	require.NoError(t, b.Close())
	assert.Equal(t, 0, sessionRefs(b.key))
}

func TestDistinctPoliciesGetDistinctSessions(t *testing.T) {
	a := New("http://localhost:1", fastPolicy())
	other := fastPolicy()
	other.MaxAttempts = 2
	b := New("http://localhost:1", other)
	assert.NotEqual(t, a.key, b.key)
}

func TestRetryOnAllowListedStatus(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer ts.Close()

	c := New(ts.URL, fastPolicy())
	require.NoError(t, c.Connect())
	defer c.Close()

	var out map[string]string
	require.NoError(t, c.do(context.Background(), http.MethodGet, "/health", nil, &out))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, "ok", out["status"])
}

func TestNonRetryableStatusPropagatesImmediately(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer ts.Close()

	c := New(ts.URL, fastPolicy())
	require.NoError(t, c.Connect())
	defer c.Close()

	err := c.do(context.Background(), http.MethodGet, "/", nil, nil)
	require.Error(t, err)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "no attempt may be consumed on a non-listed status")
}

func TestRetriesExhausted(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	policy := fastPolicy()
	policy.MaxAttempts = 3
	c := New(ts.URL, policy)
	require.NoError(t, c.Connect())
	defer c.Close()

	err := c.do(context.Background(), http.MethodGet, "/", nil, nil)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestBackoffDelay(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:  time.Second,
		MaxDelay:   5 * time.Second,
		Multiplier: 2,
	}
	assert.Equal(t, 2*time.Second, policy.delay(1))
	assert.Equal(t, 4*time.Second, policy.delay(2))
	assert.Equal(t, 5*time.Second, policy.delay(3), "delay is capped at MaxDelay")

	jittered := policy
	jittered.Jitter = 0.25
	for k := 1; k <= 3; k++ {
		d := jittered.delay(k)
		assert.LessOrEqual(t, d, 5*time.Second)
		assert.GreaterOrEqual(t, d, time.Duration(float64(2*time.Second)*0.75))
	}
}

func TestRequestWithoutConnect(t *testing.T) {
	c := New("http://localhost:1", fastPolicy())
	err := c.do(context.Background(), http.MethodGet, "/", nil, nil)
	assert.Error(t, err)
}
