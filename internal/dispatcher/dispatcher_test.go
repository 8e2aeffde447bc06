package dispatcher

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPostDeliversBody(t *testing.T) {
	var mu sync.Mutex
	var gotBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		mu.Lock()
		gotBody = string(buf[:n])
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(Config{Scheme: "http", MaxAttempts: 2, RequestTimeout: time.Second}, zap.NewNop())
	defer d.Close()

	identifier := strings.TrimPrefix(srv.URL, "http://")

	done := make(chan struct{})
	d.Post(identifier, "/hook", []byte(`{"hello":"world"}`), "test", func(resp []byte, err error) {
		require.NoError(t, err)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, `{"hello":"world"}`, gotBody)
}

func TestPostRetriesOnFailureThenSucceeds(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(Config{Scheme: "http", MaxAttempts: 3, RequestTimeout: time.Second}, zap.NewNop())
	defer d.Close()

	identifier := strings.TrimPrefix(srv.URL, "http://")

	done := make(chan error, 1)
	d.Post(identifier, "/hook", nil, "test", func(_ []byte, err error) {
		done <- err
	})

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, attempts, 2)
}

func TestPostToDistinctIdentifiersDoesNotSerialize(t *testing.T) {
	// srvA only answers OK once srvB has been reached, so the post to A
	// succeeds only if the post to B runs while A's is still in flight.
	bSeen := make(chan struct{})
	srvA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-bSeen:
			w.WriteHeader(http.StatusOK)
		case <-time.After(time.Second):
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srvA.Close()
	srvB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(bSeen)
		w.WriteHeader(http.StatusOK)
	}))
	defer srvB.Close()

	d := New(Config{Scheme: "http", MaxAttempts: 1, RequestTimeout: 2 * time.Second}, zap.NewNop())
	defer d.Close()

	identifierA := strings.TrimPrefix(srvA.URL, "http://")
	identifierB := strings.TrimPrefix(srvB.URL, "http://")

	var wg sync.WaitGroup
	var errA, errB error
	wg.Add(2)
	d.Post(identifierA, "/a", nil, "a", func(_ []byte, err error) { errA = err; wg.Done() })
	d.Post(identifierB, "/b", nil, "b", func(_ []byte, err error) { errB = err; wg.Done() })

	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out")
	}
	assert.NoError(t, errA)
	assert.NoError(t, errB)
}
