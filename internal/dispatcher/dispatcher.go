// Package dispatcher implements the Outbound Dispatcher (spec §4.2): a
// per-server-identifier HTTP POST queue with bounded retry and optional
// callback routing, sharing one default credential.
//
// Per-identifier serialization is grounded on the teacher's
// internal/websocket.Hub single-writer channel-loop idiom: each identifier
// owns one goroutine draining its own job channel, so posts to the same
// worker never race while posts to different workers proceed concurrently.
package dispatcher

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Config configures a Dispatcher.
type Config struct {
	// Scheme is the URL scheme used to build a worker's endpoint ("http" or "https").
	Scheme string
	// Port, if non-zero, is appended to the worker identifier as ":port".
	Port int
	// UserAgent sent on every outbound request.
	UserAgent string
	// DefaultCredential, if non-empty, signs every request body with
	// HMAC-SHA256 in the X-Signature header, grounded on
	// internal/notification/sender_webhook.go's hmacSHA256 helper.
	DefaultCredential string
	// MaxAttempts bounds the retry window (§4.2: "bounded retry").
	MaxAttempts int
	// RequestTimeout bounds a single HTTP round trip.
	RequestTimeout time.Duration
	// QueueDepth bounds each per-identifier job channel.
	QueueDepth int
}

func (c Config) withDefaults() Config {
	if c.Scheme == "" {
		c.Scheme = "https"
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 64
	}
	return c
}

// Callback receives the result of a post, invoked on the dispatcher's own
// per-identifier goroutine (§4.2: "invoked on the originating scheduling
// context").
type Callback func(resp []byte, err error)

type postJob struct {
	endpoint string
	body     []byte
	logText  string
	callback Callback
}

type worker struct {
	identifier string
	jobs       chan postJob
	done       chan struct{}
}

// Dispatcher is the Outbound Dispatcher. Safe for concurrent use.
type Dispatcher struct {
	cfg    Config
	client *http.Client
	log    *zap.Logger

	mu      sync.Mutex
	workers map[string]*worker

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Dispatcher. Call Close to stop all per-identifier
// goroutines cleanly.
func New(cfg Config, log *zap.Logger) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		log:      log.Named("dispatcher"),
		workers:  make(map[string]*worker),
		shutdown: make(chan struct{}),
	}
}

// Expunge drops the per-identifier client/queue for identifier; the next
// Post recreates it (§4.2).
func (d *Dispatcher) Expunge(identifier string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.workers[identifier]
	if !ok {
		return
	}
	close(w.jobs)
	delete(d.workers, identifier)
}

func (d *Dispatcher) workerFor(identifier string) *worker {
	d.mu.Lock()
	defer d.mu.Unlock()

	if w, ok := d.workers[identifier]; ok {
		return w
	}

	w := &worker{
		identifier: identifier,
		jobs:       make(chan postJob, d.cfg.QueueDepth),
		done:       make(chan struct{}),
	}
	d.workers[identifier] = w

	d.wg.Add(1)
	go d.run(w)

	return w
}

// run drains one worker's job queue, posting sequentially — the
// per-identifier serialization guarantee (§4.2). Cross-identifier posts run
// on separate goroutines and proceed concurrently.
func (d *Dispatcher) run(w *worker) {
	defer d.wg.Done()
	defer close(w.done)
	for {
		select {
		case job, ok := <-w.jobs:
			if !ok {
				return
			}
			resp, err := d.deliver(w.identifier, job)
			if err != nil {
				d.log.Warn("dispatcher: permanent delivery failure",
					zap.String("identifier", w.identifier),
					zap.String("log_text", job.logText),
					zap.Error(err))
			}
			if job.callback != nil {
				job.callback(resp, err)
			}
		case <-d.shutdown:
			return
		}
	}
}

func (d *Dispatcher) deliver(identifier string, job postJob) ([]byte, error) {
	url := fmt.Sprintf("%s://%s%s", d.cfg.Scheme, identifier, job.endpoint)

	var respBody []byte
	err := backoff.Retry(func() error {
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(job.body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if d.cfg.UserAgent != "" {
			req.Header.Set("User-Agent", d.cfg.UserAgent)
		}
		if d.cfg.DefaultCredential != "" {
			req.Header.Set("X-Signature", "sha256="+hmacSHA256(job.body, d.cfg.DefaultCredential))
		}

		resp, err := d.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("dispatcher: %s returned status %d", url, resp.StatusCode)
		}
		respBody = body
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(d.cfg.MaxAttempts-1)), context.Background()))

	return respBody, err
}

// Post enqueues an HTTP POST to identifier's endpoint. Never blocks the
// caller; delivery is best-effort with bounded retry (§4.2).
func (d *Dispatcher) Post(identifier, endpoint string, body []byte, logText string, callback Callback) {
	w := d.workerFor(identifier)
	select {
	case w.jobs <- postJob{endpoint: endpoint, body: body, logText: logText, callback: callback}:
	default:
		d.log.Warn("dispatcher: queue full, dropping post", zap.String("identifier", identifier), zap.String("log_text", logText))
	}
}

// PostJSON marshals v and enqueues it via Post.
func (d *Dispatcher) PostJSON(identifier, endpoint string, v interface{}, logText string, callback Callback) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("dispatcher: marshal: %w", err)
	}
	d.Post(identifier, endpoint, body, logText, callback)
	return nil
}

// PostEmpty enqueues a lifecycle command with an empty body (§4.2: "a
// special empty-body overload exists for lifecycle commands").
func (d *Dispatcher) PostEmpty(identifier, endpoint, logText string) {
	d.Post(identifier, endpoint, nil, logText, nil)
}

// Close stops every per-identifier goroutine and waits for them to exit.
func (d *Dispatcher) Close() {
	close(d.shutdown)
	d.wg.Wait()
}

func hmacSHA256(data []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}
