package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/quilt-im/quilt/internal/metrics"
)

// ClientConfig holds homeserver connection settings.
type ClientConfig struct {
	HomeserverURL  string        // https://matrix.example.org
	AccessToken    string        // bearer token for the client-server API
	RequestTimeout time.Duration // per-request timeout for non-sync calls
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HomeserverURL:  "http://localhost:8008",
		AccessToken:    "",
		RequestTimeout: 30 * time.Second,
	}
}

// Client implements API over the Matrix client-server HTTP API.
//
// Requests run on their own goroutines; outcomes are handed to the
// schedule function, which must execute them on the client run loop.
type Client struct {
	config   ClientConfig
	http     *http.Client
	schedule func(func())
}

// NewClient creates a homeserver client. schedule is invoked with the
// callback closure for every finished request; passing a function that
// runs closures on a single goroutine gives the room layer its
// single-threaded delivery guarantee.
func NewClient(config ClientConfig, schedule func(func())) *Client {
	return &Client{
		config:   config,
		http:     &http.Client{},
		schedule: schedule,
	}
}

// Request is one in-flight homeserver call. Cancellation and completion
// race on the done flag: whichever sets it first wins, so a canceled
// request never delivers a late callback.
type Request struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	done bool
}

// ID returns the request correlation id.
func (r *Request) ID() string { return r.id }

// finish marks the request complete and returns true if the callback
// should still be delivered.
func (r *Request) finish() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return false
	}
	r.done = true
	return true
}

// Cancel aborts an in-flight request. It is synchronous: after it
// returns, the handle's callbacks are guaranteed not to fire.
func (c *Client) Cancel(h Handle) {
	req, ok := h.(*Request)
	if !ok || req == nil {
		return
	}
	req.mu.Lock()
	already := req.done
	req.done = true
	req.mu.Unlock()

	req.cancel()
	if !already {
		log.Printf("transport: canceled request id=%s", req.id)
	}
}

// SendEvent PUTs a room event with the given transaction id. Exactly one
// of the callbacks is scheduled unless the request is canceled first.
func (c *Client) SendEvent(roomID, eventType, txnID string, content json.RawMessage, cb SendCallbacks) Handle {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/%s/%s",
		url.PathEscape(roomID), url.PathEscape(eventType), url.PathEscape(txnID))

	req := c.newRequest()
	go func() {
		start := time.Now()
		status, body, err := c.do(req, http.MethodPut, path, "application/json", bytes.NewReader(content))
		metrics.SendLatency.Observe(time.Since(start).Seconds())

		c.deliver(req, status, body, err,
			func(body []byte) { cb.OnSuccess(gjson.GetBytes(body, "event_id").String()) },
			cb.OnError, cb.OnBadResponse)
	}()
	return req
}

// Upload POSTs media content and reports the assigned content URI.
func (c *Client) Upload(contentType string, data []byte, cb UploadCallbacks) Handle {
	req := c.newRequest()
	go func() {
		start := time.Now()
		status, body, err := c.do(req, http.MethodPost, "/_matrix/media/v3/upload", contentType, bytes.NewReader(data))
		metrics.UploadLatency.Observe(time.Since(start).Seconds())

		c.deliver(req, status, body, err,
			func(body []byte) { cb.OnSuccess(gjson.GetBytes(body, "content_uri").String()) },
			cb.OnError, cb.OnBadResponse)
	}()
	return req
}

// LeaveRoom notifies the homeserver that we are leaving. The outcome is
// only logged: by the time this is called the local room state is being
// torn down regardless, and a failure will surface on the next sync.
func (c *Client) LeaveRoom(roomID string) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/leave", url.PathEscape(roomID))
	req := c.newRequest()
	go func() {
		status, _, err := c.do(req, http.MethodPost, path, "application/json", bytes.NewReader([]byte("{}")))
		if err != nil {
			log.Printf("transport: leave %s failed: %v", roomID, err)
		} else if status != http.StatusOK {
			log.Printf("transport: leave %s got status %d", roomID, status)
		}
	}()
}

// Sync performs one long-poll sync call. It blocks until the homeserver
// responds or ctx is done, and returns the raw response body plus the
// next_batch token to resume from. Unlike the event calls this is
// synchronous: the sync loop goroutine owns it.
func (c *Client) Sync(ctx context.Context, since string, timeout time.Duration) ([]byte, string, error) {
	q := url.Values{}
	q.Set("timeout", fmt.Sprintf("%d", timeout.Milliseconds()))
	if since != "" {
		q.Set("since", since)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.config.HomeserverURL+"/_matrix/client/v3/sync?"+q.Encode(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("transport: build sync request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.config.AccessToken)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("transport: sync: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("transport: read sync body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("transport: sync got status %d: %s", resp.StatusCode, truncate(body))
	}

	metrics.SyncsTotal.Inc()
	return body, gjson.GetBytes(body, "next_batch").String(), nil
}

func (c *Client) newRequest() *Request {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.RequestTimeout)
	return &Request{id: uuid.NewString(), ctx: ctx, cancel: cancel}
}

// do executes the HTTP call for req and returns status, body, error.
func (c *Client) do(req *Request, method, path, contentType string, body io.Reader) (int, []byte, error) {
	httpReq, err := http.NewRequestWithContext(req.ctx, method, c.config.HomeserverURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.config.AccessToken)
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// deliver routes the request outcome to the right callback on the run
// loop, unless the request was canceled in the meantime.
func (c *Client) deliver(req *Request, status int, body []byte, err error,
	onSuccess func(body []byte), onError func(string), onBadResponse func(int, []byte)) {

	if !req.finish() {
		return
	}
	req.cancel()

	switch {
	case err != nil:
		log.Printf("transport: request id=%s failed: %v", req.id, err)
		c.schedule(func() { onError(err.Error()) })
	case status != http.StatusOK:
		log.Printf("transport: request id=%s got status %d: %s", req.id, status, truncate(body))
		c.schedule(func() { onBadResponse(status, body) })
	default:
		c.schedule(func() { onSuccess(body) })
	}
}

// truncate limits response bodies quoted in logs.
func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
