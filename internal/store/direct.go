package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	directTimeout  = 30 * time.Second
	reconnectDelay = 5 * time.Second
)

// Direct talks to the backing store itself. Writes are single REST
// calls; reads can hold a persistent event-stream subscription that
// pushes changes for as long as the session lives.
type Direct struct {
	restClient
	streamHC *http.Client // streams stay open, so no client timeout
	log      *zap.Logger
}

// NewDirect constructs a direct client for the store base URL.
func NewDirect(baseURL string, log *zap.Logger) *Direct {
	return &Direct{
		restClient: restClient{
			base: strings.TrimRight(baseURL, "/"),
			hc:   &http.Client{Timeout: directTimeout},
		},
		streamHC: &http.Client{},
		log:      log,
	}
}

// Subscribe opens an event stream on path and keeps it alive until the
// subscription is closed, reconnecting after transient failures.
func (d *Direct) Subscribe(ctx context.Context, path string) (*Subscription, error) {
	sctx, cancel := context.WithCancel(ctx)
	sub := newSubscription(cancel)

	go func() {
		defer close(sub.ch)
		for {
			if err := d.streamOnce(sctx, path, sub); err != nil && sctx.Err() == nil {
				d.log.Warn("event stream interrupted",
					zap.String("path", path),
					zap.Error(err),
				)
			}
			select {
			case <-sctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}()
	return sub, nil
}

// streamEvent is the payload of a put/patch stream event. Path is
// relative to the subscribed location ("/" means the whole location).
type streamEvent struct {
	Path string          `json:"path"`
	Data json.RawMessage `json:"data"`
}

// streamOnce holds one event-stream connection open, turning each
// change notification into a full snapshot for the subscriber.
func (d *Direct) streamOnce(ctx context.Context, path string, sub *Subscription) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url(path), nil)
	if err != nil {
		return &TransportError{Op: "subscribe", Path: path, Err: err}
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := d.streamHC.Do(req)
	if err != nil {
		return &TransportError{Op: "subscribe", Path: path, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{Op: "subscribe", Path: path, Status: resp.StatusCode}
	}

	var event string
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if done, err := d.handleEvent(ctx, path, event, data, sub); done {
				return err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return &TransportError{Op: "subscribe", Path: path, Err: err}
	}
	return nil
}

// handleEvent resolves one stream event into a snapshot delivery.
// Returns done=true when the stream must not be read further.
func (d *Direct) handleEvent(ctx context.Context, path, event, data string, sub *Subscription) (bool, error) {
	switch event {
	case "put", "patch":
		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return true, &TransportError{Op: "subscribe", Path: path, Err: err}
		}
		if event == "put" && (ev.Path == "/" || ev.Path == "") {
			sub.deliver(ctx, ev.Data)
			return false, nil
		}
		// A change below the subscribed location: refetch so the
		// consumer still sees a full snapshot, not a delta.
		snap, err := d.Get(ctx, path)
		if err != nil {
			return true, err
		}
		sub.deliver(ctx, snap)
		return false, nil
	case "keep-alive":
		return false, nil
	case "cancel", "auth_revoked":
		return true, &TransportError{Op: "subscribe", Path: path, Err: fmt.Errorf("stream closed by server: %s", event)}
	default:
		return false, nil
	}
}
