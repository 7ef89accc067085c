package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"goalconnect/celebrate"
	"goalconnect/core"
)

const maxParallelPosts = 4

// Payload is the JSON body posted to every endpoint.
type Payload struct {
	Kind        string                 `json:"kind"` // "event" or "celebration"
	Event       *core.Event            `json:"event,omitempty"`
	Celebration *celebrate.Celebration `json:"celebration,omitempty"`
}

// Sink posts domain events and celebrations to configured HTTP endpoints.
// It is synchronous; the async event bus keeps it off the request path.
type Sink struct {
	client    *http.Client
	endpoints []string
	logger    *slog.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithClient overrides the HTTP client (defaults to 2s timeout).
func WithClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a webhook sink.
func New(endpoints []string, opts ...Option) *Sink {
	s := &Sink{
		client: &http.Client{Timeout: 2 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.endpoints = append([]string{}, endpoints...)
	return s
}

// Celebrate implements celebrate.Sink.
func (s *Sink) Celebrate(ctx context.Context, c celebrate.Celebration) error {
	return s.post(ctx, Payload{Kind: "celebration", Celebration: &c})
}

// OnEvent posts the event; it matches the event bus handler signature and
// logs delivery failures.
func (s *Sink) OnEvent(ctx context.Context, e core.Event) {
	if err := s.post(ctx, Payload{Kind: "event", Event: &e}); err != nil {
		s.logger.Warn("webhook delivery failed", "type", e.Type, "user_id", e.UserID, "error", err)
	}
}

func (s *Sink) post(ctx context.Context, p Payload) error {
	if len(s.endpoints) == 0 {
		return nil
	}
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	// Endpoints are independent: one failing does not cancel the others.
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(maxParallelPosts)
	for _, ep := range s.endpoints {
		g.Go(func() error {
			if err := s.send(ctx, ep, body); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (s *Sink) send(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", endpoint, err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("post %s: status %d", endpoint, resp.StatusCode)
	}
	return nil
}

var _ celebrate.Sink = (*Sink)(nil)
