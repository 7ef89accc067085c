package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"goalconnect/core"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the GoalConnect HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// AddPoints increments the given metric (default xp) for a user and returns the new total.
func (c *Client) AddPoints(ctx context.Context, userID string, delta int64, metric string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, ErrEmptyUserID
	}
	if metric == "" {
		metric = string(core.MetricXP)
	}

	u, err := url.Parse(fmt.Sprintf("%s/users/%s/points", c.baseURL, url.PathEscape(userID)))
	if err != nil {
		return 0, err
	}
	q := u.Query()
	q.Set("metric", metric)
	q.Set("delta", fmt.Sprintf("%d", delta))
	u.RawQuery = q.Encode()

	var body struct {
		Total int64 `json:"total"`
	}
	if err := c.do(ctx, http.MethodPost, u.String(), nil, &body); err != nil {
		return 0, err
	}
	return body.Total, nil
}

// RecordAction scores an action for a user and credits the resulting XP.
func (c *Client) RecordAction(ctx context.Context, userID string, req core.ScoringRequest) (ActionResult, error) {
	if strings.TrimSpace(userID) == "" {
		return ActionResult{}, ErrEmptyUserID
	}
	var out ActionResult
	err := c.do(ctx, http.MethodPost, c.userURL(userID, "actions"), req, &out)
	return out, err
}

// Score previews the points an action would earn without recording it.
func (c *Client) Score(ctx context.Context, req core.ScoringRequest) (core.ScoringResult, error) {
	var out core.ScoringResult
	err := c.do(ctx, http.MethodPost, c.baseURL+"/score", req, &out)
	return out, err
}

// CupScore asks the server how much the given cups need attention. levels may
// be nil to use the defaults.
func (c *Client) CupScore(ctx context.Context, cups []int, levels core.CupLevels) (CupResult, error) {
	body := map[string]any{"cups": cups}
	if levels != nil {
		body["levels"] = levels
	}
	var out CupResult
	err := c.do(ctx, http.MethodPost, c.baseURL+"/cups/score", body, &out)
	return out, err
}

// XPTable returns the server's active XP table.
func (c *Client) XPTable(ctx context.Context) (core.XPSpec, error) {
	var out core.XPSpec
	err := c.do(ctx, http.MethodGet, c.baseURL+"/xp", nil, &out)
	return out, err
}

// ClaimReward unlocks a reward for a user.
func (c *Client) ClaimReward(ctx context.Context, userID string, reward string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrEmptyUserID
	}
	var body struct {
		OK bool `json:"ok"`
	}
	if err := c.do(ctx, http.MethodPost, c.userURL(userID, "rewards/"+url.PathEscape(reward)), nil, &body); err != nil {
		return err
	}
	if !body.OK {
		return errors.New("reward not claimed")
	}
	return nil
}

// Celebrate requests a celebration. An empty reason is throttled per user by
// the server.
func (c *Client) Celebrate(ctx context.Context, userID string, reason core.CelebrationReason) error {
	if strings.TrimSpace(userID) == "" {
		return ErrEmptyUserID
	}
	return c.do(ctx, http.MethodPost, c.userURL(userID, "celebrations"), map[string]any{"reason": reason}, nil)
}

// SetCups stores a user's six cup levels.
func (c *Client) SetCups(ctx context.Context, userID string, levels core.CupLevels) error {
	if strings.TrimSpace(userID) == "" {
		return ErrEmptyUserID
	}
	return c.do(ctx, http.MethodPut, c.userURL(userID, "cups"), map[string]any{"levels": levels}, nil)
}

// Ledger returns up to limit of the user's most recent point entries.
func (c *Client) Ledger(ctx context.Context, userID string, limit int) (Ledger, error) {
	if strings.TrimSpace(userID) == "" {
		return Ledger{}, ErrEmptyUserID
	}
	u := c.userURL(userID, "ledger")
	if limit > 0 {
		u += "?limit=" + strconv.Itoa(limit)
	}
	var out Ledger
	err := c.do(ctx, http.MethodGet, u, nil, &out)
	return out, err
}

// Progress returns the user's level progress.
func (c *Client) Progress(ctx context.Context, userID string) (core.LevelProgress, error) {
	if strings.TrimSpace(userID) == "" {
		return core.LevelProgress{}, ErrEmptyUserID
	}
	var out core.LevelProgress
	err := c.do(ctx, http.MethodGet, c.userURL(userID, "progress"), nil, &out)
	return out, err
}

// GetUser fetches the current gamification state for a user.
func (c *Client) GetUser(ctx context.Context, userID string) (UserState, error) {
	if strings.TrimSpace(userID) == "" {
		return UserState{}, ErrEmptyUserID
	}
	u := fmt.Sprintf("%s/users/%s", c.baseURL, url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return UserState{}, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return UserState{}, err
	}
	defer resp.Body.Close()

	var st UserState
	if err := decodeJSON(resp, &st); err != nil {
		return UserState{}, err
	}
	return st, nil
}

// Health probes /healthz and returns status + storage check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	u := c.baseURL + "/healthz"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return HealthStatus{}, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HealthStatus{}, err
	}
	defer resp.Body.Close()

	var hs HealthStatus
	if err := decodeJSON(resp, &hs); err != nil {
		return HealthStatus{}, err
	}
	return hs, nil
}

// SubscribeEvents connects to the WebSocket stream and emits core.Event values.
// A non-empty userID limits the stream to that user's events; an empty one asks
// for every user and is only accepted by servers that require API keys.
// The returned channel closes when ctx is done or the connection drops.
func (c *Client) SubscribeEvents(ctx context.Context, userID string) (<-chan core.Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	wsURL := c.wsURL
	if userID != "" {
		wsURL += "?user=" + url.QueryEscape(userID)
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Event, 32)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				var evt core.Event
				if err := conn.ReadJSON(&evt); err != nil {
					return
				}
				select {
				case out <- evt:
				default:
					// drop if consumer is slow
				}
			}
		}
	}()
	return out, nil
}

func (c *Client) userURL(userID, suffix string) string {
	u := fmt.Sprintf("%s/users/%s", c.baseURL, url.PathEscape(userID))
	if suffix != "" {
		u += "/" + suffix
	}
	return u
}

func (c *Client) do(ctx context.Context, method, u string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, u, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u, nil)
	}
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, out)
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
