package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"goalconnect/core"
)

// UserState mirrors the public JSON surface of core.UserState.
type UserState struct {
	UserID  string              `json:"user_id"`
	Points  map[string]int64    `json:"points"`
	Badges  map[string]struct{} `json:"badges"`
	Levels  map[string]int64    `json:"levels"`
	Cups    []int               `json:"cups"`
	Updated time.Time           `json:"updated"`
}

// ActionResult is the response of RecordAction.
type ActionResult struct {
	core.ScoringResult
	Total int64 `json:"total"`
	Level int64 `json:"level"`
}

// Ledger is a user's recent point history plus per-kind totals.
type Ledger struct {
	Entries []core.LedgerEntry        `json:"entries"`
	ByKind  map[core.ActionKind]int64 `json:"by_kind"`
}

// CupResult is the response of CupScore.
type CupResult struct {
	Cups  []int `json:"cups"`
	Score int   `json:"score"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string                 `json:"status"`
	Checks map[string]interface{} `json:"checks"`
}

// APIError is a non-2xx response decoded from the server's error body.
type APIError struct {
	StatusCode int            `json:"-"`
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed: status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed: status %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsConfigLookup reports whether err is the server rejecting an unknown XP
// table key.
func IsConfigLookup(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == "config_lookup"
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ErrEmptyUserID is returned when user id is empty.
var ErrEmptyUserID = errors.New("user id is required")
