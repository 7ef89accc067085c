package core

import (
	"errors"
	"fmt"
)

// ErrConfigLookup matches every *ConfigLookupError via errors.Is.
var ErrConfigLookup = errors.New("xp config lookup failed")

// ConfigLookupError reports an action kind or sub-key missing from the XP table.
// It signals a caller/config mismatch and must never be turned into zero points.
type ConfigLookupError struct {
	Kind   string
	SubKey string
	Reason string
}

func (e *ConfigLookupError) Error() string {
	msg := fmt.Sprintf("xp config: no entry for %q", e.Kind)
	if e.SubKey != "" {
		msg = fmt.Sprintf("xp config: no entry for %q/%q", e.Kind, e.SubKey)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ConfigLookupError) Is(target error) bool { return target == ErrConfigLookup }
