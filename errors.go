package netsim

// errors.go defines the kinds of error the simulator core raises.  Every
// error returned by a core operation wraps exactly one of the sentinels below,
// so callers test for a kind with errors.Is and render it with Classify.

import (
	"errors"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrDuplicateID       = errors.New("duplicate device id")
	ErrDuplicateLink     = errors.New("duplicate link")
	ErrSelfLink          = errors.New("self link")
	ErrNoPath            = errors.New("no path")
	ErrMalformedDocument = errors.New("malformed document")
)

// errKinds pairs each sentinel with the name Classify reports for it
var errKinds = []struct {
	err  error
	name string
}{
	{ErrInvalidInput, "InvalidInput"},
	{ErrNotFound, "NotFound"},
	{ErrDuplicateID, "DuplicateId"},
	{ErrDuplicateLink, "DuplicateLink"},
	{ErrSelfLink, "SelfLink"},
	{ErrNoPath, "NoPath"},
	{ErrMalformedDocument, "MalformedDocument"},
}

// Classify maps an error returned by the core to the name of its kind.
// The nil error maps to the empty string, an error that wraps none of the
// sentinels maps to "Unknown".
func Classify(err error) string {
	if err == nil {
		return ""
	}
	for _, kind := range errKinds {
		if errors.Is(err, kind.err) {
			return kind.name
		}
	}
	return "Unknown"
}
