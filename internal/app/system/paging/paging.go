// internal/app/system/paging/paging.go
package paging

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/waffle/pantry/query"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrBadLimit    = errors.New("limit must be a positive integer")
	ErrBadBefore   = errors.New("before must be an RFC 3339 time or Unix milliseconds")
	ErrBadBeforeID = errors.New("before_id must be a message id and needs before")
)

// Params is a history page request: at most Limit items strictly older than
// Before, or older than (Before, BeforeID) when BeforeID is set. Zero values
// mean "not given"; the caller applies its defaults.
type Params struct {
	Limit    int
	Before   time.Time
	BeforeID primitive.ObjectID
}

// Parse reads the "limit", "before" and "before_id" query parameters.
func Parse(r *http.Request) (Params, error) {
	var p Params

	if s := strings.TrimSpace(query.Get(r, "limit")); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return p, ErrBadLimit
		}
		p.Limit = n
	}

	if s := strings.TrimSpace(query.Get(r, "before")); s != "" {
		t, err := ParseTime(s)
		if err != nil {
			return p, ErrBadBefore
		}
		p.Before = t
	}

	if s := strings.TrimSpace(query.Get(r, "before_id")); s != "" {
		oid, err := primitive.ObjectIDFromHex(s)
		if err != nil || p.Before.IsZero() {
			return p, ErrBadBeforeID
		}
		p.BeforeID = oid
	}

	return p, nil
}

// ParseTime accepts Unix milliseconds or RFC 3339 (with optional fractional
// seconds). The result is in UTC.
func ParseTime(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
