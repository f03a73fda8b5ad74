// Package sqlrequest defines the request envelope that carries a SQL
// statement, the time zone it runs in and an optional cursor id between
// clients and nodes.
//
// A Request is staged with the setters, checked with Validate (or
// IntoValidated) and only then serialized or dispatched. Decoded requests
// are never validated implicitly: the peer may run an older protocol that
// skipped the checks.
package sqlrequest

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DefaultTimeZone is used when a request is built without an explicit zone.
var DefaultTimeZone = time.UTC

const (
	msgQueryMissing    = "sql query is missing"
	msgTimeZoneMissing = "timezone is missing"
	msgTimeZoneNoID    = "timezone is not a canonical zone id"
)

// Request is a mutable query envelope. It does no locking: once validated
// and shared it must be treated as read-only.
//
// Equality and Hash cover the query and the session id only. Two requests
// that differ only by time zone are the same logical request for caching
// and deduplication.
type Request struct {
	query     string
	timeZone  *time.Location
	sessionID *string
}

// New stores the given values as-is. A nil tz stays nil and fails
// validation.
func New(query string, tz *time.Location, sessionID *string) *Request {
	r := &Request{query: query, timeZone: tz}
	if sessionID != nil {
		id := *sessionID
		r.sessionID = &id
	}
	return r
}

// NewQuery builds a first request in DefaultTimeZone.
func NewQuery(query string) *Request {
	return &Request{query: query, timeZone: DefaultTimeZone}
}

// NewContinuation builds a follow-up request for an open cursor.
func NewContinuation(query string, tz *time.Location, sessionID string) *Request {
	return &Request{query: query, timeZone: tz, sessionID: &sessionID}
}

func (r *Request) Query() string { return r.query }

func (r *Request) TimeZone() *time.Location { return r.timeZone }

// SessionID reports the cursor id and whether one is set.
func (r *Request) SessionID() (string, bool) {
	if r.sessionID == nil {
		return "", false
	}
	return *r.sessionID, true
}

func (r *Request) SetQuery(query string) *Request {
	r.query = query
	return r
}

func (r *Request) SetTimeZone(tz *time.Location) *Request {
	r.timeZone = tz
	return r
}

func (r *Request) SetSessionID(id string) *Request {
	r.sessionID = &id
	return r
}

func (r *Request) ClearSessionID() *Request {
	r.sessionID = nil
	return r
}

// Validate runs every check and reports all failures at once. It returns
// nil or a *ValidationError and never mutates the request. Zones without a
// loadable IANA name (time.Local, most FixedZones) fail: they could be
// encoded but a peer could not decode them.
func (r *Request) Validate() error {
	var failures []string
	if strings.TrimSpace(r.query) == "" {
		failures = append(failures, msgQueryMissing)
	}
	switch {
	case r.timeZone == nil:
		failures = append(failures, msgTimeZoneMissing)
	case !canonicalZone(r.timeZone):
		failures = append(failures, fmt.Sprintf("%s: %q", msgTimeZoneNoID, r.timeZone.String()))
	}
	if len(failures) == 0 {
		return nil
	}
	return &ValidationError{Failures: failures}
}

// Equal compares query and session id. The time zone is deliberately left
// out; see the Request doc.
func (r *Request) Equal(other *Request) bool {
	if r == other {
		return true
	}
	if r == nil || other == nil {
		return false
	}
	if r.query != other.query {
		return false
	}
	a, aok := r.SessionID()
	b, bok := other.SessionID()
	return aok == bok && a == b
}

// Hash is consistent with Equal and stable across processes, so nodes
// derive the same cache keys for the same request.
func (r *Request) Hash() uint64 {
	d := xxhash.New()
	var n [4]byte

	binary.BigEndian.PutUint32(n[:], uint32(len(r.query)))
	_, _ = d.Write(n[:])
	_, _ = d.WriteString(r.query)

	if id, ok := r.SessionID(); ok {
		_, _ = d.Write([]byte{1})
		binary.BigEndian.PutUint32(n[:], uint32(len(id)))
		_, _ = d.Write(n[:])
		_, _ = d.WriteString(id)
	} else {
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}

// Description is a log label; it plays no part in equality or encoding.
func (r *Request) Description() string {
	sid := "null"
	if id, ok := r.SessionID(); ok {
		sid = id
	}
	return fmt.Sprintf("SQL [%s/%s]", r.query, sid)
}

func (r *Request) String() string { return r.Description() }

// Clone returns an independent copy.
func (r *Request) Clone() *Request {
	return New(r.query, r.timeZone, r.sessionID)
}
