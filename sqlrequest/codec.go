package sqlrequest

import (
	"bytes"
	"fmt"
	"sync"
	"time"
	_ "time/tzdata" // zone ids must resolve the same way on every node

	"github.com/tuannm99/novaquery/internal/wire"
)

// Wire layout, fixed order, no schema:
//
//	query      string
//	time zone  string (zone id, e.g. "UTC", "America/New_York")
//	session id optional string

// ParseTimeZone resolves a canonical zone id. Empty and "Local" are
// rejected: they mean different zones on different hosts.
func ParseTimeZone(id string) (*time.Location, error) {
	if id == "" || id == "Local" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimeZone, id)
	}
	loc, err := time.LoadLocation(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimeZone, id)
	}
	return loc, nil
}

// canonicalIDs remembers zone ids already checked by canonicalZone.
var canonicalIDs sync.Map // string -> bool

// canonicalZone reports whether loc's name decodes back through
// ParseTimeZone.
func canonicalZone(loc *time.Location) bool {
	id := loc.String()
	if ok, seen := canonicalIDs.Load(id); seen {
		return ok.(bool)
	}
	_, err := ParseTimeZone(id)
	canonicalIDs.Store(id, err == nil)
	return err == nil
}

// Serialize writes r without validating it. A nil time zone means the
// caller skipped validation and is treated as a programming error. A zone
// whose name does not decode is refused with ErrUnknownTimeZone before
// anything is written.
func (r *Request) Serialize(out *wire.Output) error {
	if r.timeZone == nil {
		panic("sqlrequest: Serialize called with nil time zone; validate first")
	}
	if !canonicalZone(r.timeZone) {
		return fmt.Errorf("sqlrequest: encode time_zone: %w: %q", ErrUnknownTimeZone, r.timeZone.String())
	}
	if err := out.WriteString(r.query); err != nil {
		return err
	}
	if err := out.WriteString(r.timeZone.String()); err != nil {
		return err
	}
	return out.WriteOptionalString(r.sessionID)
}

// Deserialize reads one request. It stops at the first bad field and
// returns a *DecodeError; it does not run Validate.
func Deserialize(in *wire.Input) (*Request, error) {
	query, err := in.ReadString()
	if err != nil {
		return nil, &DecodeError{Field: "query", Err: err}
	}
	zoneID, err := in.ReadString()
	if err != nil {
		return nil, &DecodeError{Field: "time_zone", Err: err}
	}
	tz, err := ParseTimeZone(zoneID)
	if err != nil {
		return nil, &DecodeError{Field: "time_zone", Err: err}
	}
	sessionID, err := in.ReadOptionalString()
	if err != nil {
		return nil, &DecodeError{Field: "session_id", Err: err}
	}
	return &Request{query: query, timeZone: tz, sessionID: sessionID}, nil
}

func (r *Request) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Serialize(wire.NewOutput(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary leaves r untouched when decoding fails.
func (r *Request) UnmarshalBinary(data []byte) error {
	decoded, err := Deserialize(wire.NewInput(bytes.NewReader(data)))
	if err != nil {
		return err
	}
	*r = *decoded
	return nil
}
