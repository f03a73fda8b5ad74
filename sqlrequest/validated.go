package sqlrequest

import (
	"time"

	"github.com/tuannm99/novaquery/internal/wire"
)

// Validated is a request that passed Validate. Values from IntoValidated
// never hold a blank query or a zone that cannot be encoded.
type Validated struct {
	req Request
}

// IntoValidated checks r and, on success, returns an immutable snapshot.
// Later changes to r do not affect the snapshot.
func (r *Request) IntoValidated() (Validated, error) {
	if err := r.Validate(); err != nil {
		return Validated{}, err
	}
	return Validated{req: *r.Clone()}, nil
}

func (v Validated) Query() string { return v.req.query }

func (v Validated) TimeZone() *time.Location { return v.req.timeZone }

func (v Validated) SessionID() (string, bool) { return v.req.SessionID() }

func (v Validated) Hash() uint64 { return v.req.Hash() }

func (v Validated) Description() string { return v.req.Description() }

// Request returns a fresh staging copy.
func (v Validated) Request() *Request { return v.req.Clone() }

// Serialize never panics. A zero Validated, which IntoValidated never
// returns, yields ErrNotValidated.
func (v Validated) Serialize(out *wire.Output) error {
	if v.req.timeZone == nil {
		return ErrNotValidated
	}
	return v.req.Serialize(out)
}
