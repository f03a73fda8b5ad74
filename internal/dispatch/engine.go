package dispatch

import (
	"context"
	"time"

	"github.com/tuannm99/novaquery/sqlrequest"
)

// Result is a full, unpaged result set in text form.
type Result struct {
	Columns []string
	Rows    [][]string
}

// Engine runs a validated query. Parsing and planning live behind it.
type Engine interface {
	Execute(ctx context.Context, req sqlrequest.Validated) (*Result, error)
}

type EngineFunc func(ctx context.Context, req sqlrequest.Validated) (*Result, error)

func (f EngineFunc) Execute(ctx context.Context, req sqlrequest.Validated) (*Result, error) {
	return f(ctx, req)
}

// EchoEngine answers every query with a single row describing the request
// and the current time in its zone.
type EchoEngine struct {
	Now func() time.Time
}

func (e EchoEngine) Execute(ctx context.Context, req sqlrequest.Validated) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	tz := req.TimeZone()
	return &Result{
		Columns: []string{"query", "time_zone", "now"},
		Rows: [][]string{
			{req.Query(), tz.String(), now().In(tz).Format(time.RFC3339)},
		},
	}, nil
}
