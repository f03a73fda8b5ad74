// Package dispatch turns a request envelope into one page of results. First
// requests run through the engine (or the result cache); continuations are
// served from the cursor store.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tuannm99/novaquery/internal/cache"
	"github.com/tuannm99/novaquery/internal/cursor"
	"github.com/tuannm99/novaquery/internal/logger"
	"github.com/tuannm99/novaquery/internal/metrics"
	"github.com/tuannm99/novaquery/sqlrequest"
)

const (
	DefaultPageSize  = 1000
	DefaultCursorTTL = 5 * time.Minute
)

var ErrCursorNotFound = cursor.ErrNotFound

// Page is one slice of a result. An empty Cursor marks the last page.
type Page struct {
	Columns []string
	Rows    [][]string
	Cursor  string
}

type Options struct {
	PageSize  int
	CursorTTL time.Duration
	// Cache may be nil to disable first-page caching.
	Cache *cache.LRU[*Result]
}

type Dispatcher struct {
	engine    Engine
	cursors   cursor.Store
	cache     *cache.LRU[*Result]
	pageSize  int
	cursorTTL time.Duration
	log       logger.Logger
}

func New(engine Engine, cursors cursor.Store, opts Options, log logger.Logger) *Dispatcher {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.CursorTTL <= 0 {
		opts.CursorTTL = DefaultCursorTTL
	}
	if opts.Cache == nil {
		opts.Cache = cache.New[*Result](0, 0)
	}
	if log == nil {
		log = logger.NopLogger()
	}
	return &Dispatcher{
		engine:    engine,
		cursors:   cursors,
		cache:     opts.Cache,
		pageSize:  opts.PageSize,
		cursorTTL: opts.CursorTTL,
		log:       log,
	}
}

// Handle validates req and returns its next page. Validation failures come
// back as *sqlrequest.ValidationError, unknown cursors as ErrCursorNotFound.
func (d *Dispatcher) Handle(ctx context.Context, req *sqlrequest.Request) (*Page, error) {
	start := time.Now()

	v, err := req.IntoValidated()
	if err != nil {
		metrics.RequestsTotal.WithLabelValues(metrics.StatusInvalid).Inc()
		d.log.Debugw("dispatch: rejected request", "request", req.Description(), "error", err)
		return nil, err
	}

	kind := "first"
	var page *Page
	if id, ok := v.SessionID(); ok {
		kind = "continuation"
		page, err = d.next(ctx, id)
	} else {
		page, err = d.first(ctx, v)
	}
	metrics.DispatchDuration.WithLabelValues(kind).Observe(float64(time.Since(start).Milliseconds()))

	switch {
	case err == nil:
		metrics.RequestsTotal.WithLabelValues(metrics.StatusOK).Inc()
	case errors.Is(err, ErrCursorNotFound):
		metrics.RequestsTotal.WithLabelValues(metrics.StatusCursorNotFound).Inc()
	default:
		metrics.RequestsTotal.WithLabelValues(metrics.StatusInternalFailure).Inc()
		d.log.Errorw("dispatch: request failed", "request", v.Description(), "error", err)
	}
	return page, err
}

// CloseCursor drops an open cursor early.
func (d *Dispatcher) CloseCursor(ctx context.Context, id string) error {
	return d.cursors.Delete(ctx, id)
}

func (d *Dispatcher) first(ctx context.Context, v sqlrequest.Validated) (*Page, error) {
	req := v.Request()

	res, hit := d.cache.Get(req)
	if hit {
		metrics.ResultCacheTotal.WithLabelValues("hit").Inc()
	} else {
		metrics.ResultCacheTotal.WithLabelValues("miss").Inc()

		var err error
		res, err = d.engine.Execute(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("dispatch: execute: %w", err)
		}
		d.cache.Put(req, res)
	}

	c := &cursor.Cursor{
		Query:    v.Query(),
		TimeZone: v.TimeZone().String(),
		Columns:  res.Columns,
		Rows:     res.Rows,
	}
	return d.cut(ctx, cursor.NewID(), c)
}

func (d *Dispatcher) next(ctx context.Context, id string) (*Page, error) {
	c, err := d.cursors.Take(ctx, id)
	if err != nil {
		if errors.Is(err, cursor.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCursorNotFound, id)
		}
		return nil, fmt.Errorf("dispatch: load cursor: %w", err)
	}

	page, err := d.cut(ctx, id, c)
	if err != nil {
		// Take consumed the cursor; put it back whole so the same
		// continuation can be retried.
		if perr := d.cursors.Put(ctx, id, c, d.cursorTTL); perr != nil {
			d.log.Errorw("dispatch: restore cursor failed", "cursor", id, "error", perr)
		}
		return nil, err
	}
	return page, nil
}

// cut returns the first page of c and stores the rest under id.
func (d *Dispatcher) cut(ctx context.Context, id string, c *cursor.Cursor) (*Page, error) {
	if len(c.Rows) <= d.pageSize {
		return &Page{Columns: c.Columns, Rows: c.Rows}, nil
	}

	rest := &cursor.Cursor{
		Query:    c.Query,
		TimeZone: c.TimeZone,
		Columns:  c.Columns,
		Rows:     c.Rows[d.pageSize:],
	}
	if err := d.cursors.Put(ctx, id, rest, d.cursorTTL); err != nil {
		return nil, fmt.Errorf("dispatch: store cursor: %w", err)
	}

	return &Page{
		Columns: c.Columns,
		Rows:    c.Rows[:d.pageSize],
		Cursor:  id,
	}, nil
}
