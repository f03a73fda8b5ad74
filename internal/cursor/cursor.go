// Package cursor keeps the remaining rows of a paged result between a first
// request and its continuations. The id handed to clients is opaque to
// everyone but the store.
package cursor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tuannm99/novaquery/internal/wire"
)

var ErrNotFound = errors.New("cursor: not found or expired")

// Cursor is the server-side paging state behind a session id.
type Cursor struct {
	Query    string
	TimeZone string
	Columns  []string
	Rows     [][]string
}

type Store interface {
	Put(ctx context.Context, id string, c *Cursor, ttl time.Duration) error
	// Take removes and returns the cursor. Unknown or expired ids return
	// ErrNotFound.
	Take(ctx context.Context, id string) (*Cursor, error)
	Delete(ctx context.Context, id string) error
}

func NewID() string {
	return uuid.NewString()
}

// MarshalBinary layout: query, time zone, columns, uvarint row count, rows.
func (c *Cursor) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	out := wire.NewOutput(&buf)

	if err := out.WriteString(c.Query); err != nil {
		return nil, err
	}
	if err := out.WriteString(c.TimeZone); err != nil {
		return nil, err
	}
	if err := out.WriteStringSlice(c.Columns); err != nil {
		return nil, err
	}
	if err := out.WriteUvarint(uint64(len(c.Rows))); err != nil {
		return nil, err
	}
	for _, row := range c.Rows {
		if err := out.WriteStringSlice(row); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (c *Cursor) UnmarshalBinary(data []byte) error {
	in := wire.NewInput(bytes.NewReader(data))

	var (
		dec Cursor
		err error
	)
	if dec.Query, err = in.ReadString(); err != nil {
		return fmt.Errorf("cursor: decode query: %w", err)
	}
	if dec.TimeZone, err = in.ReadString(); err != nil {
		return fmt.Errorf("cursor: decode time zone: %w", err)
	}
	if dec.Columns, err = in.ReadStringSlice(); err != nil {
		return fmt.Errorf("cursor: decode columns: %w", err)
	}
	n, err := in.ReadUvarint()
	if err != nil {
		return fmt.Errorf("cursor: decode row count: %w", err)
	}
	if n > uint64(len(data)) {
		return fmt.Errorf("cursor: decode row count: %w", wire.ErrTruncated)
	}
	dec.Rows = make([][]string, 0, n)
	for i := uint64(0); i < n; i++ {
		row, err := in.ReadStringSlice()
		if err != nil {
			return fmt.Errorf("cursor: decode row %d: %w", i, err)
		}
		dec.Rows = append(dec.Rows, row)
	}

	*c = dec
	return nil
}
