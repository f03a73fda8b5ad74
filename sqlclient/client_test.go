package sqlclient

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novaquery/internal/cursor"
	"github.com/tuannm99/novaquery/internal/dispatch"
	"github.com/tuannm99/novaquery/server/novasqlwire"
	"github.com/tuannm99/novaquery/sqlrequest"
)

func numbersEngine(n int) dispatch.Engine {
	return dispatch.EngineFunc(func(_ context.Context, _ sqlrequest.Validated) (*dispatch.Result, error) {
		res := &dispatch.Result{Columns: []string{"n"}}
		for i := 0; i < n; i++ {
			res.Rows = append(res.Rows, []string{strconv.Itoa(i)})
		}
		return res, nil
	})
}

func startServer(t *testing.T, engine dispatch.Engine, pageSize int) string {
	t.Helper()

	d := dispatch.New(engine, cursor.NewMemoryStore(), dispatch.Options{PageSize: pageSize}, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = novasqlwire.NewServer(d, nil).Serve(ctx, ln) }()
	t.Cleanup(cancel)

	return ln.Addr().String()
}

func dial(t *testing.T, addr string) *Client {
	t.Helper()
	cli, err := Dial(addr, time.Second)
	require.NoError(t, err)
	cli.SetRWTimeout(5 * time.Second)
	t.Cleanup(func() { _ = cli.Close() })
	return cli
}

func TestClient_QueryAndPaging(t *testing.T) {
	cli := dial(t, startServer(t, numbersEngine(5), 2))
	ctx := context.Background()

	req := sqlrequest.NewQuery("SELECT n FROM numbers")
	page, err := cli.Query(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"0"}, {"1"}}, page.Rows)
	require.NotEmpty(t, page.Cursor)

	var rows [][]string
	rows = append(rows, page.Rows...)
	for page.Cursor != "" {
		page, err = cli.Next(ctx, req, page.Cursor)
		require.NoError(t, err)
		rows = append(rows, page.Rows...)
	}
	assert.Len(t, rows, 5)

	// Next must not touch the original request.
	_, ok := req.SessionID()
	assert.False(t, ok)
}

func TestClient_LocalValidation(t *testing.T) {
	cli := dial(t, startServer(t, numbersEngine(1), 2))

	_, err := cli.Query(context.Background(), sqlrequest.New("", nil, nil))
	var ve *sqlrequest.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Failures, 2)
}

func TestClient_LocalZoneRejectedBeforeSend(t *testing.T) {
	cli := dial(t, startServer(t, numbersEngine(1), 2))

	_, err := cli.Query(context.Background(), sqlrequest.New("SELECT n", time.Local, nil))
	var ve *sqlrequest.ValidationError
	require.ErrorAs(t, err, &ve)
	var se *ServerError
	assert.False(t, errors.As(err, &se))

	// The connection is still usable.
	page, err := cli.Query(context.Background(), sqlrequest.NewQuery("SELECT n"))
	require.NoError(t, err)
	assert.Len(t, page.Rows, 1)
}

func TestClient_ServerError(t *testing.T) {
	cli := dial(t, startServer(t, numbersEngine(1), 2))

	_, err := cli.Query(context.Background(), sqlrequest.NewContinuation("SELECT n", time.UTC, "missing"))

	var se *ServerError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, novasqlwire.CodeCursorNotFound, se.Code)
}

func TestClient_NilClient(t *testing.T) {
	var cli *Client
	_, err := cli.Query(context.Background(), sqlrequest.NewQuery("SELECT 1"))
	require.Error(t, err)
	assert.NoError(t, cli.Close())
}

func TestDialWithRetry_GivesUp(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = DialWithRetry(context.Background(), addr, 100*time.Millisecond, 300*time.Millisecond)
	require.Error(t, err)
}

func TestDialWithRetry_Connects(t *testing.T) {
	addr := startServer(t, numbersEngine(1), 2)

	cli, err := DialWithRetry(context.Background(), addr, time.Second, 2*time.Second)
	require.NoError(t, err)
	defer func() { _ = cli.Close() }()

	page, err := cli.Query(context.Background(), sqlrequest.NewQuery("SELECT 1"))
	require.NoError(t, err)
	assert.Len(t, page.Rows, 1)
}
