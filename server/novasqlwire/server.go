package novasqlwire

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tuannm99/novaquery/internal/dispatch"
	"github.com/tuannm99/novaquery/internal/logger"
	"github.com/tuannm99/novaquery/internal/metrics"
	"github.com/tuannm99/novaquery/sqlrequest"
)

// Handler answers one decoded envelope. *dispatch.Dispatcher satisfies it.
type Handler interface {
	Handle(ctx context.Context, req *sqlrequest.Request) (*dispatch.Page, error)
}

type HandlerFunc func(ctx context.Context, req *sqlrequest.Request) (*dispatch.Page, error)

func (f HandlerFunc) Handle(ctx context.Context, req *sqlrequest.Request) (*dispatch.Page, error) {
	return f(ctx, req)
}

type Server struct {
	handler Handler
	log     logger.Logger
	wg      sync.WaitGroup
}

func NewServer(h Handler, log logger.Logger) *Server {
	if log == nil {
		log = logger.NopLogger()
	}
	return &Server{handler: h, log: log}
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then closes the
// listener and every open connection and waits for handlers to return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer func() { _ = ln.Close() }()

	s.log.Infow("novaquery tcp server listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return err
			}
			s.log.Warnw("accept failed", "error", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	// No global deadline; clients set their own per-request deadlines.
	_ = conn.SetDeadline(time.Time{})

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	log := s.log.With("remote", conn.RemoteAddr().String())

	for {
		payload, err := ReadFrame(conn)
		if err != nil {
			// Client closed or the stream is unusable.
			return
		}

		resp := s.serveOne(ctx, log, payload)
		if err := WriteResponse(conn, resp); err != nil {
			log.Warnw("write response failed", "id", resp.ID, "error", err)
			return
		}
	}
}

// serveOne never fails: every problem becomes an error response. Frames
// keep their boundaries, so a bad payload does not end the connection.
func (s *Server) serveOne(ctx context.Context, log logger.Logger, payload []byte) *ExecuteResponse {
	req, err := DecodeRequest(payload)
	if err != nil {
		var id uint64
		if req != nil {
			id = req.ID
		}
		metrics.RequestsTotal.WithLabelValues(metrics.StatusDecodeError).Inc()
		log.Warnw("decode request failed", "id", id, "error", err)
		return &ExecuteResponse{ID: id, Error: ErrorInfoFrom(err)}
	}

	log.Debugw("request", "id", req.ID, "request", req.Request.Description())

	page, err := s.handler.Handle(ctx, req.Request)
	if err != nil {
		return &ExecuteResponse{ID: req.ID, Error: ErrorInfoFrom(err)}
	}
	return &ExecuteResponse{ID: req.ID, Page: page}
}
