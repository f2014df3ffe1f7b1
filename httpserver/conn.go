package httpserver

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"time"

	"go.uber.org/zap"

	"probeserver/internal/audit"
)

// handleConn runs read, parse, dispatch, write and close for one
// connection. Faults never leave this function.
func (s *Server) handleConn(conn net.Conn) {
	defer s.conns.Done()
	defer conn.Close()

	resp := s.dispatch(conn)

	if s.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	if err := WriteResponse(conn, resp); err != nil {
		s.logger.Debug("write response", zap.Stringer("remote", conn.RemoteAddr()), zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveResponse(resp.Status)
	}
}

func (s *Server) dispatch(conn net.Conn) Response {
	if s.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
	tp := textproto.NewReader(bufio.NewReader(io.LimitReader(conn, maxRequestLine)))
	line, err := tp.ReadLine()
	if err != nil {
		return s.fail(conn, fmt.Errorf("%w: read: %v", ErrMalformedRequest, err))
	}
	req, err := ParseRequestLine(line)
	if err != nil {
		return s.fail(conn, err)
	}

	resp := s.call(conn, req)
	audit.Log("%s -> %d from %s", req.RequestLine(), resp.Status, conn.RemoteAddr())
	return resp
}

func (s *Server) call(conn net.Conn, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			resp = s.fail(conn, &ApplicationError{Request: req, Err: fmt.Errorf("panic: %v", r)})
		}
	}()

	out, err := s.handler.Call(req)
	if err != nil {
		return s.fail(conn, &ApplicationError{Request: req, Err: err})
	}
	if err := out.validate(); err != nil {
		return s.fail(conn, &ApplicationError{Request: req, Err: err})
	}
	return out
}

func (s *Server) fail(conn net.Conn, err error) Response {
	s.logger.Warn("probe request failed",
		zap.Stringer("remote", conn.RemoteAddr()),
		zap.Error(err),
	)
	if s.metrics != nil {
		s.metrics.HandlerFailures.Inc()
	}
	return internalServerError()
}
