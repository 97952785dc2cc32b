package redis

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

type serverConn struct {
	net.Conn
	reader *bufio.Reader
}

type dialFunc func(context.Context, Options) (net.Conn, error)

func defaultDial(ctx context.Context, opts Options) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: opts.DialTimeout}
	return dialer.DialContext(ctx, "tcp", opts.Addr)
}

func (s *Store[V]) withConn(ctx context.Context, fn func(*serverConn) error) error {
	conn, err := s.acquireConn(ctx)
	if err != nil {
		return err
	}
	broken := false
	defer func() {
		s.releaseConn(conn, broken)
	}()
	if err := fn(conn); err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
			broken = true
		}
		return err
	}
	return nil
}

func (s *Store[V]) acquireConn(ctx context.Context) (*serverConn, error) {
	select {
	case conn := <-s.pool:
		return conn, nil
	default:
		return s.newConn(ctx)
	}
}

func (s *Store[V]) releaseConn(conn *serverConn, broken bool) {
	if conn == nil {
		return
	}
	if broken {
		_ = conn.Close()
		return
	}
	select {
	case s.pool <- conn:
	default:
		_ = conn.Close()
	}
}

func (s *Store[V]) newConn(ctx context.Context) (*serverConn, error) {
	if s.dialFn == nil {
		s.dialFn = defaultDial
	}
	nc, err := s.dialFn(ctx, s.opts)
	if err != nil {
		return nil, err
	}
	reader := bufio.NewReader(nc)
	if err := s.handshake(nc, reader); err != nil {
		_ = nc.Close()
		return nil, err
	}
	return &serverConn{Conn: nc, reader: reader}, nil
}

// handshake runs AUTH/SELECT on a fresh connection before it is pooled.
func (s *Store[V]) handshake(conn net.Conn, reader *bufio.Reader) error {
	if s.opts.Password != "" {
		if err := s.writeCommand(conn, "AUTH", s.opts.Password); err != nil {
			return err
		}
		if err := expectOK(reader); err != nil {
			return err
		}
	}
	if s.opts.DB > 0 {
		if err := s.writeCommand(conn, "SELECT", strconv.Itoa(s.opts.DB)); err != nil {
			return err
		}
		if err := expectOK(reader); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store[V]) writeCommand(conn net.Conn, parts ...string) error {
	if err := applyDeadline(conn.SetWriteDeadline, s.opts.WriteTimeout); err != nil {
		return err
	}
	_, err := conn.Write(encodeCommand(parts...))
	return err
}

func (s *Store[V]) readReply(conn *serverConn) (any, error) {
	if err := applyDeadline(conn.SetReadDeadline, s.opts.ReadTimeout); err != nil {
		return nil, err
	}
	return decodeReply(conn.reader)
}

func expectOK(reader *bufio.Reader) error {
	reply, err := decodeReply(reader)
	if err != nil {
		return err
	}
	if msg, ok := reply.(string); ok && strings.EqualFold(msg, "OK") {
		return nil
	}
	return fmt.Errorf("redis: expected OK, got %v", reply)
}

func applyDeadline(setter func(time.Time) error, timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}
	return setter(time.Now().Add(timeout))
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
