package sink

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/womat/debug"
)

// DefaultAcceptWait bounds each accept attempt, and so the shutdown latency
// while no client is connected.
const DefaultAcceptWait = time.Second

// SocketSink streams payloads to clients of a unix stream socket, one client
// at a time. Each client gets one payload per tick until a write fails.
type SocketSink struct {
	Path string

	// AcceptWait is how long one accept attempt blocks (DefaultAcceptWait if zero).
	AcceptWait time.Duration

	// WriteTimeout bounds each write. Zero means no deadline.
	WriteTimeout time.Duration

	Recorder Recorder
}

// Run serves clients until ctx is done or the feed fails. A stale socket
// file is removed before binding; the socket file is removed on return.
func (s *SocketSink) Run(ctx context.Context, feed Feed) error {
	wait := s.AcceptWait
	if wait <= 0 {
		wait = DefaultAcceptWait
	}
	rec := recorderOrNop(s.Recorder)

	if err := os.Remove(s.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: s.Path, Net: "unix"})
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	// The listener removes the file on Close; we do it ourselves below.
	ln.SetUnlinkOnClose(false)
	defer func() {
		ln.Close()
		if err := os.Remove(s.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			debug.ErrorLog.Printf("remove socket %s: %v", s.Path, err)
		}
	}()

	debug.InfoLog.Printf("listening on %s", s.Path)

	for ctx.Err() == nil {
		ln.SetDeadline(time.Now().Add(wait))
		conn, err := ln.AcceptUnix()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			debug.ErrorLog.Printf("socket accept: %v", err)
			if err := sleepCtx(ctx, wait); err != nil {
				break
			}
			continue
		}

		if err := s.serve(ctx, conn, feed, rec); err != nil {
			return err
		}
	}

	debug.InfoLog.Printf("socket sink stopped")
	return nil
}

// serve writes to one client until the write fails or ctx is done. Only a
// feed error is returned.
func (s *SocketSink) serve(ctx context.Context, conn *net.UnixConn, feed Feed, rec Recorder) error {
	defer conn.Close()
	rec.SetSinkConnected(true)
	defer rec.SetSinkConnected(false)

	debug.DebugLog.Printf("socket client connected")

	for {
		payload, err := feed.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if s.WriteTimeout > 0 {
			conn.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
		}
		if _, err := conn.Write(payload); err != nil {
			if isDisconnect(err) {
				debug.DebugLog.Printf("socket client disconnected: %v", err)
			} else {
				debug.ErrorLog.Printf("socket write: %v", err)
			}
			return nil
		}
		rec.RecordPublish()
	}
}

func isDisconnect(err error) bool {
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, net.ErrClosed)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
