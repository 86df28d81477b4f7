package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"

	"github.com/thijsmie/pocketbase/pkg/logger"
)

// connectEvent is the name of the acknowledgment the server sends first on
// every new stream.
const connectEvent = "PB_CONNECT"

var (
	errIdleTimeout = errors.New("realtime: no message within read timeout")
	errStreamEnded = errors.New("realtime: stream closed by server")
)

// State of the realtime connection
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "disconnected"
}

// loop is one run of the connection loop, from start until it gives up or is
// cancelled. err is set before done is closed.
type loop struct {
	cancel context.CancelFunc
	ready  chan struct{}
	done   chan struct{}
	err    error
}

// ensureActive starts the connection loop unless one is running and waits
// until the server has acknowledged a connection.
func (s *Service) ensureActive(ctx context.Context) error {
	s.mu.Lock()
	l := s.loop
	if l == nil {
		loopCtx, cancel := context.WithCancel(context.Background())
		l = &loop{
			cancel: cancel,
			ready:  make(chan struct{}),
			done:   make(chan struct{}),
		}
		s.loop = l
		s.setStateLocked(StateConnecting)
		go s.run(loopCtx, l)
	}
	s.mu.Unlock()

	select {
	case <-l.ready:
		return nil
	case <-l.done:
		if l.err != nil {
			return l.err
		}
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) run(ctx context.Context, l *loop) {
	defer s.cleanup(l)
	defer logger.CatchPanic("realtime.Service.run")

	b := s.newBackOff()
	b.Reset()
	signalled := false

	for {
		err := s.connect(ctx, l, func(msg *Message) {
			b.Reset()
			s.acknowledge(ctx, l, msg)
			if !signalled {
				signalled = true
				close(l.ready)
			}
		})
		if ctx.Err() != nil {
			logger.Debug("[Realtime] Connection loop stopped")
			return
		}

		s.mu.Lock()
		if s.loop == l {
			s.clientID = ""
			s.setStateLocked(StateConnecting)
		}
		s.mu.Unlock()
		s.provider().RecordRealtimeReconnect()

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			logger.Error("[Realtime] Giving up reconnecting: %v", err)
			l.err = fmt.Errorf("realtime: connect: %w", err)
			return
		}
		logger.Warn("[Realtime] Connection lost, reconnecting in %s: %v", wait, err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// connect opens one stream and reads it until it fails. onAck runs for every
// connect acknowledgment.
func (s *Service) connect(ctx context.Context, l *loop, onAck func(*Message)) error {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var idle atomic.Bool
	timer := time.AfterFunc(s.readTimeout, func() {
		idle.Store(true)
		cancel()
	})
	defer timer.Stop()

	header := http.Header{}
	if id := s.LastEventID(); id != "" {
		header.Set("Last-Event-ID", id)
	}

	resp, err := s.client.Stream(streamCtx, s.path, header)
	if err != nil {
		if idle.Load() {
			return errIdleTimeout
		}
		return err
	}
	defer resp.Body.Close()

	dec := NewDecoder(resp.Body)
	for {
		msg, err := dec.Next()
		if err != nil {
			switch {
			case idle.Load():
				return errIdleTimeout
			case errors.Is(err, io.EOF):
				return errStreamEnded
			}
			return err
		}
		timer.Reset(s.readTimeout)

		if msg.Name == connectEvent {
			onAck(msg)
			continue
		}

		// the acknowledgment's id is the client id, not an event id
		if msg.ID != "" {
			s.mu.Lock()
			if s.loop == l {
				s.lastEventID = msg.ID
			}
			s.mu.Unlock()
		}
		s.dispatcher.Dispatch(ctx, msg)
	}
}

// acknowledge stores the client id of a new connection and declares the full
// subscription set, even when it did not change.
func (s *Service) acknowledge(ctx context.Context, l *loop, msg *Message) {
	clientID := msg.ID
	if clientID == "" {
		clientID = gjson.GetBytes(msg.Data, "clientId").String()
	}

	s.mu.Lock()
	owner := s.loop == l
	if owner {
		s.clientID = clientID
		s.setStateLocked(StateConnected)
	}
	s.mu.Unlock()
	if !owner {
		return
	}

	s.provider().RecordRealtimeConnect()
	logger.Info("[Realtime] Connected with client id %s", clientID)

	if err := s.resync(ctx, true); err != nil {
		logger.Error("[Realtime] Declaring subscriptions after connect failed: %v", err)
	}
}

// detach makes l inactive and resets the connection state, unless another
// loop has replaced it already. It returns whether l was the active loop.
func (s *Service) detach(l *loop) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loop != l {
		return false
	}
	s.detachLocked()
	return true
}

// detachLocked requires s.mu and an active loop.
func (s *Service) detachLocked() {
	s.loop = nil
	s.clientID = ""
	s.lastEventID = ""
	s.setStateLocked(StateDisconnected)
	s.registry.invalidate()
}

func (s *Service) cleanup(l *loop) {
	l.cancel()
	s.detach(l)
	close(l.done)
}

// Close stops the connection and waits for its loop to exit, bounded by ctx.
// It is safe to call without a connection. The connection state is reset
// before Close returns, so a following Subscribe starts a fresh handshake.
// Called from within an event handler it does not wait for the loop, because
// the handler runs on it.
func (s *Service) Close(ctx context.Context) error {
	return s.stop(ctx, false)
}

// closeIfEmpty closes the connection only if no key is registered at the
// moment the loop is detached. A Subscribe racing with the last Unsubscribe
// either lands before the check and keeps the connection, or after it and
// starts a new one.
func (s *Service) closeIfEmpty(ctx context.Context) error {
	return s.stop(ctx, true)
}

func (s *Service) stop(ctx context.Context, onlyIfEmpty bool) error {
	s.mu.Lock()
	l := s.loop
	if l == nil || (onlyIfEmpty && s.registry.Len() > 0) {
		s.mu.Unlock()
		return nil
	}
	s.detachLocked()
	s.mu.Unlock()

	l.cancel()
	logger.Info("[Realtime] Connection closed")

	if InDispatch(ctx) {
		return nil
	}

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
