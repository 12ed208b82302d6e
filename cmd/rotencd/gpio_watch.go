//go:build linux

package main

import (
	"fmt"
	"log/slog"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ============================================================================
// GPIO edge dispatcher
// ============================================================================
// One epoll instance watches the value fds of every armed pin. A single
// dispatch goroutine waits on it and invokes the registered handlers, so all
// decoder state is only ever touched from one goroutine.
//
// Sysfs signals a GPIO edge as an exceptional condition (EPOLLPRI) on the
// value file; the level is then re-read from offset 0.
// ============================================================================

type gpioSource struct {
	logger *slog.Logger
	epfd   int

	// wake pipe: written on Close to get the dispatch goroutine out of
	// epoll_wait.
	wakeR, wakeW int

	// mu guards the pin/watch maps. dispatchMu serializes handler
	// invocation; Cancel takes it to wait out an in-flight handler.
	mu         sync.Mutex
	dispatchMu sync.Mutex

	pins    map[int]*gpioPin       // all opened pins, watched or not
	watches map[int32]*gpioWatch   // armed pins, by value fd
	done    chan struct{}
	closed  bool
}

type gpioWatch struct {
	src       *gpioSource
	pin       *gpioPin
	fn        EdgeHandler
	cancelled bool // guarded by src.dispatchMu
}

// newGpioSource creates the epoll instance and starts the dispatch goroutine.
func newGpioSource(logger *slog.Logger) (*gpioSource, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}

	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("pipe2: %w", err)
	}

	s := &gpioSource{
		logger:  logger,
		epfd:    epfd,
		wakeR:   p[0],
		wakeW:   p[1],
		pins:    make(map[int]*gpioPin),
		watches: make(map[int32]*gpioWatch),
		done:    make(chan struct{}),
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(s.wakeR)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, s.wakeR, &ev); err != nil {
		s.closeFds()
		return nil, fmt.Errorf("epoll_ctl_add wake pipe: %w", err)
	}

	go s.dispatch()
	return s, nil
}

// ReadLevel implements EdgeSource. Pins are opened lazily so an unwatched pin
// (pin B in single-edge mode) can still be sampled.
func (s *gpioSource) ReadLevel(pin int) bool {
	s.mu.Lock()
	p := s.pins[pin]
	if p == nil && !s.closed {
		var err error
		p, err = openGpioPin(pin)
		if err != nil {
			s.mu.Unlock()
			s.logger.Warn("gpio read of unopenable pin", "pin", pin, "error", err)
			return false
		}
		s.pins[pin] = p
	}
	s.mu.Unlock()
	if p == nil {
		return false
	}
	return p.read()
}

// OnEdge implements EdgeSource.
func (s *gpioSource) OnEdge(pin int, kind EdgeKind, fn EdgeHandler) (Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("gpio source closed")
	}

	p := s.pins[pin]
	if p == nil {
		var err error
		p, err = openGpioPin(pin)
		if err != nil {
			return nil, err
		}
		s.pins[pin] = p
	}
	if s.watches[p.fd()] != nil {
		return nil, fmt.Errorf("gpio%d: already watched", pin)
	}

	if err := p.setEdge(kind); err != nil {
		return nil, fmt.Errorf("gpio%d edge: %w", pin, err)
	}

	// Clear any pending exceptional condition before arming epoll, or the
	// first wait fires immediately with a stale edge.
	p.read()

	ev := unix.EpollEvent{Events: unix.EPOLLPRI | unix.EPOLLERR, Fd: p.fd()}
	if err := unix.EpollCtl(s.epfd, unix.EPOLL_CTL_ADD, int(p.fd()), &ev); err != nil {
		return nil, fmt.Errorf("epoll_ctl_add gpio%d: %w", pin, err)
	}

	w := &gpioWatch{src: s, pin: p, fn: fn}
	s.watches[p.fd()] = w
	s.logger.Debug("edge handler installed", "pin", pin, "edge", kind.String())
	return w, nil
}

// Cancel implements Registration. It does not return while the handler is
// being invoked; afterwards the handler is never called again.
func (w *gpioWatch) Cancel() {
	s := w.src

	s.mu.Lock()
	if s.watches[w.pin.fd()] == w {
		delete(s.watches, w.pin.fd())
		_ = unix.EpollCtl(s.epfd, unix.EPOLL_CTL_DEL, int(w.pin.fd()), nil)
		_ = w.pin.setEdge(EdgeNone)
	}
	s.mu.Unlock()

	// Wait out an in-flight invocation.
	s.dispatchMu.Lock()
	w.cancelled = true
	s.dispatchMu.Unlock()
}

// dispatch is the edge servicing loop.
func (s *gpioSource) dispatch() {
	defer close(s.done)

	events := make([]unix.EpollEvent, 8)
	for {
		n, err := unix.EpollWait(s.epfd, events, -1)
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			s.logger.Error("epoll_wait", "error", err)
			return
		}

		for i := 0; i < n; i++ {
			fd := events[i].Fd
			if fd == int32(s.wakeR) {
				return // Close was called
			}

			s.mu.Lock()
			w := s.watches[fd]
			s.mu.Unlock()
			if w == nil {
				continue // cancelled between wait and dispatch
			}

			level := w.pin.read() // also clears the pending condition
			when := time.Now()

			s.dispatchMu.Lock()
			if !w.cancelled {
				w.fn(w.pin.number, level, when)
			}
			s.dispatchMu.Unlock()
		}
	}
}

// Close cancels all watches, stops the dispatch goroutine and releases every
// pin. Idempotent.
func (s *gpioSource) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	watches := make([]*gpioWatch, 0, len(s.watches))
	for _, w := range s.watches {
		watches = append(watches, w)
	}
	s.mu.Unlock()

	for _, w := range watches {
		w.Cancel()
	}

	// Wake the dispatch goroutine and wait for it to exit before closing
	// the fds it polls.
	var one = [1]byte{1}
	_, _ = unix.Write(s.wakeW, one[:])
	<-s.done

	s.mu.Lock()
	for _, p := range s.pins {
		p.close()
	}
	s.pins = nil
	s.mu.Unlock()

	s.closeFds()
}

func (s *gpioSource) closeFds() {
	unix.Close(s.epfd)
	unix.Close(s.wakeR)
	unix.Close(s.wakeW)
}
