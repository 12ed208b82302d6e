package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// The IPC server lets external clients observe the decoded event stream and
// query daemon status over a Unix domain socket. This enables:
//   - Command-line inspection (rotenc-ctl)
//   - Scripting against rotation/button events
//   - UI integration without linking against the daemon
//
// Protocol: line-delimited JSON.
//   - Client sends: {"type": "status"} or {"type": "subscribe"}
//   - Server responds: {"status": "ok", ...} or {"status": "error", "error": "msg"}
//   - After a subscribe ack, event envelopes stream until the client hangs up.
// ============================================================================

// IPCRequest is a client command.
type IPCRequest struct {
	Type string `json:"type"`
}

// IPCResponse is the first line sent back for any command.
type IPCResponse struct {
	Status string          `json:"status"`          // "ok" or "error"
	Error  string          `json:"error,omitempty"` // set when status == "error"
	Data   json.RawMessage `json:"data,omitempty"`
}

// IPCStatus is the payload of a status response.
type IPCStatus struct {
	Version       string     `json:"version"`
	Mode          DecodeMode `json:"mode"`
	PinA          int        `json:"pin_a"`
	PinB          int        `json:"pin_b"`
	ButtonPin     int        `json:"button_pin"` // -1 when no button attached
	ButtonPressed bool       `json:"button_pressed"`
}

// eventHub fans decoded events out to IPC subscribers. Broadcast never
// blocks: a subscriber that cannot keep up loses events rather than stalling
// the daemon loop.
type eventHub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[chan Event]struct{})}
}

// subscribe returns a buffered event channel and a cancel func that must be
// called exactly once when the subscriber goes away.
func (h *eventHub) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

func (h *eventHub) broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default: // slow subscriber, drop
		}
	}
}

// runIPCServer starts the Unix domain socket server. It runs until ctx is
// canceled, at which point it closes the listener and exits.
func runIPCServer(ctx context.Context, socketPath string, hub *eventHub, status func() IPCStatus, logger *slog.Logger) error {
	// Remove a stale socket from a previous run.
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	if err := os.Chmod(socketPath, 0666); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Close the listener on shutdown. This unblocks Accept().
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("IPC listener closed (shutdown)")
				return nil
			}
			if errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "use of closed network connection") {
				logger.Debug("IPC listener closed")
				return nil
			}
			logger.Warn("IPC accept failed", "error", err)
			continue
		}

		go handleIPCConn(ctx, conn, hub, status, logger)
	}
}

func handleIPCConn(ctx context.Context, conn net.Conn, hub *eventHub, status func() IPCStatus, logger *slog.Logger) {
	defer conn.Close()

	writeResponse := func(resp IPCResponse) error {
		line, err := json.Marshal(resp)
		if err != nil {
			return err
		}
		_, err = conn.Write(append(line, '\n'))
		return err
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return // client hung up without a command
	}

	var req IPCRequest
	if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
		_ = writeResponse(IPCResponse{Status: "error", Error: "malformed request: " + err.Error()})
		return
	}

	switch req.Type {
	case "status":
		data, err := json.Marshal(status())
		if err != nil {
			_ = writeResponse(IPCResponse{Status: "error", Error: err.Error()})
			return
		}
		_ = writeResponse(IPCResponse{Status: "ok", Data: data})

	case "subscribe":
		if err := writeResponse(IPCResponse{Status: "ok"}); err != nil {
			return
		}
		streamEvents(ctx, conn, hub, logger)

	default:
		_ = writeResponse(IPCResponse{Status: "error", Error: fmt.Sprintf("unknown command: %q", req.Type)})
	}
}

// streamEvents writes event envelopes to the client until it disconnects or
// the daemon shuts down.
func streamEvents(ctx context.Context, conn net.Conn, hub *eventHub, logger *slog.Logger) {
	ch, cancel := hub.subscribe()
	defer cancel()

	logger.Debug("IPC subscriber attached", "remote", conn.RemoteAddr())

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			line, err := marshalEvent(ev)
			if err != nil {
				logger.Warn("IPC event marshal failed", "error", err)
				continue
			}
			if _, err := conn.Write(append(line, '\n')); err != nil {
				logger.Debug("IPC subscriber detached", "error", err)
				return
			}
		}
	}
}
