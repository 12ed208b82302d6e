package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
)

// ============================================================================
// rotenc-ctl - Command-line IPC Client
// ============================================================================
// This tool talks to the rotencd daemon over its Unix domain socket.
//
// Usage:
//   rotenc-ctl status
//   rotenc-ctl watch
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/rotencd.sock)
// ============================================================================

// Request/response types (duplicated from the daemon for a standalone binary)

type Request struct {
	Type string `json:"type"`
}

type Response struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func main() {
	socketPath := "/tmp/rotencd.sock"

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch args[0] {
	case "status":
		err = runStatus(socketPath)

	case "watch", "subscribe":
		err = runWatch(socketPath)

	case "help", "-h", "--help":
		printUsage()
		return

	default:
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// dial connects, sends one command and reads the ack line. The caller owns
// the connection on success.
func dial(socketPath string, req Request) (net.Conn, *bufio.Scanner, Response, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, nil, Response{}, fmt.Errorf("connect to %s: %w (is rotencd running?)", socketPath, err)
	}

	line, err := json.Marshal(req)
	if err != nil {
		conn.Close()
		return nil, nil, Response{}, err
	}
	if _, err := conn.Write(append(line, '\n')); err != nil {
		conn.Close()
		return nil, nil, Response{}, fmt.Errorf("send command: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		conn.Close()
		return nil, nil, Response{}, fmt.Errorf("no response from daemon")
	}

	var resp Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		conn.Close()
		return nil, nil, Response{}, fmt.Errorf("malformed response: %w", err)
	}
	if resp.Status != "ok" {
		conn.Close()
		return nil, nil, Response{}, fmt.Errorf("daemon refused command: %s", resp.Error)
	}
	return conn, scanner, resp, nil
}

func runStatus(socketPath string) error {
	conn, _, resp, err := dial(socketPath, Request{Type: "status"})
	if err != nil {
		return err
	}
	defer conn.Close()
	fmt.Println(string(resp.Data))
	return nil
}

func runWatch(socketPath string) error {
	conn, scanner, _, err := dial(socketPath, Request{Type: "subscribe"})
	if err != nil {
		return err
	}
	defer conn.Close()

	for scanner.Scan() {
		var env EventEnvelope
		if err := json.Unmarshal(scanner.Bytes(), &env); err != nil {
			fmt.Fprintf(os.Stderr, "skipping malformed event: %v\n", err)
			continue
		}
		fmt.Printf("%s %s\n", env.Type, string(env.Data))
	}
	return scanner.Err()
}

func printUsage() {
	fmt.Println("rotenc-ctl - control/inspect the rotencd daemon")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  rotenc-ctl [-socket PATH] COMMAND")
	fmt.Println()
	fmt.Println("COMMANDS:")
	fmt.Println("  status    Print daemon status as JSON")
	fmt.Println("  watch     Stream decoded rotation/button events until interrupted")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -socket PATH    Unix domain socket path (default: /tmp/rotencd.sock)")
}
