package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// CamillaDSP volume sink
// ============================================================================
// Optional consumer of the decoded detent stream: each detent nudges the
// CamillaDSP main volume over its websocket control interface. This is what
// turns a bare encoder on GPIO into a volume knob.
// ============================================================================

// volumeSink is the interface the daemon loop drives. Extracted so tests can
// substitute a mock.
type volumeSink interface {
	StepVolume(deltaDB float64) (float64, error)
	Close() error
}

// CamillaDSPClient manages WebSocket communication with CamillaDSP.
type CamillaDSPClient struct {
	mu          sync.Mutex
	conn        *websocket.Conn
	url         string
	logger      *slog.Logger
	readTimeout time.Duration

	minDB float64
	maxDB float64
}

// NewCamillaDSPClient creates a client and establishes the initial
// connection, retrying a few times so the daemon survives starting before
// CamillaDSP does.
func NewCamillaDSPClient(wsURL string, minDB, maxDB float64, readTimeoutMS int, logger *slog.Logger) (*CamillaDSPClient, error) {
	if _, err := url.Parse(wsURL); err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}

	c := &CamillaDSPClient{
		url:         wsURL,
		logger:      logger,
		readTimeout: time.Duration(readTimeoutMS) * time.Millisecond,
		minDB:       minDB,
		maxDB:       maxDB,
	}

	if err := c.connectWithRetry(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *CamillaDSPClient) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	d := websocket.Dialer{
		HandshakeTimeout: 2 * time.Second,
	}
	conn, _, err := d.Dial(c.url, nil)
	if err != nil {
		return err
	}
	c.conn = conn
	return nil
}

func (c *CamillaDSPClient) connectWithRetry() error {
	var lastErr error
	for attempt := 0; attempt < 10; attempt++ {
		err := c.connect()
		if err == nil {
			c.logger.Info("connected to CamillaDSP", "url", c.url)
			return nil
		}
		lastErr = err
		c.logger.Warn("connection failed; retrying...", "error", err, "attempt", attempt+1)
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("failed to connect after 10 attempts: %w", lastErr)
}

func (c *CamillaDSPClient) ensureConnected() error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.logger.Warn("connection lost; reconnecting...")
	return c.connectWithRetry()
}

// sendAndRead sends a command and waits for the matching response.
func (c *CamillaDSPClient) sendAndRead(v any) ([]byte, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("no websocket connection")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.conn = nil // mark connection as broken
		return nil, err
	}

	c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	defer c.conn.SetReadDeadline(time.Time{})

	_, message, err := c.conn.ReadMessage()
	if err != nil {
		c.conn = nil
		return nil, err
	}
	return message, nil
}

// GetVolume queries CamillaDSP for the current main volume.
func (c *CamillaDSPClient) GetVolume() (float64, error) {
	response, err := c.sendAndRead("GetVolume")
	if err != nil {
		return 0, fmt.Errorf("get volume: %w", err)
	}

	var volResp struct {
		GetVolume struct {
			Result string  `json:"result"`
			Value  float64 `json:"value"`
		} `json:"GetVolume"`
	}
	if err := json.Unmarshal(response, &volResp); err != nil {
		return 0, fmt.Errorf("parse GetVolume response: %w", err)
	}

	c.logger.Debug("GetVolume", "volume_db", volResp.GetVolume.Value)
	return volResp.GetVolume.Value, nil
}

// SetVolume sends a SetVolume command and returns the target volume.
func (c *CamillaDSPClient) SetVolume(targetDB float64) (float64, error) {
	cmd := map[string]any{"SetVolume": targetDB}

	response, err := c.sendAndRead(cmd)
	if err != nil {
		return 0, fmt.Errorf("set volume: %w", err)
	}

	var setResp struct {
		SetVolume struct {
			Result string `json:"result"`
		} `json:"SetVolume"`
	}
	if err := json.Unmarshal(response, &setResp); err != nil {
		c.logger.Warn("failed to parse SetVolume response", "error", err)
		return targetDB, nil // assume success
	}

	c.logger.Debug("SetVolume", "target_db", targetDB, "result", setResp.SetVolume.Result)
	return targetDB, nil
}

// StepVolume nudges the volume by deltaDB, clamped to the configured range,
// and returns the resulting volume.
func (c *CamillaDSPClient) StepVolume(deltaDB float64) (float64, error) {
	cur, err := c.GetVolume()
	if err != nil {
		return 0, err
	}

	target := cur + deltaDB
	if target < c.minDB {
		target = c.minDB
	}
	if target > c.maxDB {
		target = c.maxDB
	}
	if target == cur {
		return cur, nil
	}
	return c.SetVolume(target)
}

// Close closes the WebSocket connection.
func (c *CamillaDSPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	return nil
}
