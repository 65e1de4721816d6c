package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ghiac/mcpbridge/log"
	"github.com/ghiac/mcpbridge/model"
)

const (
	// protocolVersion is the MCP revision advertised during initialize
	protocolVersion = "2024-11-05"

	clientName    = "mcpbridge"
	clientVersion = "1.0.0"

	// DefaultRequestTimeout bounds every request awaiting its reply
	DefaultRequestTimeout = 30 * time.Second

	// terminateGrace is how long Disconnect waits after SIGTERM before
	// killing the subprocess
	terminateGrace = 5 * time.Second

	// maxLineBytes caps a single JSON-RPC line from the server
	maxLineBytes = 10 * 1024 * 1024
)

// pendingReply is delivered on a pending request's channel: either the
// correlated response or a terminal transport error.
type pendingReply struct {
	resp *model.Response
	err  error
}

// Client owns one MCP server subprocess and its JSON-RPC session: the
// handshake, request/response correlation, tool discovery, tool invocation
// and teardown. A Client is created per connection attempt; Manager discards
// it on disconnect and builds a fresh one to reconnect.
type Client struct {
	config  model.ServerConfig
	timeout time.Duration

	cmd   *exec.Cmd
	stdin io.WriteCloser

	// writeMu serializes line writes so concurrent senders cannot
	// interleave envelopes on the wire
	writeMu sync.Mutex

	// mu guards pending, connected, closed and tools. The pending table is
	// touched from two contexts (senders insert, the reader resolves) and
	// is never accessed without it.
	mu        sync.Mutex
	pending   map[int64]chan pendingReply
	connected bool
	closed    bool
	tools     []model.Tool

	nextID atomic.Int64

	readerDone chan struct{}
	stderrDone chan struct{}
	procDone   chan struct{}
}

// NewClient creates a client for the given server config. A non-positive
// timeout falls back to DefaultRequestTimeout.
func NewClient(cfg model.ServerConfig, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{
		config:  cfg,
		timeout: timeout,
		pending: make(map[int64]chan pendingReply),
	}
}

// Config returns the server config this client was built from.
func (c *Client) Config() model.ServerConfig { return c.config }

// Connected reports whether the handshake completed and the session is
// still believed to be up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Tools returns the current catalog snapshot.
func (c *Client) Tools() []model.Tool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Tool, len(c.tools))
	copy(out, c.tools)
	return out
}

// Connect spawns the server process, performs the initialize/initialized
// handshake and discovers the tool catalog. The reader goroutine is started
// before anything is written so no reply can be missed. Every failure is
// returned as a ConnectionError; the process, if it was spawned, is torn
// down again.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.config.Validate(); err != nil {
		return &ConnectionError{Server: c.config.Name, Err: err}
	}

	c.mu.Lock()
	if c.cmd != nil || c.closed {
		c.mu.Unlock()
		return &ConnectionError{Server: c.config.Name, Err: fmt.Errorf("client already used; create a new one")}
	}
	c.mu.Unlock()

	cmd := exec.Command(c.config.Command, c.config.Args...)
	env := os.Environ()
	for k, v := range c.config.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &ConnectionError{Server: c.config.Name, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &ConnectionError{Server: c.config.Name, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &ConnectionError{Server: c.config.Name, Err: err}
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		_ = stderr.Close()
		return &ConnectionError{Server: c.config.Name, Err: err}
	}

	c.mu.Lock()
	c.cmd = cmd
	c.mu.Unlock()
	c.startSession(stdin, stdout)

	c.stderrDone = make(chan struct{})
	go c.drainStderr(stderr)

	c.procDone = make(chan struct{})
	go func() {
		<-c.readerDone
		<-c.stderrDone
		_ = cmd.Wait()
		close(c.procDone)
	}()

	if _, err := c.sendRequest(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"roots":    map[string]any{"listChanged": true},
			"sampling": map[string]any{},
		},
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": clientVersion,
		},
	}); err != nil {
		c.Disconnect()
		return &ConnectionError{Server: c.config.Name, Err: err}
	}

	if err := c.sendNotification("notifications/initialized", map[string]any{}); err != nil {
		c.Disconnect()
		return &ConnectionError{Server: c.config.Name, Err: err}
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	// Discovery failure is not fatal: the session is up, the catalog is
	// just empty until a refresh succeeds.
	if err := c.RefreshTools(ctx); err != nil {
		log.Log.Warnf("Failed to fetch tools from '%s': %v", c.config.Name, err)
	}

	log.Log.Infof("MCP server '%s' connected with %d tools", c.config.Name, len(c.Tools()))
	return nil
}

// startSession wires the transport endpoints and launches the single
// background reader. Split out from Connect so tests can drive the protocol
// engine over in-process pipes.
func (c *Client) startSession(stdin io.WriteCloser, stdout io.Reader) {
	c.mu.Lock()
	c.stdin = stdin
	c.mu.Unlock()
	c.readerDone = make(chan struct{})
	go c.readLoop(stdout)
}

// Disconnect tears the session down: stops the reader by killing the
// process, waits a grace period after SIGTERM, then force-kills. It is
// idempotent and safe on a never-connected client.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.connected = false
	c.tools = nil
	cmd := c.cmd
	stdin := c.stdin
	alreadyClosed := c.closed
	c.closed = true
	c.cmd = nil
	c.stdin = nil
	c.mu.Unlock()

	if alreadyClosed || cmd == nil {
		return
	}

	// Closing stdin is the polite shutdown signal for stdio servers.
	if stdin != nil {
		_ = stdin.Close()
	}
	if cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}

	select {
	case <-c.procDone:
	case <-time.After(terminateGrace):
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-c.procDone
	}

	log.Log.Infof("MCP server '%s' disconnected", c.config.Name)
}

// CallTool invokes a tool on the server and returns the raw result payload.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	if !c.Connected() {
		return nil, &NotConnectedError{Server: c.config.Name}
	}
	return c.sendRequest(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
}

// RefreshTools re-runs discovery and replaces the catalog wholesale.
func (c *Client) RefreshTools(ctx context.Context) error {
	result, err := c.sendRequest(ctx, "tools/list", map[string]any{})
	if err != nil {
		return err
	}

	var parsed struct {
		Tools []struct {
			Name        string         `json:"name"`
			Description string         `json:"description"`
			InputSchema map[string]any `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return fmt.Errorf("invalid tools/list result from '%s': %w", c.config.Name, err)
	}

	tools := make([]model.Tool, 0, len(parsed.Tools))
	for _, t := range parsed.Tools {
		tools = append(tools, model.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
			ServerName:  c.config.Name,
		})
	}

	c.mu.Lock()
	c.tools = tools
	c.mu.Unlock()
	return nil
}

// ListResources lists the server's readable resources, an optional
// capability beyond tools.
func (c *Client) ListResources(ctx context.Context) ([]model.Resource, error) {
	if !c.Connected() {
		return nil, &NotConnectedError{Server: c.config.Name}
	}
	result, err := c.sendRequest(ctx, "resources/list", map[string]any{})
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Resources []model.Resource `json:"resources"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("invalid resources/list result from '%s': %w", c.config.Name, err)
	}
	return parsed.Resources, nil
}

// ReadResource reads one resource by URI and returns the raw result.
func (c *Client) ReadResource(ctx context.Context, uri string) (json.RawMessage, error) {
	if !c.Connected() {
		return nil, &NotConnectedError{Server: c.config.Name}
	}
	return c.sendRequest(ctx, "resources/read", map[string]any{"uri": uri})
}

// sendRequest registers a pending entry, writes the envelope and waits for
// the correlated reply, the timeout or caller cancellation. At most one
// outcome is ever delivered per id: the reader removes the entry when it
// resolves, and timeout/cancellation evict it so a late reply finds nothing.
func (c *Client) sendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	ch := make(chan pendingReply, 1)

	c.mu.Lock()
	if c.closed || c.stdin == nil {
		c.mu.Unlock()
		return nil, &NotConnectedError{Server: c.config.Name}
	}
	c.pending[id] = ch
	c.mu.Unlock()

	data, err := json.Marshal(model.NewRequest(id, method, params))
	if err != nil {
		c.evict(id)
		return nil, fmt.Errorf("failed to encode request '%s': %w", method, err)
	}
	if err := c.writeLine(data); err != nil {
		c.evict(id)
		return nil, fmt.Errorf("failed to send request '%s' to '%s': %w", method, c.config.Name, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		if reply.err != nil {
			return nil, reply.err
		}
		if reply.resp.Error != nil {
			return nil, &RemoteToolError{Server: c.config.Name, Method: method, RPCError: reply.resp.Error}
		}
		return reply.resp.Result, nil
	case <-timer.C:
		c.evict(id)
		return nil, &RequestTimeoutError{Server: c.config.Name, Method: method, Timeout: c.timeout}
	case <-ctx.Done():
		c.evict(id)
		return nil, ctx.Err()
	}
}

// sendNotification writes a fire-and-forget envelope; nothing is registered
// in the pending table.
func (c *Client) sendNotification(method string, params any) error {
	c.mu.Lock()
	if c.closed || c.stdin == nil {
		c.mu.Unlock()
		return &NotConnectedError{Server: c.config.Name}
	}
	c.mu.Unlock()

	data, err := json.Marshal(model.NewNotification(method, params))
	if err != nil {
		return fmt.Errorf("failed to encode notification '%s': %w", method, err)
	}
	return c.writeLine(data)
}

func (c *Client) writeLine(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	stdin := c.stdin
	c.mu.Unlock()
	if stdin == nil {
		return &NotConnectedError{Server: c.config.Name}
	}
	_, err := stdin.Write(append(data, '\n'))
	return err
}

// readLoop is the single background reader: one newline-delimited JSON-RPC
// message per line. Unparseable lines and unknown ids are dropped without
// stopping the loop. When the stream closes, every pending request is
// failed immediately with ErrConnectionLost rather than left to time out.
func (c *Client) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		msg, err := model.ParseMessage(line)
		if err != nil {
			log.Log.Debugf("Dropping malformed line from '%s': %v", c.config.Name, err)
			continue
		}
		switch m := msg.(type) {
		case *model.Response:
			c.resolve(m)
		case *model.Notification:
			log.Log.Debugf("Notification from '%s': %s", c.config.Name, m.Method)
		case *model.Request:
			// Server-initiated requests are out of scope; skip them.
			log.Log.Debugf("Ignoring server request '%s' from '%s'", m.Method, c.config.Name)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Log.Debugf("MCP read loop for '%s' ended: %v", c.config.Name, err)
	}

	c.failAllPending(ErrConnectionLost)
	close(c.readerDone)
}

// resolve delivers a response to its pending entry and removes it. Replies
// whose entry is gone (timed out, evicted) are discarded.
func (c *Client) resolve(resp *model.Response) {
	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.mu.Unlock()

	if !ok {
		log.Log.Debugf("Dropping reply with unknown id %d from '%s'", resp.ID, c.config.Name)
		return
	}
	ch <- pendingReply{resp: resp}
}

// failAllPending resolves every in-flight request with err and marks the
// session down. Called once, by the reader, on stream closure.
func (c *Client) failAllPending(err error) {
	c.mu.Lock()
	c.connected = false
	stale := c.pending
	c.pending = make(map[int64]chan pendingReply)
	c.mu.Unlock()

	for _, ch := range stale {
		ch <- pendingReply{err: err}
	}
}

func (c *Client) evict(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// drainStderr keeps the child's stderr pipe from filling up and surfaces
// its chatter at debug level.
func (c *Client) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 16*1024), maxLineBytes)
	for scanner.Scan() {
		log.Log.Debugf("[%s stderr] %s", c.config.Name, scanner.Text())
	}
	close(c.stderrDone)
}
