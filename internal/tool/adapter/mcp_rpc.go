package adapter

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"riviera/internal/logging"
)

const (
	jsonrpcVersion     = "2.0"
	mcpProtocolVersion = "2024-11-05"
	rpcCallTimeout     = 60 * time.Second
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// stdioClient is a minimal JSON-RPC 2.0 client over a child process's
// stdio, enough for the MCP initialize handshake and tools/call.
type stdioClient struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	pending map[int64]chan *rpcResponse
	mu      sync.Mutex
	writeMu sync.Mutex
	nextID  atomic.Int64
	logger  logging.Logger
	closed  chan struct{}
}

func startStdioClient(command string, args, env []string, logger logging.Logger) (*stdioClient, error) {
	cmd := exec.Command(command, args...)
	if len(env) > 0 {
		cmd.Env = env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", command, err)
	}

	c := &stdioClient{
		cmd:     cmd,
		stdin:   stdin,
		pending: make(map[int64]chan *rpcResponse),
		logger:  logging.OrNop(logger),
		closed:  make(chan struct{}),
	}
	go c.readLoop(stdout)
	return c, nil
}

func (c *stdioClient) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 10<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			c.logger.Debug("skipping non-response line: %v", err)
			continue
		}
		if resp.ID == nil {
			// Server-initiated notification; nothing waits on it.
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[*resp.ID]
		if ok {
			delete(c.pending, *resp.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- &resp
		}
	}
	close(c.closed)
}

func (c *stdioClient) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	requestID := c.nextID.Add(1)
	ch := make(chan *rpcResponse, 1)

	c.mu.Lock()
	c.pending[requestID] = ch
	c.mu.Unlock()

	if err := c.write(rpcRequest{JSONRPC: jsonrpcVersion, ID: &requestID, Method: method, Params: params}); err != nil {
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
	defer cancel()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-c.closed:
		return nil, fmt.Errorf("mcp server exited while waiting for %s", method)
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (c *stdioClient) notify(method string, params any) error {
	return c.write(rpcRequest{JSONRPC: jsonrpcVersion, Method: method, Params: params})
}

func (c *stdioClient) write(req rpcRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.stdin.Write(append(data, '\n'))
	return err
}

func (c *stdioClient) close() error {
	_ = c.stdin.Close()
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	return c.cmd.Wait()
}
