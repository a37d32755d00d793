package providers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/forgemcp/gateway/internal/retry"
	"github.com/forgemcp/gateway/pkg/models"
)

// wireRequest/wireResponse are the line-framed JSON envelope a child-process
// provider speaks over stdin/stdout: one JSON object per line, a "method"
// selecting list/call, and a literal result or error.
type wireRequest struct {
	Method string          `json:"method"`
	Name   string          `json:"name,omitempty"`
	Args   json.RawMessage `json:"args,omitempty"`
}

type wireResponse struct {
	Tools  []models.ToolDescriptor `json:"tools,omitempty"`
	Result *models.ToolResult      `json:"result,omitempty"`
	Error  string                  `json:"error,omitempty"`
}

// ProcessProvider is a ToolProvider backed by a child process speaking
// line-framed JSON on stdin/stdout. It is the default Dialer target; this is
// a minimal, self-consistent framing rather than a negotiated protocol.
type ProcessProvider struct {
	descriptor *models.Provider

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	scanner *bufio.Scanner

	connected atomic.Bool
}

// NewProcessProvider constructs a provider bound to descriptor's invocation.
// It does not start the process; Connect does.
func NewProcessProvider(descriptor *models.Provider) ToolProvider {
	return &ProcessProvider{descriptor: descriptor}
}

// start launches the child process and wires its stdio pipes. Idempotent:
// a provider already running is left alone. A missing command is a
// permanent configuration error; a failure to actually exec it (e.g. the
// binary is momentarily unavailable on a freshly-provisioned PATH) gets a
// couple of quick retries before giving up.
func (p *ProcessProvider) start(ctx context.Context) error {
	if p.IsConnected() {
		return nil
	}
	if p.descriptor.Command == "" {
		return fmt.Errorf("provider %s: command is required", p.descriptor.ID)
	}

	_, result := retry.DoWithValue(ctx, retry.Exponential(3, 50*time.Millisecond, 500*time.Millisecond), func() (struct{}, error) {
		return struct{}{}, p.launch(ctx)
	})
	return result.Err
}

func (p *ProcessProvider) launch(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, p.descriptor.Command, p.descriptor.Args...)
	cmd.Env = os.Environ()
	for k, v := range p.descriptor.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return retry.Permanent(fmt.Errorf("provider %s: stdin pipe: %w", p.descriptor.ID, err))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return retry.Permanent(fmt.Errorf("provider %s: stdout pipe: %w", p.descriptor.ID, err))
	}
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("provider %s: start: %w", p.descriptor.ID, err)
	}

	p.mu.Lock()
	p.cmd = cmd
	p.stdin = stdin
	p.scanner = scanner
	p.mu.Unlock()
	p.connected.Store(true)
	return nil
}

// List asks the child process for its tool catalog, starting the process
// on first use: constructing the client does not dial it, List does.
func (p *ProcessProvider) List(ctx context.Context) ([]models.ToolDescriptor, error) {
	if err := p.start(ctx); err != nil {
		return nil, err
	}
	resp, err := p.roundTrip(wireRequest{Method: "list"})
	if err != nil {
		return nil, err
	}
	return resp.Tools, nil
}

// Call invokes a named tool on the child process.
func (p *ProcessProvider) Call(ctx context.Context, name string, args json.RawMessage) (*models.ToolResult, error) {
	if !p.IsConnected() {
		return nil, fmt.Errorf("provider %s: not connected", p.descriptor.ID)
	}
	resp, err := p.roundTrip(wireRequest{Method: "call", Name: name, Args: args})
	if err != nil {
		return nil, err
	}
	if resp.Result == nil {
		return models.ErrorResult(resp.Error), nil
	}
	return resp.Result, nil
}

func (p *ProcessProvider) roundTrip(req wireRequest) (*wireResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stdin == nil || p.scanner == nil {
		return nil, fmt.Errorf("provider %s: not connected", p.descriptor.ID)
	}

	line, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := p.stdin.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		return nil, fmt.Errorf("provider %s: closed stream", p.descriptor.ID)
	}
	var resp wireResponse
	if err := json.Unmarshal(p.scanner.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != "" && resp.Result == nil && resp.Tools == nil {
		return nil, fmt.Errorf("provider %s: %s", p.descriptor.ID, resp.Error)
	}
	return &resp, nil
}

// Close terminates the child process and releases its pipes.
func (p *ProcessProvider) Close() error {
	p.connected.Store(false)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stdin != nil {
		_ = p.stdin.Close()
	}
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
		_ = p.cmd.Wait()
	}
	return nil
}

// IsConnected reports whether the process is currently running.
func (p *ProcessProvider) IsConnected() bool {
	return p.connected.Load()
}
