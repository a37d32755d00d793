// Package rpc terminates the gateway's line-framed JSON-RPC transport and
// resolves list_tools/call_tool against the tool loader, the feature
// coordinator, and the external provider manager.
package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/forgemcp/gateway/internal/bm25"
	"github.com/forgemcp/gateway/internal/gatewayerr"
	"github.com/forgemcp/gateway/internal/hooks"
	"github.com/forgemcp/gateway/internal/loader"
	"github.com/forgemcp/gateway/internal/observability"
	"github.com/forgemcp/gateway/pkg/models"
)

// Catalog is the live tool map the server consults for lookups and listing.
type Catalog interface {
	loader.Catalog
}

// Coordinator routes a call to an internal feature manager, returning
// (nil, nil) when the providerId is not internal.
type Coordinator interface {
	Route(ctx context.Context, providerID, toolName string, args json.RawMessage) (*models.ToolResult, error)
}

// ProviderClient is the subset of providers.ToolProvider the server needs
// to dispatch an external call.
type ProviderClient interface {
	Call(ctx context.Context, name string, args json.RawMessage) (*models.ToolResult, error)
}

// ProviderLookup resolves a connected external provider by id.
type ProviderLookup interface {
	Client(providerID string) (ProviderClient, bool)
}

// Store is the persistence surface the server needs directly: usage logging.
type Store interface {
	loader.UsageStore
}

// Server terminates list_tools/call_tool requests over a line-framed JSON
// stream.
type Server struct {
	catalog     Catalog
	index       *bm25.Index
	loader      *loader.Loader
	coordinator Coordinator
	providers   ProviderLookup
	store       Store
	bus         *hooks.Bus
	sem         *semaphore.Weighted
	callTimeout time.Duration
	log         *slog.Logger
	metrics     *observability.Metrics
	tracer      *observability.Tracer
}

// New constructs a Server. maxConcurrent bounds how many call_tool requests
// run at once; callTimeout bounds a single tool invocation.
func New(catalog Catalog, index *bm25.Index, ld *loader.Loader, coord Coordinator, providers ProviderLookup, store Store, bus *hooks.Bus, maxConcurrent int, callTimeout time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if maxConcurrent < 1 {
		maxConcurrent = 8
	}
	return &Server{
		catalog:     catalog,
		index:       index,
		loader:      ld,
		coordinator: coord,
		providers:   providers,
		store:       store,
		bus:         bus,
		sem:         semaphore.NewWeighted(int64(maxConcurrent)),
		callTimeout: callTimeout,
		log:         logger.With("component", "rpc"),
	}
}

// SetObservability attaches metrics and tracing collectors. Optional; a
// Server with neither attached just skips recording.
func (s *Server) SetObservability(metrics *observability.Metrics, tracer *observability.Tracer) {
	s.metrics = metrics
	s.tracer = tracer
}

// Serve reads line-framed requests from r and writes line-framed responses
// to w until r is exhausted or ctx is cancelled. Requests run concurrently,
// bounded by the server's worker semaphore; writes are serialized.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var writeMu sync.Mutex
	var wg sync.WaitGroup

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := append([]byte(nil), scanner.Bytes()...)

		if err := s.sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(line []byte) {
			defer wg.Done()
			defer s.sem.Release(1)

			resp := s.handleLine(ctx, line)
			encoded, err := json.Marshal(resp)
			if err != nil {
				s.log.Error("failed to encode response", "error", err)
				return
			}
			writeMu.Lock()
			defer writeMu.Unlock()
			if _, err := w.Write(append(encoded, '\n')); err != nil {
				s.log.Error("failed to write response", "error", err)
			}
		}(line)
	}
	wg.Wait()
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read request stream: %w", err)
	}
	return nil
}

func (s *Server) handleLine(ctx context.Context, line []byte) Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Response{JSONRPC: "2.0", Error: &Error{Code: errCodeParseError, Message: err.Error()}}
	}

	var (
		result json.RawMessage
		err    error
	)
	switch req.Method {
	case "list_tools":
		result, err = s.handleListTools(req.Params)
	case "call_tool":
		result, err = s.handleCallTool(ctx, req.Params)
	default:
		return Response{JSONRPC: "2.0", ID: req.ID, Error: &Error{Code: errCodeMethodNotFound, Message: fmt.Sprintf("unknown method %q", req.Method)}}
	}
	if err != nil {
		return Response{JSONRPC: "2.0", ID: req.ID, Error: &Error{Code: errCodeInvalidRequest, Message: err.Error()}}
	}
	return Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (s *Server) handleListTools(params json.RawMessage) (json.RawMessage, error) {
	var p ListToolsParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("decode list_tools params: %w", err)
		}
	}

	selection := s.loader.Select(p.Query, s.index, s.catalog)
	names := append(append([]string{}, selection.Essential...), selection.Relevant...)

	seen := make(map[string]struct{}, len(names))
	tools := make([]ToolSummary, 0, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		desc, ok := s.catalog.Get(name)
		if !ok {
			continue
		}
		tools = append(tools, ToolSummary{Name: desc.Name, Description: desc.Description, InputSchema: desc.InputSchema})
	}

	return json.Marshal(ListToolsResult{Tools: tools})
}

func (s *Server) handleCallTool(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var p CallToolParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("decode call_tool params: %w", err)
	}

	result := s.dispatch(ctx, p.Name, p.Arguments)
	return json.Marshal(result)
}

// dispatch resolves the live descriptor, fires the PreToolUse/PostToolUse
// (or ErrorOccurred) events around the call, and records usage. It never
// returns an error: every failure is folded into the returned ToolResult's
// isError shape, matching the RPC wire contract.
func (s *Server) dispatch(ctx context.Context, name string, args json.RawMessage) *models.ToolResult {
	start := time.Now()
	ctx, span := s.tracer.TraceToolExecution(ctx, name)
	defer span.End()

	desc, ok := s.catalog.Get(name)
	if !ok {
		err := fmt.Errorf("%w: %s", gatewayerr.ErrToolNotFound, name)
		observability.RecordError(span, err)
		return s.fail(ctx, name, args, start, err)
	}

	callCtx := ctx
	if s.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}

	s.fireEvent(ctx, hooks.PreToolUse, name, args, nil, nil)

	result, err := s.invoke(callCtx, desc, args)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", gatewayerr.ErrTimeout, err)
		}
		observability.RecordError(span, err)
		return s.fail(ctx, name, args, start, err)
	}

	s.fireEvent(ctx, hooks.PostToolUse, name, args, result, nil)
	success := !result.IsError
	s.recordUsage(ctx, name, args, start, success)
	s.recordMetrics(name, success, start)
	return result
}

func (s *Server) recordMetrics(name string, success bool, start time.Time) {
	status := "success"
	if !success {
		status = "error"
	}
	s.metrics.RecordToolExecution(name, status, time.Since(start).Seconds())
}

func (s *Server) invoke(ctx context.Context, desc *models.ToolDescriptor, args json.RawMessage) (*models.ToolResult, error) {
	if result, err := s.coordinator.Route(ctx, desc.ProviderID, desc.Name, args); result != nil || err != nil {
		return result, err
	}
	client, ok := s.providers.Client(desc.ProviderID)
	if !ok {
		return nil, fmt.Errorf("%w: provider %s is not connected", gatewayerr.ErrUnavailable, desc.ProviderID)
	}
	return client.Call(ctx, desc.Name, args)
}

func (s *Server) fail(ctx context.Context, name string, args json.RawMessage, start time.Time, err error) *models.ToolResult {
	s.fireEvent(ctx, hooks.ErrorOccurred, name, args, nil, err)
	s.recordUsage(ctx, name, args, start, false)
	s.recordMetrics(name, false, start)
	return models.ErrorResult(err.Error())
}

func (s *Server) recordUsage(ctx context.Context, name string, args json.RawMessage, start time.Time, success bool) {
	entry := &models.UsageLogEntry{
		Timestamp: time.Now().UTC(),
		ToolName:  name,
		Arguments: string(args),
		Success:   success,
		ElapsedMS: time.Since(start).Milliseconds(),
	}
	s.loader.RecordCall(ctx, s.store, entry)
}

func (s *Server) fireEvent(ctx context.Context, kind hooks.Kind, toolName string, args json.RawMessage, result *models.ToolResult, err error) {
	ev := hooks.NewEvent(kind)
	ev.ToolName = toolName
	ev.ToolArgs = args
	ev.ToolResult = result
	ev.Err = err
	s.bus.Fire(ctx, ev)
}
