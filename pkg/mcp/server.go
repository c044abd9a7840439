package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pario-ai/scribe/pkg/logger"
	"github.com/pario-ai/scribe/pkg/models"
	"github.com/pario-ai/scribe/pkg/tracker"
)

// CacheStatter reports web search cache statistics for either backend.
type CacheStatter interface {
	Stats(ctx context.Context) (models.CacheStats, error)
}

// AuditSearcher queries the LLM call audit log.
type AuditSearcher interface {
	Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error)
	Stats(ctx context.Context) ([]models.AuditStat, error)
}

// Server exposes run history to MCP clients over stdio using JSON-RPC 2.0.
type Server struct {
	tracker tracker.Tracker
	cache   CacheStatter
	auditor AuditSearcher
	version string
}

// New creates a Server. cache and auditor may be nil when the corresponding
// subsystem is disabled.
func New(t tracker.Tracker, cache CacheStatter, auditor AuditSearcher, version string) *Server {
	return &Server{
		tracker: t,
		cache:   cache,
		auditor: auditor,
		version: version,
	}
}

// Run serves newline-delimited JSON-RPC messages from r, answering on w,
// until r is exhausted or ctx is cancelled. Notifications get no reply.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, maxMessageSize), maxMessageSize)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp *Response
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			logger.Warn(ctx, "mcp: unparseable request", "error", err)
			resp = errorFor(nil, CodeParseError, "parse error")
		} else {
			resp = s.dispatch(ctx, &req)
		}
		if resp == nil {
			continue
		}
		// Encode appends the newline that frames the message.
		if err := enc.Encode(resp); err != nil {
			logger.Error(ctx, "mcp: write response", err, "method", req.Method)
		}
	}
	return scanner.Err()
}

const maxMessageSize = 1 << 20

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return resultFor(req.ID, InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: serverName, Version: s.version},
			Capabilities:    Capabilities{Tools: &ToolsCapability{}},
		})
	case "ping":
		return resultFor(req.ID, struct{}{})
	case "tools/list":
		return resultFor(req.ID, ToolsListResult{Tools: allTools})
	case "tools/call":
		return s.callTool(ctx, req)
	}
	if len(req.ID) == 0 {
		// notifications/initialized, notifications/cancelled and friends.
		return nil
	}
	return errorFor(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
}

func (s *Server) callTool(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorFor(req.ID, CodeInvalidParams, "invalid params")
	}
	handler, ok := toolHandlers[params.Name]
	if !ok {
		return resultFor(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}
	logger.Debug(ctx, "mcp: tool call", "tool", params.Name)
	return resultFor(req.ID, handler(ctx, s, params.Arguments))
}
