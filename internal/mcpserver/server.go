// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes read-only document tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/munin/internal/apperr"
	"github.com/starford/munin/internal/store"
)

// Server wraps the MCP server with document tools.
type Server struct {
	mcp *server.MCPServer
	db  *store.DB
}

// New creates a new MCP server with all tools registered.
func New(db *store.DB) *Server {
	s := &Server{db: db}

	s.mcp = server.NewMCPServer(
		"Munin",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List ingested documents, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of documents to return (default 50)")),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read a single document with its notes, attendees, and transcript."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Document id")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("get_document_history",
		mcp.WithDescription("Return the preserved prior versions of a document, newest first."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Document id")),
	), s.getDocumentHistory)

	s.mcp.AddTool(mcp.NewTool("ingest_status",
		mcp.WithDescription("Report store counts for the ingested snapshot data."),
	), s.ingestStatus)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 50)

	docs, total, err := s.db.ListDocuments(limit, 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, _ := json.MarshalIndent(map[string]any{
		"documents": docs,
		"total":     total,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	doc, err := s.db.GetDocument(id)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	attendees, err := s.db.Attendees(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	transcript, err := s.db.Transcript(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, _ := json.MarshalIndent(map[string]any{
		"document":   doc,
		"attendees":  attendees,
		"transcript": transcript,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getDocumentHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	recs, err := s.db.History(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(recs) == 0 {
		return mcp.NewToolResultText("no history recorded"), nil
	}

	out, _ := json.MarshalIndent(recs, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) ingestStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.db.CountDocuments()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	history, err := s.db.CountHistory()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, _ := json.MarshalIndent(map[string]any{
		"documents":       docs,
		"history_records": history,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
