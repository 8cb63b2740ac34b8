// Package mcpserver exposes the stateless conversation and recommendation
// flows as MCP tools. Callers are anonymous, so batches are never
// persisted.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/goccy/go-json"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	log "github.com/sirupsen/logrus"

	"watchwise/internal/apperr"
	"watchwise/internal/conversation"
	"watchwise/internal/recommend"
)

const (
	ToolNextQuestion = "next_question"
	ToolRecommend    = "recommend"
)

// Server implements the tool handlers.
type Server struct {
	svc *recommend.Service
}

func New(svc *recommend.Service) *Server {
	return &Server{svc: svc}
}

// MCPServer registers the tools on a fresh mcp.Server.
func (s *Server) MCPServer(version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "watchwise-mcp-server",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name: ToolNextQuestion,
		Description: "Given the questionnaire so far as conversationHistory " +
			"([{question, questionId?, answer}]), returns the next question, a clarification, " +
			"or the extracted preferences once ready.",
	}, s.NextQuestion)

	mcp.AddTool(server, &mcp.Tool{
		Name: ToolRecommend,
		Description: "Returns six movie/series recommendations for {preferences, watchedShows, region}. " +
			"preferences is the object returned by next_question when ready.",
	}, s.Recommend)

	log.Printf("📋 Registered %d MCP tools", 2)
	return server
}

// Handler serves the tools over SSE.
func (s *Server) Handler(version string) http.Handler {
	server := s.MCPServer(version)
	return mcp.NewSSEHandler(func(*http.Request) *mcp.Server { return server })
}

func (s *Server) NextQuestion(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[map[string]interface{}]) (*mcp.CallToolResultFor[any], error) {
	var req conversation.StepRequest
	if err := decodeArgs(params.Arguments, &req); err != nil {
		return toolError(err), nil
	}
	resp, err := s.svc.Step(ctx, "", req)
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(resp)
}

func (s *Server) Recommend(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[map[string]interface{}]) (*mcp.CallToolResultFor[any], error) {
	var req recommend.Request
	if err := decodeArgs(params.Arguments, &req); err != nil {
		return toolError(err), nil
	}
	log.Printf("🎬 MCP Server: recommend for region %q", req.Region)
	resp, err := s.svc.Recommend(ctx, "", req)
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(resp)
}

// decodeArgs round-trips the loosely typed arguments through JSON so the
// request types' own unmarshalling rules apply.
func decodeArgs(args map[string]interface{}, v interface{}) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %v: %w", err, apperr.ErrValidation)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode arguments: %v: %w", err, apperr.ErrValidation)
	}
	return nil
}

func toolJSON(v interface{}) (*mcp.CallToolResultFor[any], error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: string(raw)}},
	}, nil
}

// toolError reports the client-safe message plus any field details.
func toolError(err error) *mcp.CallToolResultFor[any] {
	_, msg := apperr.Status(err)
	var fe *apperr.FieldError
	text := "❌ " + msg
	if errors.As(err, &fe) {
		fields := make([]string, 0, len(fe.Fields))
		for f := range fe.Fields {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			text += fmt.Sprintf("\n- %s: %s", f, fe.Fields[f])
		}
	}
	log.WithError(err).Warn("MCP tool call failed")
	return &mcp.CallToolResultFor[any]{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
