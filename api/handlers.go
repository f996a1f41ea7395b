package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"

	"github.com/richinex/agentrag/agent"
	"github.com/richinex/agentrag/conversation"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, RootResponse{
		Message: "Agentic RAG REST API",
		Version: s.opts.Version,
		Health:  "/health",
		Info:    "/info",
	})
}

// handleHealth always answers 200; the body carries the aggregate status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.checker.Check(r.Context()))
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.agents.Info())
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	a, ok := s.readyAgent(w, r, "Error retrieving tools: ")
	if !ok {
		return
	}
	meta := a.Registry().Metadata()
	if prefix := r.URL.Query().Get("prefix"); prefix != "" {
		meta = a.Registry().WithPrefix(prefix)
	}
	out := ToolsResponse{Tools: make([]ToolInfo, len(meta)), Total: len(meta)}
	for i, m := range meta {
		out.Tools[i] = ToolInfo{Name: m.Name, Description: m.Description}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req, history, verr := decodeChatRequest(w, r)
	if verr != nil {
		s.writeValidationError(w, r, verr)
		return
	}
	a, ok := s.readyAgent(w, r, "Error processing chat request: ")
	if !ok {
		return
	}

	result, err := a.Invoke(r.Context(), history, req.Message)
	if err != nil {
		var ve *conversation.ValidationError
		if errors.As(err, &ve) {
			s.writeValidationError(w, r, fieldErr(ve.Field, ve.Message, ve.Type))
			return
		}
		s.logger.Error("chat failed",
			"request_id", middleware.GetReqID(r.Context()),
			"model_error", agent.IsModelError(err),
			"error", err)
		s.writeError(w, r, http.StatusInternalServerError, errInternal, "Error processing chat request: "+err.Error())
		return
	}

	used := make([]string, 0, len(result.Metadata.ToolCalls))
	for _, c := range result.Metadata.ToolCalls {
		used = append(used, c.Name)
	}
	s.writeJSON(w, http.StatusOK, ChatResponse{
		Message:             result.Message,
		ConversationHistory: conversation.ToWire(result.Conversation),
		Metadata: ChatMetadata{
			ResponseTimeMs: time.Since(start).Milliseconds(),
			ToolsAvailable: result.Metadata.ToolsAvailable,
			ToolsUsed:      used,
			Iterations:     result.Metadata.Iterations,
		},
	})
}

// handleChatStream validates and initializes before committing to a 200
// event stream; later failures arrive as an error event.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, history, verr := decodeChatRequest(w, r)
	if verr != nil {
		s.writeValidationError(w, r, verr)
		return
	}
	a, ok := s.readyAgent(w, r, "Error processing chat request: ")
	if !ok {
		return
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		s.writeError(w, r, http.StatusInternalServerError, errInternal, "streaming is not supported by this connection")
		return
	}

	logger := s.logger.With("request_id", middleware.GetReqID(r.Context()))
	events := 0
	for ev := range a.Stream(r.Context(), history, req.Message) {
		if err := sse.Send(ev); err != nil {
			logger.Debug("stream client gone", "events", events, "error", err)
			return
		}
		events++
	}
	logger.Debug("stream finished", "events", events)
}

// readyAgent initializes the agent service on first use. On failure it
// writes a 503 and reports false.
func (s *Server) readyAgent(w http.ResponseWriter, r *http.Request, detailPrefix string) (*agent.Agent, bool) {
	if err := s.agents.EnsureReady(r.Context()); err != nil {
		s.logger.Warn("agent service not ready", "error", err)
		s.writeError(w, r, http.StatusServiceUnavailable, errUnavailable, detailPrefix+err.Error())
		return nil, false
	}
	a, err := s.agents.Agent()
	if err != nil {
		s.writeError(w, r, http.StatusServiceUnavailable, errUnavailable, detailPrefix+err.Error())
		return nil, false
	}
	return a, true
}
