package server

import (
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/krxlab/ipo-advisor/internal/sse"
	"github.com/krxlab/ipo-advisor/internal/workflow"
	"github.com/krxlab/ipo-advisor/provider"
)

// WorkflowHandler serves the streaming advisory endpoint.
type WorkflowHandler struct {
	Provider   provider.Provider
	Retriever  workflow.Retriever
	MaxResults int

	logger *log.Logger
}

// AdviceRequest is the stream endpoint request body. EnableRAG defaults to
// true when absent.
type AdviceRequest struct {
	Topic     string `json:"topic"`
	EnableRAG *bool  `json:"enable_rag"`
}

func (h *WorkflowHandler) Register(g *echo.Group) {
	g.POST("/advice/stream", h.streamAdvice)
}

func (h *WorkflowHandler) log() *log.Logger {
	if h.logger == nil {
		h.logger = log.New(log.Writer(), "[WF] ", log.LstdFlags)
	}
	return h.logger
}

// streamAdvice runs one advisory workflow and streams its events as SSE
// frames. Every stream ends with exactly one end frame, also on node failure.
func (h *WorkflowHandler) streamAdvice(c echo.Context) error {
	var req AdviceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic required")
	}
	enableRAG := req.EnableRAG == nil || *req.EnableRAG

	var retriever workflow.Retriever
	if enableRAG {
		retriever = h.Retriever
	}
	advisor := workflow.NewAdvisorNode(h.Provider, retriever, h.MaxResults)
	graph, err := workflow.NewAdvisoryGraph(advisor)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	engine := workflow.NewEngine(graph)

	sessionID := uuid.NewString()
	state := workflow.NewState(sessionID, topic)
	h.log().Printf("run %s: topic=%q rag=%v", sessionID, topic, enableRAG)

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	enc := sse.NewEncoder(resp)
	for ev := range engine.Run(c.Request().Context(), state) {
		streamEvents.WithLabelValues(string(ev.Type)).Inc()
		if err := enc.WriteEvent(ev); err != nil {
			// client went away; the engine stops via the request context
			h.log().Printf("run %s: write failed: %v", sessionID, err)
			break
		}
	}
	return nil
}
