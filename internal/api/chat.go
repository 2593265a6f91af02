package api

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/codedesk/codedesk/internal/model"
	"github.com/codedesk/codedesk/pkg/types"
)

func (s *Server) modelError(c echo.Context, err error) error {
	if errors.Is(err, model.ErrNotConfigured) {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "model service not configured",
		})
	}
	return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
}

func (s *Server) generate(c echo.Context) error {
	var req types.GenerateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body: " + err.Error(),
		})
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "prompt is required"})
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	ctx := c.Request().Context()
	var context []types.ChatMessage
	if s.history != nil {
		var err error
		context, err = s.history.Context(ctx, sessionID, s.cfg.MaxContextMessages)
		if err != nil {
			// Degrade to a contextless generation rather than failing chat.
			log.Printf("api: history fetch for %s failed: %v", sessionID, err)
		}
	}

	response, err := s.model.Generate(ctx, req.Prompt, context, model.Params{
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return s.modelError(c, err)
	}

	if s.history != nil {
		now := time.Now().UTC()
		if err := s.history.Append(ctx, sessionID, types.ChatMessage{Role: "user", Content: req.Prompt, Timestamp: now}); err != nil {
			log.Printf("api: history append for %s failed: %v", sessionID, err)
		}
		if err := s.history.Append(ctx, sessionID, types.ChatMessage{Role: "assistant", Content: response, Timestamp: now}); err != nil {
			log.Printf("api: history append for %s failed: %v", sessionID, err)
		}
	}

	return c.JSON(http.StatusOK, types.GenerateResponse{
		Response:  response,
		SessionID: sessionID,
	})
}

func (s *Server) analyzeCode(c echo.Context) error {
	var req types.AnalyzeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body: " + err.Error(),
		})
	}
	if strings.TrimSpace(req.Code) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "code is required"})
	}

	kind, analysis, err := s.model.Analyze(c.Request().Context(), req.Code, req.AnalysisType)
	if err != nil {
		return s.modelError(c, err)
	}
	return c.JSON(http.StatusOK, types.AnalyzeResponse{
		Type:     kind,
		Analysis: analysis,
		Code:     req.Code,
	})
}

func (s *Server) complete(c echo.Context) error {
	var req types.CompleteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body: " + err.Error(),
		})
	}
	if req.Code == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "code is required"})
	}

	suggestions, err := s.model.Complete(c.Request().Context(), req.Code, req.Line, req.Column, req.MaxSuggestions)
	if err != nil {
		return s.modelError(c, err)
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	return c.JSON(http.StatusOK, types.CompleteResponse{Suggestions: suggestions})
}

func (s *Server) getContext(c echo.Context) error {
	if s.history == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "history store not available"})
	}
	sessionID := c.Param("id")

	msgs, err := s.history.Context(c.Request().Context(), sessionID, 0)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if msgs == nil {
		msgs = []types.ChatMessage{}
	}
	return c.JSON(http.StatusOK, types.ContextResponse{
		SessionID: sessionID,
		Messages:  msgs,
		Count:     len(msgs),
	})
}

func (s *Server) clearContext(c echo.Context) error {
	if s.history == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "history store not available"})
	}
	sessionID := c.Param("id")

	if err := s.history.Clear(c.Request().Context(), sessionID); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}
