package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/codedesk/codedesk/internal/terminal"
	"github.com/codedesk/codedesk/pkg/types"
)

// sessionTokenTTL bounds WebSocket session tokens. Long enough to cover a
// working session, short enough that a leaked token goes stale.
const sessionTokenTTL = time.Hour

func (s *Server) executeCommand(c echo.Context) error {
	var req types.ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body: " + err.Error(),
		})
	}

	// Command failures are results, not HTTP errors: the response is 200
	// with success=false so clients always get the full execution record.
	var result types.ExecuteResult
	if len(req.Argv) > 0 {
		result = s.executor.ExecuteArgv(c.Request().Context(), req.Argv, req)
	} else {
		result = s.executor.Execute(c.Request().Context(), req)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) createSession(c echo.Context) error {
	var req types.SessionCreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body: " + err.Error(),
		})
	}

	sess, err := s.sessions.Create(req)
	if err != nil {
		if errors.Is(err, terminal.ErrSessionExists) {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	resp := types.SessionCreateResponse{
		Success:   true,
		SessionID: sess.ID,
		PID:       sess.PID(),
	}
	if s.cfg.APIKey != "" && s.tokens != nil {
		token, err := s.tokens.IssueSessionToken(sess.ID, sessionTokenTTL)
		if err != nil {
			log.Printf("api: failed to issue session token for %s: %v", sess.ID, err)
		} else {
			resp.Token = token
		}
	}
	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) listSessions(c echo.Context) error {
	infos := s.registry.List()
	return c.JSON(http.StatusOK, types.SessionListResponse{
		Sessions: infos,
		Count:    len(infos),
	})
}

func (s *Server) killSession(c echo.Context) error {
	id := c.Param("id")
	if !s.sessions.Kill(id) {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "unknown session: " + id,
		})
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) sendInput(c echo.Context) error {
	id := c.Param("id")

	var req types.SendRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body: " + err.Error(),
		})
	}

	out, err := s.sessions.Send(id, []byte(req.Input))
	if err != nil {
		if errors.Is(err, terminal.ErrUnknownSession) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, types.SendResponse{Output: string(out)})
}

func (s *Server) fileTree(c echo.Context) error {
	path := c.QueryParam("path")
	if path == "" {
		path = s.cfg.WorkspaceDir
	}
	abs, err := s.resolvePath(path)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	maxDepth := 3
	if v := c.QueryParam("maxDepth"); v != "" {
		maxDepth, err = strconv.Atoi(v)
		if err != nil || maxDepth < 1 {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "maxDepth must be a positive integer",
			})
		}
	}

	ignore := terminal.DefaultIgnorePatterns
	if v := c.QueryParam("ignore"); v != "" {
		ignore = nil
		for _, pat := range strings.Split(v, ",") {
			if pat = strings.TrimSpace(pat); pat != "" {
				ignore = append(ignore, pat)
			}
		}
	}

	node, err := terminal.Tree(abs, maxDepth, ignore)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, node)
}
