package api

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/codedesk/codedesk/internal/archive"
	"github.com/codedesk/codedesk/pkg/types"
)

const modTimeLayout = "2006-01-02T15:04:05Z"

// resolvePath maps a client path onto the workspace. Relative paths join the
// workspace root; absolute paths must already be inside it. Anything that
// escapes after cleaning is rejected.
func (s *Server) resolvePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("path is required")
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(s.cfg.WorkspaceDir, abs)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(s.cfg.WorkspaceDir, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", path)
	}
	return abs, nil
}

// workspaceRel reports a resolved path relative to the workspace root, for
// echoing back to clients.
func (s *Server) workspaceRel(abs string) string {
	rel, err := filepath.Rel(s.cfg.WorkspaceDir, abs)
	if err != nil {
		return abs
	}
	return rel
}

func (s *Server) readFile(c echo.Context) error {
	abs, err := s.resolvePath(c.QueryParam("path"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	info, err := os.Stat(abs)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "file not found: " + c.QueryParam("path")})
	}
	if info.IsDir() {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "path is a directory"})
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, types.FileContent{
		Path:     s.workspaceRel(abs),
		Content:  string(content),
		Size:     info.Size(),
		Modified: info.ModTime().UTC().Format(modTimeLayout),
	})
}

func (s *Server) writeFile(c echo.Context) error {
	var req types.WriteFileRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body: " + err.Error(),
		})
	}
	abs, err := s.resolvePath(req.Path)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if err := os.WriteFile(abs, []byte(req.Content), 0644); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, types.FileOpResponse{
		Success: true,
		Path:    s.workspaceRel(abs),
		Size:    int64(len(req.Content)),
	})
}

func (s *Server) deleteFile(c echo.Context) error {
	abs, err := s.resolvePath(c.QueryParam("path"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if abs == filepath.Clean(s.cfg.WorkspaceDir) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "refusing to delete the workspace root"})
	}
	for _, p := range s.cfg.ProtectedPaths {
		if abs == p || strings.HasPrefix(abs, p+string(filepath.Separator)) {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "path is protected: " + p})
		}
	}

	if _, err := os.Stat(abs); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "file not found: " + c.QueryParam("path")})
	}
	if err := os.RemoveAll(abs); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, types.FileOpResponse{Success: true, Path: s.workspaceRel(abs)})
}

func (s *Server) renameFile(c echo.Context) error {
	var req types.RenameRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body: " + err.Error(),
		})
	}
	oldAbs, err := s.resolvePath(req.OldPath)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	newAbs, err := s.resolvePath(req.NewPath)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if _, err := os.Stat(oldAbs); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "file not found: " + req.OldPath})
	}
	if err := os.MkdirAll(filepath.Dir(newAbs), 0755); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if err := os.Rename(oldAbs, newAbs); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, types.FileOpResponse{Success: true, Path: s.workspaceRel(newAbs)})
}

func (s *Server) listFiles(c echo.Context) error {
	path := c.QueryParam("path")
	if path == "" {
		path = "."
	}
	abs, err := s.resolvePath(path)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}

	out := make([]types.EntryInfo, 0, len(entries))
	for _, entry := range entries {
		e := types.EntryInfo{
			Name:  entry.Name(),
			Path:  s.workspaceRel(filepath.Join(abs, entry.Name())),
			IsDir: entry.IsDir(),
		}
		if info, err := entry.Info(); err == nil {
			if !entry.IsDir() {
				e.Size = info.Size()
			}
			e.Modified = info.ModTime().UTC().Format(modTimeLayout)
		}
		out = append(out, e)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) uploadFile(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "multipart field 'file' is required: " + err.Error(),
		})
	}

	destDir := c.FormValue("path")
	if destDir == "" {
		destDir = "."
	}
	absDir, err := s.resolvePath(destDir)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	// Uploaded filenames are client-controlled; keep only the base name.
	abs := filepath.Join(absDir, filepath.Base(file.Filename))

	src, err := file.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	defer src.Close()

	if err := os.MkdirAll(absDir, 0755); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	dst, err := os.Create(abs)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	defer dst.Close()

	n, err := io.Copy(dst, src)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, types.FileOpResponse{
		Success: true,
		Path:    s.workspaceRel(abs),
		Size:    n,
	})
}

func (s *Server) downloadFile(c echo.Context) error {
	abs, err := s.resolvePath(c.QueryParam("path"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	info, err := os.Stat(abs)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "file not found: " + c.QueryParam("path")})
	}
	if info.IsDir() {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "path is a directory; use /api/files/archive",
		})
	}
	return c.Attachment(abs, filepath.Base(abs))
}

func (s *Server) archiveWorkspace(c echo.Context) error {
	path := c.QueryParam("path")
	if path == "" {
		path = "."
	}
	abs, err := s.resolvePath(path)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	info, err := os.Stat(abs)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "directory not found: " + path})
	}
	if !info.IsDir() {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "path is not a directory"})
	}

	name := filepath.Base(abs) + ".tar.zst"
	c.Response().Header().Set(echo.HeaderContentType, "application/zstd")
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	c.Response().WriteHeader(http.StatusOK)

	// Headers are out; a mid-stream failure can only be logged.
	if err := archive.WriteTarZst(c.Response(), abs); err != nil {
		log.Printf("api: archive stream for %s failed: %v", abs, err)
	}
	return nil
}
