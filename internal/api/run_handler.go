package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"gosurv/adapters/excel"
	"gosurv/app"
	"gosurv/domain/core"
	"gosurv/internal"
	"gosurv/internal/config"
	"gosurv/internal/errors"
	"gosurv/internal/report"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// RunHandler handles cross-validation run requests
type RunHandler struct {
	service  *app.CrossValidationService
	pipeline config.PipelineConfig
	data     config.DataConfig
	dataDir  string
	logger   *internal.Logger
}

// CreateRunRequest starts a run on a file below the server's data
// directory. Pipeline holds overrides applied on top of the server defaults.
type CreateRunRequest struct {
	File     string          `json:"file" binding:"required"`
	Sheet    string          `json:"sheet"`
	Pipeline json.RawMessage `json:"pipeline"`
	Persist  bool            `json:"persist"`
}

// NewRunHandler creates a new run handler
func NewRunHandler(service *app.CrossValidationService, pipeline config.PipelineConfig, data config.DataConfig, dataDir string, logger *internal.Logger) *RunHandler {
	return &RunHandler{
		service:  service,
		pipeline: pipeline,
		data:     data,
		dataDir:  dataDir,
		logger:   logger,
	}
}

// CreateRun cross-validates a dataset and returns the completed run
func (h *RunHandler) CreateRun(c *gin.Context) {
	var req CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	path, err := h.resolvePath(req.File)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pipeline := h.pipeline
	if len(req.Pipeline) > 0 {
		if err := json.Unmarshal(req.Pipeline, &pipeline); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid pipeline overrides", "details": err.Error()})
			return
		}
	}

	if req.Persist && !h.service.HasRepository() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Run persistence is not configured"})
		return
	}

	data := h.data
	data.File, data.Sheet = path, req.Sheet
	cv, err := h.service.RunCrossValidation(c.Request.Context(), app.CrossValidationRequest{
		Loader:   excel.NewFileLoaderFromConfig(data, h.logger),
		Pipeline: pipeline,
		Persist:  req.Persist,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cv)
}

// ListRuns returns the most recent stored runs
func (h *RunHandler) ListRuns(c *gin.Context) {
	if !h.service.HasRepository() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Run persistence is not configured"})
		return
	}

	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxListLimit)
	}

	runs, err := h.service.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

// GetRun returns one stored run with its folds
func (h *RunHandler) GetRun(c *gin.Context) {
	if !h.service.HasRepository() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Run persistence is not configured"})
		return
	}
	id, err := core.ParseRunID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cv, err := h.service.GetRun(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cv)
}

// GetRunReport renders a stored run as an HTML page
func (h *RunHandler) GetRunReport(c *gin.Context) {
	if !h.service.HasRepository() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Run persistence is not configured"})
		return
	}
	id, err := core.ParseRunID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cv, err := h.service.GetRun(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", report.HTML(cv))
}

// resolvePath maps a client path onto the data directory and refuses
// anything that escapes it
func (h *RunHandler) resolvePath(file string) (string, error) {
	if filepath.IsAbs(file) {
		return "", fmt.Errorf("file must be relative to the data directory")
	}
	root, err := filepath.Abs(h.dataDir)
	if err != nil {
		return "", err
	}
	path := filepath.Join(root, filepath.Clean(file))
	if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return "", fmt.Errorf("file %q is outside the data directory", file)
	}
	return path, nil
}

func (h *RunHandler) writeError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	body := gin.H{"error": err.Error(), "code": code}
	if se, ok := core.AsStageError(err); ok {
		body["stage"] = se.Stage
		if se.Fold >= 0 {
			body["fold"] = se.Fold + 1
		}
	}

	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	} else {
		h.logger.Warn("request %s %s rejected: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, body)
}

func statusFor(code string) int {
	switch code {
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeConfigInvalid, errors.CodeInvalidInput, errors.CodeIngestionError:
		return http.StatusBadRequest
	case errors.CodeValidationError, errors.CodeModelError:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
