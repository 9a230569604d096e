package api

import (
	"context"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/palayguard/palayguard-go/internal/datastore"
	"github.com/palayguard/palayguard-go/internal/frame"
)

// Limits for the analyze upload and the detections listing.
const (
	maxUploadBytes   = 16 << 20 // 16 MiB
	defaultListLimit = 25
	maxListLimit     = 500
	analyzeTimeout   = 60 * time.Second
)

type errorResponse struct {
	Error string `json:"error"`
}

type analyzeRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Scanner.Status())
}

func (s *Server) handleScanStart(c echo.Context) error {
	// The session must outlive this request; Stop is the only way to
	// end it.
	if err := s.Scanner.Start(context.Background()); err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, s.Scanner.Status())
}

func (s *Server) handleScanStop(c echo.Context) error {
	s.Scanner.Stop()
	return c.JSON(http.StatusOK, s.Scanner.Status())
}

// handleAnalyze runs the one-shot pipeline over an uploaded image
// (multipart field "image") or a server-local path (JSON body). Stage
// errors surface to the caller, unlike continuous scanning.
func (s *Server) handleAnalyze(c echo.Context) error {
	path, cleanup, err := s.analyzeInput(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(c.Request().Context(), analyzeTimeout)
	defer cancel()

	event, err := s.Scanner.RunOnceFrom(ctx, frame.NewFileSource(path))
	if err != nil {
		logger.Warn("Single-shot analysis failed", "path", path, "error", err)
		return c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	}

	// The frame handle is owned by the finished iteration; the
	// response carries everything else.
	response := *event
	response.Frame = nil
	return c.JSON(http.StatusOK, &response)
}

// analyzeInput resolves the analyze request to a readable file path,
// spooling an uploaded image to a temp file when needed.
func (s *Server) analyzeInput(c echo.Context) (path string, cleanup func(), err error) {
	cleanup = func() {}

	if file, err := c.FormFile("image"); err == nil {
		if file.Size > maxUploadBytes {
			return "", cleanup, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "image too large")
		}
		src, err := file.Open()
		if err != nil {
			return "", cleanup, err
		}
		defer src.Close()

		tmp, err := os.CreateTemp("", "palayguard-analyze-*.img")
		if err != nil {
			return "", cleanup, err
		}
		if _, err := io.Copy(tmp, io.LimitReader(src, maxUploadBytes)); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return "", cleanup, err
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmp.Name())
			return "", cleanup, err
		}
		name := tmp.Name()
		return name, func() { os.Remove(name) }, nil
	}

	var req analyzeRequest
	if err := c.Bind(&req); err != nil || req.Path == "" {
		return "", cleanup, echo.NewHTTPError(http.StatusBadRequest, "provide an image upload or a path")
	}
	if _, err := os.Stat(req.Path); err != nil {
		return "", cleanup, err
	}
	return req.Path, cleanup, nil
}

func (s *Server) handleDetections(c echo.Context) error {
	if s.DS == nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "no persistence backend enabled"})
	}

	limit := defaultListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxListLimit {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be between 1 and 500"})
		}
		limit = parsed
	}

	var (
		detections []datastore.Detection
		err        error
	)
	if pest := c.QueryParam("pest"); pest != "" {
		detections, err = s.DS.SearchDetections(&datastore.SearchFilter{
			PestType:     pest,
			OnlyDetected: true,
			Limit:        limit,
		})
	} else {
		detections, err = s.DS.GetLastDetections(limit)
	}
	if err != nil {
		logger.Error("Detection query failed", "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "detection query failed"})
	}
	return c.JSON(http.StatusOK, detections)
}

func (s *Server) handleSpeciesList(c echo.Context) error {
	if s.Catalog == nil {
		return c.JSON(http.StatusOK, []struct{}{})
	}
	return c.JSON(http.StatusOK, s.Catalog.All())
}

func (s *Server) handleSpeciesGet(c echo.Context) error {
	if s.Catalog == nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "catalog not loaded"})
	}
	species := s.Catalog.Lookup(c.Param("label"))
	if species == nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "unknown species"})
	}
	return c.JSON(http.StatusOK, species)
}
