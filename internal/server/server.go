// Package server exposes the patch engine over HTTP for `fripack serve`.
package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/fripack/internal/logger"
	"github.com/samcharles93/fripack/internal/prebuilt"
	"github.com/samcharles93/fripack/internal/version"
	"github.com/samcharles93/fripack/pkg/inject"
)

// DefaultMaxBody bounds request bodies.
const DefaultMaxBody = 256 << 20

const (
	HeaderRequestID      = "X-Request-ID"
	HeaderSentinelOffset = "X-Fripack-Sentinel-Offset"
	HeaderPayloadSize    = "X-Fripack-Payload-Size"
	HeaderSectionOffset  = "X-Fripack-Section-Offset"
)

// Config configures a Server.
type Config struct {
	// Cache is reported by GET /v1/cache. Optional.
	Cache   *prebuilt.Cache
	MaxBody int64
	Log     logger.Logger
}

// Server holds the HTTP handlers.
type Server struct {
	cache   *prebuilt.Cache
	maxBody int64
	log     logger.Logger
}

func New(cfg Config) *Server {
	s := &Server{cache: cfg.Cache, maxBody: cfg.MaxBody, log: cfg.Log}
	if s.maxBody <= 0 {
		s.maxBody = DefaultMaxBody
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	return s
}

// Register adds the routes to e.
func (s *Server) Register(e *echo.Echo) {
	limit := s.bodyLimit()
	e.POST("/v1/patch", s.handlePatch, limit)
	e.POST("/v1/inspect", s.handleInspect, limit)
	e.GET("/v1/cache", s.handleCache)
	e.GET("/healthz", s.handleHealth)
}

// RequestID tags every response with an X-Request-ID, reusing the caller's
// value when one is supplied.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			id := c.Request().Header.Get(HeaderRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(HeaderRequestID, id)
			return next(c)
		}
	}
}

func (s *Server) bodyLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			req := c.Request()
			if req.ContentLength > s.maxBody {
				return writeError(c, http.StatusRequestEntityTooLarge, "too_large",
					fmt.Sprintf("request body exceeds %d bytes", s.maxBody), "")
			}
			req.Body = http.MaxBytesReader(c.Response(), req.Body, s.maxBody)
			return next(c)
		}
	}
}

type sentinelView struct {
	Version       int32 `json:"version"`
	PayloadSize   int32 `json:"payload_size"`
	PayloadOffset int32 `json:"payload_offset"`
	Compressed    bool  `json:"compressed"`
}

func viewOf(s inject.Sentinel) sentinelView {
	return sentinelView{
		Version:       s.Version,
		PayloadSize:   s.PayloadSize,
		PayloadOffset: s.PayloadOffset,
		Compressed:    s.Compressed,
	}
}

// InspectResponse is the body of POST /v1/inspect.
type InspectResponse struct {
	SentinelOffset int            `json:"sentinel_offset"`
	Sentinel       sentinelView   `json:"sentinel"`
	Record         *inject.Record `json:"record,omitempty"`
}

func (s *Server) handlePatch(c *echo.Context) error {
	log := s.requestLog(c)

	binary, binaryName, err := readFormFile(c, "binary")
	if err != nil {
		return s.writeReadError(c, err)
	}
	script, scriptName, err := readFormFile(c, "script")
	if err != nil {
		return s.writeReadError(c, err)
	}

	opts := inject.Options{}
	for name, dst := range map[string]*bool{
		"xz":                &opts.Compress,
		"data_only_section": &opts.DataOnlySection,
		"strict_version":    &opts.StrictVersion,
	} {
		if *dst, err = formBool(c, name); err != nil {
			return writeBadRequest(c, err.Error())
		}
	}
	entry := c.FormValue("entry")
	if entry == "" {
		entry = scriptName
	}

	res, err := inject.Patch(binary, inject.NewEmbedJS(entry, strings.ToValidUTF8(string(script), "\uFFFD")), opts)
	if err != nil {
		log.Warn("patch rejected", "binary", binaryName, "err", err)
		return s.writeEngineError(c, err)
	}
	log.Info("patched", "binary", binaryName, "size", len(res.Data), "payload", len(res.Payload), "xz", opts.Compress)

	h := c.Response().Header()
	h.Set(HeaderSentinelOffset, strconv.Itoa(res.SentinelAfter))
	h.Set(HeaderPayloadSize, strconv.Itoa(len(res.Payload)))
	h.Set(HeaderSectionOffset, strconv.FormatInt(res.SectionOffset, 10))
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(binaryName)))
	return c.Blob(http.StatusOK, "application/octet-stream", res.Data)
}

func (s *Server) handleInspect(c *echo.Context) error {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return s.writeReadError(c, err)
	}
	withScript := true
	if v := c.QueryParam("script"); v != "" {
		if withScript, err = strconv.ParseBool(v); err != nil {
			return writeBadRequest(c, "script: "+err.Error())
		}
	}

	emb, err := inject.Extract(data)
	if err != nil {
		return s.writeEngineError(c, err)
	}
	rec, err := emb.Record()
	if err != nil {
		return s.writeEngineError(c, err)
	}
	if !withScript {
		rec.JSContent = nil
	}
	return writeJSON(c, http.StatusOK, InspectResponse{
		SentinelOffset: emb.Offset,
		Sentinel:       viewOf(emb.Sentinel),
		Record:         &rec,
	})
}

func (s *Server) handleCache(c *echo.Context) error {
	if s.cache == nil {
		return writeError(c, http.StatusNotFound, "not_found", "no cache configured", "")
	}
	st, err := s.cache.Stats()
	if err != nil {
		s.requestLog(c).Error("cache stats", "err", err)
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "")
	}
	return writeJSON(c, http.StatusOK, st)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return writeJSON(c, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.String(),
	})
}

func (s *Server) requestLog(c *echo.Context) logger.Logger {
	return s.log.With("request_id", c.Response().Header().Get(HeaderRequestID))
}

func (s *Server) writeEngineError(c *echo.Context, err error) error {
	stage := ""
	var se *inject.StageError
	if errors.As(err, &se) {
		stage = se.Stage.String()
	}
	switch {
	case errors.Is(err, inject.ErrFormat), errors.Is(err, inject.ErrStructure),
		errors.Is(err, inject.ErrRewrite), errors.Is(err, inject.ErrCodec):
		return writeError(c, http.StatusUnprocessableEntity, "invalid_binary", err.Error(), stage)
	default:
		s.requestLog(c).Error("engine failure", "err", err)
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), stage)
	}
}

func (s *Server) writeReadError(c *echo.Context, err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return writeError(c, http.StatusRequestEntityTooLarge, "too_large",
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), "")
	}
	return writeBadRequest(c, err.Error())
}

func readFormFile(c *echo.Context, field string) ([]byte, string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", err
		}
		if errors.Is(err, http.ErrMissingFile) {
			return nil, "", fmt.Errorf("missing multipart file %q", field)
		}
		return nil, "", fmt.Errorf("%s: %w", field, err)
	}
	data, err := readMultipart(fh)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", field, err)
	}
	return data, fh.Filename, nil
}

func readMultipart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

func formBool(c *echo.Context, name string) (bool, error) {
	v := c.FormValue(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %q is not a boolean", name, v)
	}
	return b, nil
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Stage   string `json:"stage,omitempty"`
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "")
}

func writeError(c *echo.Context, status int, errType, msg, stage string) error {
	return writeJSON(c, status, map[string]apiError{
		"error": {Message: msg, Type: errType, Stage: stage},
	})
}

func writeJSON(c *echo.Context, status int, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Blob(status, echo.MIMEApplicationJSON, b)
}
