// Package api serves GGUF inspections over HTTP.
package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/strata/internal/compress"
	"github.com/samcharles93/strata/internal/export"
	"github.com/samcharles93/strata/internal/ggml"
	"github.com/samcharles93/strata/internal/gguf"
	"github.com/samcharles93/strata/internal/logger"
	"github.com/samcharles93/strata/internal/webui"
)

// DefaultMaxUploadBytes caps the container size accepted by POST.
const DefaultMaxUploadBytes int64 = 512 << 20

type Options struct {
	MaxUploadBytes int64
	Logger         logger.Logger
}

type Server struct {
	store *Store
	opts  Options
	log   logger.Logger
	clock func() time.Time
}

func NewServer(store *Store, opts Options) *Server {
	if store == nil {
		store = NewStore()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		store: store,
		opts:  opts,
		log:   log.With("component", "api"),
		clock: time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/", s.handleIndex)
	e.GET("/healthz", s.handleHealth)

	e.POST("/v1/inspections", s.handleCreateInspection)
	e.GET("/v1/inspections", s.handleListInspections)
	e.GET("/v1/inspections/:id", s.handleGetInspection)
	e.DELETE("/v1/inspections/:id", s.handleDeleteInspection)
}

func (s *Server) handleIndex(c *echo.Context) error {
	webui.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":      "ok",
		"inspections": s.store.Len(),
	})
}

func (s *Server) handleCreateInspection(c *echo.Context) error {
	digests := false
	if q := c.QueryParam("digests"); q != "" {
		v, err := strconv.ParseBool(q)
		if err != nil {
			return writeBadRequest(c, "digests must be a boolean")
		}
		digests = v
	}

	body := http.MaxBytesReader(c.Response(), c.Request().Body, s.opts.MaxUploadBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return writeError(c, http.StatusRequestEntityTooLarge, "invalid_request_error",
				"container exceeds "+strconv.FormatInt(s.opts.MaxUploadBytes, 10)+" bytes", "too_large")
		}
		return writeBadRequest(c, err.Error())
	}

	data, codec, err := compress.Inflate(data, s.opts.MaxUploadBytes)
	if err != nil {
		if errors.Is(err, compress.ErrTooLarge) {
			return writeError(c, http.StatusRequestEntityTooLarge, "invalid_request_error",
				"inflated container exceeds "+strconv.FormatInt(s.opts.MaxUploadBytes, 10)+" bytes", "too_large")
		}
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error(), "bad_compression")
	}
	if codec != compress.None {
		s.log.Debug("inflated upload", "codec", string(codec), "bytes", len(data))
	}

	src := gguf.NewStream(data)
	if !ggml.Match(src) {
		return writeError(c, http.StatusUnsupportedMediaType, "invalid_request_error",
			"body is not a GGUF container", "format_mismatch")
	}
	m, err := ggml.Open(src)
	if err != nil {
		s.log.Warn("decode failed", "bytes", len(data), "error", err)
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error(), decodeErrorCode(err))
	}
	doc, err := export.Build(m, export.Options{Digests: digests})
	if err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error(), decodeErrorCode(err))
	}

	insp := s.store.Create(doc, s.clock())
	s.log.Info("inspection created", "id", insp.ID, "format", doc.Format, "tensors", len(doc.Tensors))
	return c.JSON(http.StatusOK, insp)
}

func (s *Server) handleListInspections(c *echo.Context) error {
	return c.JSON(http.StatusOK, InspectionList{
		Object: "list",
		Data:   s.store.List(),
	})
}

func (s *Server) handleGetInspection(c *echo.Context) error {
	insp, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "inspection not found")
	}

	q := c.QueryParam("format")
	if q == "" {
		return c.JSON(http.StatusOK, insp)
	}
	format, err := export.ParseFormat(q)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if format == export.FormatJSON {
		return c.JSON(http.StatusOK, insp)
	}
	b, err := export.Marshal(insp.Document, format)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "")
	}
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, format.ContentType())
	res.WriteHeader(http.StatusOK)
	_, err = res.Write(b)
	return err
}

func (s *Server) handleDeleteInspection(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "inspection not found")
	}
	return c.JSON(http.StatusOK, DeleteInspectionResp{
		ID:      id,
		Object:  inspectionObject,
		Deleted: true,
	})
}

func decodeErrorCode(err error) string {
	switch {
	case errors.Is(err, gguf.ErrUnsupportedQuantization):
		return "unsupported_quantization"
	case errors.Is(err, gguf.ErrUnsupportedValueType):
		return "unsupported_value_type"
	case errors.Is(err, gguf.ErrNestingTooDeep):
		return "nesting_too_deep"
	case errors.Is(err, io.ErrUnexpectedEOF):
		return "truncated"
	default:
		return "decode_error"
	}
}
