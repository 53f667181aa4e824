package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	store       Store
	queue       *jobQueue
	generate    generateFunc
	exporter    *Exporter
	cache       ExportCache
	images      *imageResolver
	provider    Provider
	fontPath    string
	syncTimeout time.Duration
	log         *Logger
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type SubmitResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Status  string `json:"status"`
}

type ListResponse struct {
	Success     bool     `json:"success"`
	Whitepapers []Record `json:"whitepapers"`
	Total       int      `json:"total"`
}

// WhitepaperView is a record as the API shows it. Content fields are set
// once generation has completed.
type WhitepaperView struct {
	ID        string            `json:"id"`
	Status    string            `json:"status"`
	Error     string            `json:"error,omitempty"`
	Topic     string            `json:"topic"`
	Title     string            `json:"title,omitempty"`
	Subtitle  string            `json:"subtitle,omitempty"`
	Author    string            `json:"author,omitempty"`
	Outline   []OutlineEntry    `json:"outline,omitempty"`
	Sources   []Source          `json:"sources,omitempty"`
	Images    []ImageAsset      `json:"images,omitempty"`
	Body      string            `json:"body,omitempty"`
	Exports   map[string]string `json:"exports,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type WhitepaperResponse struct {
	Success    bool           `json:"success"`
	Whitepaper WhitepaperView `json:"whitepaper"`
}

type PagesResponse struct {
	Success  bool     `json:"success"`
	ID       string   `json:"id"`
	NumPages int      `json:"num_pages"`
	Pages    []string `json:"pages"`
}

func (s *Server) routes(app *fiber.App) {
	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Post("/whitepapers", s.handleSubmit)
	api.Post("/whitepapers/sync", s.handleGenerateSync)
	api.Get("/whitepapers", s.handleList)
	api.Get("/whitepapers/:id", s.handleGet)
	api.Get("/whitepapers/:id/export/:format", s.handleExport)
	api.Get("/whitepapers/:id/preview/:page", s.handlePreview)
	api.Get("/whitepapers/:id/pages", s.handlePages)

	// Render client markup or an uploaded document, no LLM involved.
	api.Post("/render/:format", s.handleRender)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	resp := fiber.Map{"status": "ok", "service": "whitepaper-studio"}
	if s.provider != nil {
		resp["llm_provider"] = s.provider.Name()
	}
	if b, ok := s.provider.(*breakerProvider); ok {
		resp["llm_circuit"] = b.State().String()
	}
	return c.JSON(resp)
}

func (s *Server) handleSubmit(c *fiber.Ctx) error {
	var req Request
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, fmt.Errorf("%w: invalid request format: %v", ErrInvalidRequest, err))
	}
	id, err := s.queue.Submit(c.UserContext(), req)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(SubmitResponse{Success: true, ID: id, Status: StatusPending})
}

// handleGenerateSync generates inside the request. The record is still
// stored so exports and previews work the same way as for queued jobs.
func (s *Server) handleGenerateSync(c *fiber.Ctx) error {
	var req Request
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, fmt.Errorf("%w: invalid request format: %v", ErrInvalidRequest, err))
	}
	if err := req.normalize(); err != nil {
		return s.fail(c, err)
	}

	timeout := s.syncTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
	defer cancel()

	id := uuid.New().String()
	if err := s.store.Create(ctx, id, req); err != nil {
		return s.fail(c, err)
	}
	paper, err := s.generate(ctx, req)
	if err == nil {
		paper.ID = id
		err = s.store.SaveResult(ctx, paper)
	}
	if err != nil {
		markCtx, markCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer markCancel()
		if uerr := s.store.UpdateStatus(markCtx, id, StatusFailed, err.Error()); uerr != nil {
			s.log.Error("could not mark whitepaper failed", "id", id, "error", uerr)
		}
		return s.fail(c, err)
	}

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(WhitepaperResponse{Success: true, Whitepaper: s.view(rec)})
}

func (s *Server) handleList(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 100
	}
	recs, err := s.store.List(c.UserContext(), limit)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(ListResponse{Success: true, Whitepapers: recs, Total: len(recs)})
}

func (s *Server) handleGet(c *fiber.Ctx) error {
	rec, err := s.store.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(WhitepaperResponse{Success: true, Whitepaper: s.view(rec)})
}

func (s *Server) view(rec *Record) WhitepaperView {
	v := WhitepaperView{
		ID:        rec.ID,
		Status:    rec.Status,
		Error:     rec.Error,
		Topic:     rec.Topic,
		Title:     rec.Title,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if rec.Paper == nil {
		return v
	}
	p := rec.Paper
	v.Subtitle = p.Subtitle
	v.Author = p.Author
	v.Outline = s.exporter.Outline(p)
	v.Sources = p.Sources
	v.Images = p.Images
	v.Body = p.Body
	v.Exports = make(map[string]string, len(exportMIME))
	for format := range exportMIME {
		v.Exports[format] = fmt.Sprintf("/api/whitepapers/%s/export/%s", rec.ID, format)
	}
	return v
}

func (s *Server) handleExport(c *fiber.Ctx) error {
	format := strings.ToLower(c.Params("format"))
	if _, ok := exportMIME[format]; !ok {
		return s.fail(c, fmt.Errorf("%q: %w", format, ErrUnsupportedFormat))
	}
	rec, err := s.completed(c)
	if err != nil {
		return s.fail(c, err)
	}
	data, err := s.exportBytes(c.UserContext(), rec.Paper, format)
	if err != nil {
		return s.fail(c, err)
	}
	c.Attachment(exportFileName(rec.Paper.Title, format))
	c.Set(fiber.HeaderContentType, exportMIME[format])
	return c.Send(data)
}

func (s *Server) handlePreview(c *fiber.Ctx) error {
	page, err := c.ParamsInt("page")
	if err != nil || page < 1 {
		return s.fail(c, fmt.Errorf("%w: page must be a positive number", ErrInvalidRequest))
	}
	dpi := c.QueryFloat("dpi", defaultPreviewDPI)

	rec, err := s.completed(c)
	if err != nil {
		return s.fail(c, err)
	}
	pdf, err := s.exportBytes(c.UserContext(), rec.Paper, FormatPDF)
	if err != nil {
		return s.fail(c, err)
	}
	png, err := renderPreviewPNG(pdf, page, dpi)
	if err != nil {
		return s.fail(c, err)
	}
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, "private, max-age=300")
	return c.Send(png)
}

func (s *Server) handlePages(c *fiber.Ctx) error {
	rec, err := s.completed(c)
	if err != nil {
		return s.fail(c, err)
	}
	pdf, err := s.exportBytes(c.UserContext(), rec.Paper, FormatPDF)
	if err != nil {
		return s.fail(c, err)
	}
	pages, err := pdfPageTexts(pdf)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(PagesResponse{Success: true, ID: rec.ID, NumPages: len(pages), Pages: pages})
}

func (s *Server) handleRender(c *fiber.Ctx) error {
	format := strings.ToLower(c.Params("format"))
	if _, ok := exportMIME[format]; !ok {
		return s.fail(c, fmt.Errorf("%q: %w", format, ErrUnsupportedFormat))
	}

	var req RenderRequest
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		data, fileType, filename, err := getFileFromRequest(c)
		if err != nil {
			return s.fail(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		}
		text, err := extractMarkup(data, fileType)
		if err != nil {
			return s.fail(c, err)
		}
		s.log.Info("converted upload", "filename", filename, "file_type", fileType, "chars", len(text))
		req = RenderRequest{
			Title:        c.FormValue("title"),
			Subtitle:     c.FormValue("subtitle"),
			Author:       c.FormValue("author"),
			Text:         text,
			IncludeCover: formBool(c.FormValue("include_cover")),
			IncludeTOC:   formBool(c.FormValue("include_toc")),
		}
	} else if err := c.BodyParser(&req); err != nil {
		return s.fail(c, fmt.Errorf("%w: invalid request format: %v", ErrInvalidRequest, err))
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Minute)
	defer cancel()

	paper, err := paperFromMarkup(ctx, s.images, req, s.fontPath)
	if err != nil {
		return s.fail(c, err)
	}
	data, mime, err := s.exporter.Render(ctx, paper, format)
	if err != nil {
		return s.fail(c, err)
	}
	c.Attachment(exportFileName(paper.Title, format))
	c.Set(fiber.HeaderContentType, mime)
	return c.Send(data)
}

// completed loads the :id record and requires it to be finished.
func (s *Server) completed(c *fiber.Ctx) (*Record, error) {
	rec, err := s.store.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusCompleted || rec.Paper == nil {
		return nil, fmt.Errorf("whitepaper %s is %s: %w", rec.ID, rec.Status, ErrNotReady)
	}
	return rec, nil
}

// exportBytes renders through the cache. Cache failures only cost a render.
func (s *Server) exportBytes(ctx context.Context, paper *Whitepaper, format string) ([]byte, error) {
	key := exportCacheKey(paper.ID, format)
	if s.cache != nil {
		data, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.log.Warn("export cache read failed", "key", key, "error", err)
		}
		if ok {
			return data, nil
		}
	}

	data, _, err := s.exporter.Render(ctx, paper, format)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, data); err != nil {
			s.log.Warn("export cache write failed", "key", key, "error", err)
		}
	}
	return data, nil
}

func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.log.Error("request failed", "method", c.Method(), "path", c.Path(), "status", status, "error", err)
	}
	return c.Status(status).JSON(ErrorResponse{Success: false, Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrNotReady):
		return fiber.StatusConflict
	case errors.Is(err, ErrQueueFull):
		return fiber.StatusTooManyRequests
	case errors.Is(err, ErrCircuitOpen):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrKnowledgeDisabled):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrEmptyDocument):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

func formBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
