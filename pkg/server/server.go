package server

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/feedscan/pkg/config"
	"github.com/yurifrl/feedscan/pkg/models"
	"github.com/yurifrl/feedscan/pkg/ocr"
	"github.com/yurifrl/feedscan/pkg/reconcile"
	"github.com/yurifrl/feedscan/pkg/service"
	"github.com/yurifrl/feedscan/pkg/spreadsheet"
	"github.com/yurifrl/feedscan/pkg/ynab"
)

//go:embed templates/*.html
var templates embed.FS

// Pusher is the budget API used by /api/push.
type Pusher interface {
	Transactions(budgetID, accountID string) ([]reconcile.Remote, error)
	Push(budgetID, accountID string, report *reconcile.Report) (int, error)
}

// cachedBatch is a batch plus the time it was last stored.
type cachedBatch struct {
	batch  *service.Batch
	stored time.Time
}

// Server handles uploads of feed screenshots and serves the parsed tables
type Server struct {
	config    *config.Config
	logger    *log.Logger
	mux       *http.ServeMux
	template  *template.Template
	processor *service.Processor
	batches   sync.Map
	now       func() time.Time
	newPusher func(token string) Pusher
}

// New creates a new HTTP server
func New(cfg *config.Config, logger *log.Logger, engine ocr.Engine) *Server {
	tmpl := template.Must(template.ParseFS(templates, "templates/*.html"))
	s := &Server{
		config:    cfg,
		logger:    logger,
		mux:       http.NewServeMux(),
		template:  tmpl,
		processor: service.NewProcessor(engine, logger),
		now:       time.Now,
		newPusher: func(token string) Pusher { return ynab.New(token) },
	}
	s.setupRoutes()
	return s
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/", s.withLogging(s.handleHome))

	s.mux.HandleFunc("/api/process", s.withLogging(s.handleProcess))
	s.mux.HandleFunc("/api/update", s.withLogging(s.handleUpdate))
	s.mux.HandleFunc("/api/import", s.withLogging(s.handleImport))
	s.mux.HandleFunc("/api/push", s.withLogging(s.handlePush))
	s.mux.HandleFunc("/api/files/", s.withLogging(s.handleFiles))
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.respondError(w, r, http.StatusNotFound, "not found", nil)
		return
	}
	data := map[string]string{"Header": strings.Join(models.Header, ",")}
	if err := s.template.ExecuteTemplate(w, "index.html", data); err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "failed to render page", err)
		return
	}
}

// ---------------- process handler ----------------

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}
	if err := s.parseUpload(w, r); err != nil {
		s.respondUploadError(w, r, err)
		return
	}
	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		s.respondError(w, r, http.StatusBadRequest, "no files uploaded", nil)
		return
	}

	var ref time.Time
	if v := r.FormValue("reference"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.respondError(w, r, http.StatusBadRequest, "invalid reference time", err)
			return
		}
		ref = parsed
	}

	if err := os.MkdirAll(s.config.Server.UploadDir, 0o755); err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "failed to prepare upload dir", err)
		return
	}
	dir, err := os.MkdirTemp(s.config.Server.UploadDir, "batch-")
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "failed to prepare upload dir", err)
		return
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("failed to clean upload dir", "dir", dir, "err", err)
		}
	}()

	paths := make([]string, 0, len(files))
	names := make(map[string]string, len(files))
	for i, fh := range files {
		path := filepath.Join(dir, fmt.Sprintf("%03d-%s", i, safeName(fh.Filename)))
		if err := saveUpload(fh, path); err != nil {
			s.respondError(w, r, http.StatusInternalServerError, "failed to save upload", err)
			return
		}
		paths = append(paths, path)
		names[path] = fh.Filename
	}

	batch, err := s.processor.Process(r.Context(), paths, ref)
	if err != nil {
		s.respondError(w, r, http.StatusUnprocessableEntity, "no usable lines produced for the uploaded images", err)
		return
	}
	for i, f := range batch.Failures {
		batch.Failures[i].Path = names[f.Path]
	}

	s.storeBatch(batch)
	s.respondBatch(w, batch)
}

// ---------------- update (edit table) handler ----------------

type updateRequest struct {
	ID   string     `json:"id"`
	Data [][]string `json:"data"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid json", err)
		return
	}
	if len(req.Data) == 0 {
		s.respondError(w, r, http.StatusBadRequest, "No data received", nil)
		return
	}

	batch, ok := s.batch(req.ID)
	if !ok {
		s.respondError(w, r, http.StatusNotFound, "batch not found", nil)
		return
	}

	records := make([]models.Record, 0, len(req.Data))
	for i, row := range req.Data {
		rec, err := models.FromRow(row)
		if err != nil {
			s.respondError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid row %d", i+1), err)
			return
		}
		records = append(records, rec)
	}

	s.storeBatch(batch.WithRecords(records))
	s.logger.Info("table updated", "id", batch.ID, "records", len(records))

	if err := s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Table updated successfully!",
	}); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

// ---------------- import handler ----------------

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	if err := s.parseUpload(w, r); err != nil {
		s.respondUploadError(w, r, err)
		return
	}
	file, header, err := r.FormFile("table")
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "failed to read file", err)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "failed to read file", err)
		return
	}

	records, err := spreadsheet.Load(data, header.Filename)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "failed to import table", err)
		return
	}

	batch := service.NewBatch(records)
	s.storeBatch(batch)
	s.logger.Info("table imported", "id", batch.ID, "file", header.Filename, "records", len(records))
	s.respondBatch(w, batch)
}

// ---------------- push handler ----------------

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	batch, ok := s.batch(r.FormValue("id"))
	if !ok {
		s.respondError(w, r, http.StatusNotFound, "batch not found", nil)
		return
	}

	token := formOr(r, "token", s.config.YNAB.Token)
	budgetID := formOr(r, "budget_id", s.config.YNAB.BudgetID)
	accountID := formOr(r, "account_id", s.config.YNAB.AccountID)
	if token == "" {
		s.respondError(w, r, http.StatusBadRequest, "token required", nil)
		return
	}
	if budgetID == "" {
		s.respondError(w, r, http.StatusBadRequest, "budget_id required", nil)
		return
	}
	if accountID == "" {
		s.respondError(w, r, http.StatusBadRequest, "account_id required", nil)
		return
	}

	pusher := s.newPusher(token)
	remote, err := pusher.Transactions(budgetID, accountID)
	if err != nil {
		s.respondError(w, r, http.StatusBadGateway, "failed to fetch remote transactions", err)
		return
	}
	report := reconcile.Build(batch.Records, remote, s.config.YNAB.Inflow)

	created := 0
	if r.FormValue("dry_run") != "true" {
		created, err = pusher.Push(budgetID, accountID, report)
		if err != nil {
			s.respondError(w, r, http.StatusBadGateway, "push failed", err)
			return
		}
	}

	lines := make([]string, 0, len(report.Items))
	for _, e := range report.Items {
		prefix := "="
		switch e.Status {
		case reconcile.ToAdd:
			prefix = "+"
		case reconcile.Invalid:
			prefix = "!"
		}
		lines = append(lines, fmt.Sprintf("%s %s | %-30s | $ %s", prefix, e.Local.Date, e.Local.Note, e.Local.Amount))
	}
	s.logger.Info("push complete", "id", batch.ID, "to_add", report.MissingCount(), "in_sync", report.InSyncCount(), "created", created)

	if err := s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"lines":   lines,
		"to_add":  report.MissingCount(),
		"in_sync": report.InSyncCount(),
		"skipped": report.InvalidCount(),
		"created": created,
	}); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

// ---------------- file download handler ----------------

var contentTypes = map[string]string{
	"csv":  "text/csv",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// handleFiles serves a processed batch as <id>.csv or <id>.xlsx.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/files/")
	if name == "" {
		s.respondError(w, r, http.StatusBadRequest, "filename required", nil)
		return
	}
	ext := filepath.Ext(name)
	format := strings.TrimPrefix(strings.ToLower(ext), ".")
	contentType, ok := contentTypes[format]
	if !ok {
		s.respondError(w, r, http.StatusBadRequest, "unsupported format", nil)
		return
	}

	batch, ok := s.batch(strings.TrimSuffix(name, ext))
	if !ok {
		s.respondError(w, r, http.StatusNotFound, "file not found", nil)
		return
	}

	var buf bytes.Buffer
	if err := service.Encode(&buf, batch.Records, format); err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "failed to encode file", err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"output_transactions.%s\"", format))
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Warn("failed to write file response", "err", err)
	}
}

// --- helpers ---

// parseUpload caps the request body at server.max_upload_mb and parses the
// multipart form.
func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) error {
	limit := s.config.Server.MaxUploadMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	return r.ParseMultipartForm(limit)
}

func (s *Server) respondUploadError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		s.respondError(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload larger than %d MB", s.config.Server.MaxUploadMB), err)
		return
	}
	s.respondError(w, r, http.StatusBadRequest, "failed to read upload", err)
}

// storeBatch caches batch and evicts batches untouched for longer than
// server.batch_ttl.
func (s *Server) storeBatch(batch *service.Batch) {
	now := s.now()
	s.batches.Store(batch.ID, cachedBatch{batch: batch, stored: now})
	s.batches.Range(func(key, value interface{}) bool {
		if entry, ok := value.(cachedBatch); ok && s.expired(entry, now) {
			s.batches.Delete(key)
			s.logger.Debug("evicted batch", "id", key)
		}
		return true
	})
}

func (s *Server) expired(entry cachedBatch, now time.Time) bool {
	return now.Sub(entry.stored) > s.config.Server.BatchTTL
}

func (s *Server) batch(id string) (*service.Batch, bool) {
	if id == "" {
		return nil, false
	}
	value, ok := s.batches.Load(id)
	if !ok {
		return nil, false
	}
	entry, ok := value.(cachedBatch)
	if !ok || s.expired(entry, s.now()) {
		return nil, false
	}
	return entry.batch, true
}

func (s *Server) respondBatch(w http.ResponseWriter, batch *service.Batch) {
	if err := s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "success",
		"id":          batch.ID,
		"file":        batch.ID + ".csv",
		"data":        batch.Records,
		"diagnostics": batch.Diagnostics,
		"failures":    batch.Failures,
		"dropped":     batch.Dropped,
	}); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

func saveUpload(fh *multipart.FileHeader, path string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// safeName strips directories and anything outside a conservative charset.
func safeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return "upload"
	}
	return name
}

func formOr(r *http.Request, key, fallback string) string {
	if v := r.FormValue(key); v != "" {
		return v
	}
	return fallback
}

// writeJSON encodes v as JSON with the given status and writes headers.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// respondError logs the error and returns a minimal JSON error body.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	if err != nil {
		s.logger.Warn("request error", "status", status, "msg", message, "err", err, "method", r.Method, "path", r.URL.Path)
	} else {
		s.logger.Warn("request error", "status", status, "msg", message, "method", r.Method, "path", r.URL.Path)
	}
	_ = s.writeJSON(w, status, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// withLogging wraps a handler to log request start/end and recover panics.
func (s *Server) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "panic", rec, "method", r.Method, "path", r.URL.Path)
				s.respondError(w, r, http.StatusInternalServerError, "internal server error", fmt.Errorf("panic: %v", rec))
			}
		}()
		next(w, r)
	}
}
