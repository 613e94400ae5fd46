// Package web serves the drag-and-drop page and the JSON API behind it.
package web

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Lllllllleong/mangasensei/internal/intake"
	"github.com/Lllllllleong/mangasensei/internal/models"
	"github.com/Lllllllleong/mangasensei/internal/services"
	"github.com/Lllllllleong/mangasensei/internal/session"
	"github.com/Lllllllleong/mangasensei/internal/telemetry"
)

// SessionCookie names the cookie that carries the session ID.
const SessionCookie = "manga_sensei_session"

// multipartMemory is the part of a multipart body kept in memory; the rest spills to disk.
const multipartMemory = 32 << 20

// multipartOverhead covers boundaries and part headers on top of the file itself.
const multipartOverhead = 64 << 10

const (
	notReadyMessage = "Please select a PDF file"
	busyMessage     = "An upload is already in progress"
)

//go:embed static
var staticFiles embed.FS

// Processor runs the upload/retrieve flow for one accepted file.
type Processor interface {
	Process(ctx context.Context, file *models.SelectedFile) (*services.Result, error)
}

// Options configures a Server.
type Options struct {
	Validator *intake.Validator
	Processor Processor
	Sessions  *session.Manager
	Blobs     *Registry
	Metrics   *telemetry.Metrics
	// Gatherer backs /metrics. Nil uses the default gatherer.
	Gatherer prometheus.Gatherer
}

// Server handles page, API and blob requests.
type Server struct {
	validator *intake.Validator
	processor Processor
	sessions  *session.Manager
	blobs     *Registry
	metrics   *telemetry.Metrics
	gatherer  prometheus.Gatherer
	upgrader  websocket.Upgrader
}

// NewServer fills unset options with defaults.
func NewServer(opts Options) *Server {
	if opts.Validator == nil {
		opts.Validator = intake.NewValidator(intake.Config{})
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewManager(0)
	}
	if opts.Blobs == nil {
		opts.Blobs = NewRegistry(0, opts.Metrics)
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		validator: opts.Validator,
		processor: opts.Processor,
		sessions:  opts.Sessions,
		blobs:     opts.Blobs,
		metrics:   opts.Metrics,
		gatherer:  opts.Gatherer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Router returns the HTTP handler for all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	static, _ := fs.Sub(staticFiles, "static")
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, static, "index.html")
	})
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(static)))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "service": "manga-sensei"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Post("/select", s.handleSelect)
		r.Delete("/select", s.handleClear)
		r.Post("/upload", s.handleUpload)
	})
	r.Get("/ws", s.handleWebSocket)
	r.Get("/blobs/{id}", s.handleBlob)

	return r
}

// RunJanitor expires idle sessions and stale blobs until ctx is done.
func (s *Server) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions := s.sessions.Sweep()
			blobs := s.blobs.Sweep()
			s.metrics.SetActiveSessions(s.sessions.Len())
			if sessions > 0 || blobs > 0 {
				slog.Debug("Expired idle state.", "sessions", sessions, "blobs", blobs)
			}
		}
	}
}

func (s *Server) sessionFor(w http.ResponseWriter, r *http.Request) *session.Session {
	var id string
	if c, err := r.Cookie(SessionCookie); err == nil {
		id = c.Value
	}
	sess, created := s.sessions.Get(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		s.metrics.SetActiveSessions(s.sessions.Len())
	}
	return sess
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(w, r)
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(w, r)
	logCtx := slog.With("sessionId", sess.ID)

	if err := sess.BeginSelect(); err != nil {
		writeError(w, http.StatusConflict, busyMessage)
		return
	}

	file, err := s.readSelection(w, r, logCtx)
	if err != nil {
		msg := services.UserMessage(err)
		var verr *intake.ValidationError
		if errors.As(err, &verr) {
			s.metrics.RecordRejection(verr.Reason())
		}
		logCtx.Info("Selection rejected.", "error", err)
		sess.Reject(msg)
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	if err := sess.Select(file); err != nil {
		writeError(w, http.StatusConflict, busyMessage)
		return
	}
	logCtx.Info("File selected.", "filename", file.Filename, "size", file.Size, "pageCount", file.PageCount)
	writeJSON(w, http.StatusOK, models.SelectResponse{
		Filename:  file.Filename,
		Size:      file.Size,
		PageCount: file.PageCount,
		CanUpload: true,
	})
}

// readSelection parses the multipart body without reading past the intake
// size limit and validates the "file" field.
func (s *Server) readSelection(w http.ResponseWriter, r *http.Request, logCtx *slog.Logger) (*models.SelectedFile, error) {
	limit := s.validator.MaxBytes() + multipartOverhead
	if r.ContentLength > limit {
		return nil, &intake.ValidationError{Err: intake.ErrTooLarge}
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &intake.ValidationError{Err: intake.ErrTooLarge}
		}
		logCtx.Warn("Could not read multipart selection.", "error", err)
		return s.validator.Validate(nil)
	}
	defer r.MultipartForm.RemoveAll()
	return s.validator.Validate(intake.FromMultipart(r.MultipartForm.File["file"]))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(w, r)
	if err := sess.Clear(); err != nil {
		writeError(w, http.StatusConflict, busyMessage)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(w, r)
	logCtx := slog.With("sessionId", sess.ID)

	file, err := sess.BeginUpload()
	switch {
	case errors.Is(err, session.ErrBusy):
		writeError(w, http.StatusConflict, busyMessage)
		return
	case err != nil:
		writeError(w, http.StatusConflict, notReadyMessage)
		return
	}

	res, err := s.processor.Process(r.Context(), file)
	if err != nil {
		msg := services.UserMessage(err)
		sess.Fail(msg)
		logCtx.Error("Upload failed.", "filename", file.Filename, "error", err)
		writeError(w, statusFor(err), msg)
		return
	}

	blobURL := "/blobs/" + s.blobs.Put(res.Blob)
	sess.Complete(blobURL)
	logCtx.Info("Upload complete.", "uploadId", res.UploadID, "objectName", res.ObjectName, "blobUrl", blobURL)
	writeJSON(w, http.StatusOK, models.UploadResponse{
		UploadID: res.UploadID,
		BlobURL:  blobURL,
		Reused:   res.Reused,
	})
}

func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	blob, ok := s.blobs.Get(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	// Stored objects are always served as PDF so nothing else renders from this origin.
	w.Header().Set("Content-Type", intake.PDFMimeType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": blob.ObjectName}))
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, blob.ObjectName, time.Time{}, bytes.NewReader(blob.Data))
}

func statusFor(err error) int {
	var terr *services.TransportError
	var derr *services.DownloadError
	switch {
	case errors.As(err, &terr), errors.As(err, &derr):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		// client went away; nobody reads this response
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write JSON response.", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorResponse{Error: msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("HTTP request.",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"requestId", middleware.GetReqID(r.Context()))
	})
}
