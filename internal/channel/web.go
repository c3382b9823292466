package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"aidoctor/internal/agent"
	"aidoctor/internal/domain"
	"aidoctor/internal/language"
	"aidoctor/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const (
	defaultMaxUploadMB = 20
	defaultWebTimeout  = 120 * time.Second
	audioRoute         = "/api/audio/"
)

// Web serves the consultation HTTP API.
type Web struct {
	host            string
	port            int
	doctor          Consulter
	sessions        *agent.SessionManager
	outputDir       string
	maxUpload       int64
	timeout         time.Duration
	metricsEndpoint string
	logger          *slog.Logger
	server          *http.Server
	router          chi.Router
}

type WebConfig struct {
	Host      string
	Port      int
	Doctor    Consulter
	Sessions  *agent.SessionManager
	OutputDir string // generated audio is served from here
	// MaxUploadMB bounds the whole multipart body.
	MaxUploadMB     int
	RequestTimeout  time.Duration
	MetricsEndpoint string // empty disables /metrics
	Logger          *slog.Logger
}

// consultResponse is the JSON body of POST /api/consult.
type consultResponse struct {
	SessionID     string `json:"session_id"`
	Input         string `json:"input"`
	Response      string `json:"response"`
	AudioURL      string `json:"audio_url,omitempty"`
	Emotion       string `json:"emotion,omitempty"`
	ImageAnalysis string `json:"image_analysis,omitempty"`
	Language      string `json:"language,omitempty"`
}

func NewWeb(cfg WebConfig) *Web {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = defaultMaxUploadMB
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultWebTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sessions == nil {
		cfg.Sessions = agent.NewSessionManager(agent.SessionManagerConfig{Logger: cfg.Logger})
	}
	w := &Web{
		host:            cfg.Host,
		port:            cfg.Port,
		doctor:          cfg.Doctor,
		sessions:        cfg.Sessions,
		outputDir:       cfg.OutputDir,
		maxUpload:       int64(cfg.MaxUploadMB) << 20,
		timeout:         cfg.RequestTimeout,
		metricsEndpoint: cfg.MetricsEndpoint,
		logger:          cfg.Logger,
	}
	w.router = w.routes()
	return w
}

func (w *Web) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(w.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", w.handleHealth)
	if w.metricsEndpoint != "" {
		r.Get(w.metricsEndpoint, metrics.Collector.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/consult", w.handleConsult)
		r.Get("/audio/{name}", w.handleAudio)
		r.Get("/sessions/{id}", w.handleGetSession)
		r.Delete("/sessions/{id}", w.handleDeleteSession)
	})
	return r
}

// Handler exposes the router, mainly for tests.
func (w *Web) Handler() http.Handler { return w.router }

func (w *Web) Addr() string {
	return net.JoinHostPort(w.host, strconv.Itoa(w.port))
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (w *Web) Start(ctx context.Context) error {
	w.server = &http.Server{
		Addr:              w.Addr(),
		Handler:           w.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	w.logger.Info("http api started", "addr", "http://"+w.Addr())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.server.Shutdown(shutdownCtx); err != nil {
			w.logger.Warn("http api shutdown", "err", err)
		}
	}()

	if err := w.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (w *Web) Stop() error {
	if w.server != nil {
		return w.server.Close()
	}
	return nil
}

// requestLogger logs through slog instead of chi's default stdlib logger.
func (w *Web) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(rw, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		w.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (w *Web) handleHealth(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": w.sessions.Len(),
		"uptime":   metrics.Collector.Uptime().Round(time.Second).String(),
	})
}

func (w *Web) handleConsult(rw http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(rw, r.Body, w.maxUpload)
	if err := r.ParseMultipartForm(w.maxUpload); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(rw, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(rw, http.StatusBadRequest, "invalid form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	tmpDir, err := os.MkdirTemp("", "aidoctor-upload-")
	if err != nil {
		w.logger.Error("cannot create upload dir", "err", err)
		writeError(rw, http.StatusInternalServerError, "cannot store upload")
		return
	}
	defer os.RemoveAll(tmpDir)

	audioPath, err := saveUpload(r, "audio", tmpDir)
	if err != nil {
		writeError(rw, http.StatusBadRequest, err.Error())
		return
	}
	imagePath, err := saveUpload(r, "image", tmpDir)
	if err != nil {
		writeError(rw, http.StatusBadRequest, err.Error())
		return
	}

	sessionID := strings.TrimSpace(r.FormValue("session_id"))
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	req := domain.Request{
		AudioPath: audioPath,
		ImagePath: imagePath,
		Text:      r.FormValue("text"),
		Language:  r.FormValue("language"),
	}
	if req.Empty() {
		writeJSON(rw, http.StatusBadRequest, consultResponse{
			SessionID: sessionID,
			Input:     domain.MsgNoInput,
			Response:  domain.MsgNoDoctorResponse,
		})
		return
	}
	if req.Language != "" {
		if _, ok := language.Parse(req.Language); !ok {
			writeError(rw, http.StatusBadRequest, fmt.Sprintf("unknown language %q", req.Language))
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), w.timeout)
	defer cancel()

	resp := w.doctor.Consult(ctx, w.sessions.GetOrCreate(sessionID), req)

	out := consultResponse{
		SessionID:     sessionID,
		Input:         resp.Input,
		Response:      resp.Reply,
		Emotion:       resp.Emotion,
		ImageAnalysis: resp.ImageAnalysis,
		Language:      resp.Language,
	}
	if resp.AudioPath != "" {
		out.AudioURL = audioRoute + filepath.Base(resp.AudioPath)
	}
	writeJSON(rw, http.StatusOK, out)
}

// saveUpload copies the named multipart file into dir and returns its
// path, or "" when the field is absent.
func saveUpload(r *http.Request, field, dir string) (string, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("invalid %s upload: %w", field, err)
	}
	defer file.Close()

	path := filepath.Join(dir, field+uploadExt(header))
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("cannot store %s upload: %w", field, err)
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		return "", fmt.Errorf("cannot store %s upload: %w", field, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("cannot store %s upload: %w", field, err)
	}
	return path, nil
}

// uploadExt keeps the client's file extension so downstream services can
// infer the format. Anything odd is dropped.
func uploadExt(h *multipart.FileHeader) string {
	ext := strings.ToLower(filepath.Ext(h.Filename))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ""
		}
	}
	return ext
}

func (w *Web) handleAudio(rw http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if w.outputDir == "" || name != filepath.Base(filepath.Clean("/"+name)) || !strings.HasSuffix(name, ".mp3") {
		http.NotFound(rw, r)
		return
	}
	path := filepath.Join(w.outputDir, name)
	if _, err := os.Stat(path); err != nil {
		http.NotFound(rw, r)
		return
	}
	rw.Header().Set("Content-Type", "audio/mpeg")
	http.ServeFile(rw, r, path)
}

func (w *Web) handleGetSession(rw http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	mem, ok := w.sessions.Get(id)
	if !ok {
		writeError(rw, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{
		"session_id": id,
		"turns":      mem.Turns(),
	})
}

func (w *Web) handleDeleteSession(rw http.ResponseWriter, r *http.Request) {
	if !w.sessions.Clear(chi.URLParam(r, "id")) {
		writeError(rw, http.StatusNotFound, "session not found")
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, msg string) {
	writeJSON(rw, status, map[string]string{"error": msg})
}
