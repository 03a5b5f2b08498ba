package handler

import (
	"errors"
	"game-devserver/internal/logger"
	"game-devserver/internal/metrics"
	"game-devserver/internal/models"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const indexPage = "index.html"

// DefaultMIMETypes overrides the platform guess for script and tile-map assets
var DefaultMIMETypes = map[string]string{
	".js":   "application/javascript",
	".json": "application/json",
	".tmj":  "application/json",
}

// MergeMIMETypes layers extra overrides on top of DefaultMIMETypes.
// Extensions may be given with or without the leading dot.
func MergeMIMETypes(extra map[string]string) map[string]string {
	merged := make(map[string]string, len(DefaultMIMETypes)+len(extra))
	for ext, ct := range DefaultMIMETypes {
		merged[ext] = ct
	}
	for ext, ct := range extra {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		merged[strings.ToLower(ext)] = ct
	}
	return merged
}

// Recorder receives one record per finished request
type Recorder interface {
	Record(rec *models.AccessRecord)
}

// Options configures a StaticHandler. Zero values disable the optional parts.
type Options struct {
	Decorate  HeaderDecorator
	MIMETypes map[string]string
	Metrics   *metrics.Metrics
	Recorder  Recorder
	Logger    logrus.FieldLogger
}

// StaticHandler serves files beneath a root directory
type StaticHandler struct {
	dir       http.Dir
	files     http.Handler
	router    *mux.Router
	decorate  HeaderDecorator
	mimeTypes map[string]string
	metrics   *metrics.Metrics
	recorder  Recorder
	log       logrus.FieldLogger
}

// New creates a handler serving root. Lookups cannot escape root.
func New(root string, opts Options) *StaticHandler {
	mimeTypes := make(map[string]string, len(opts.MIMETypes))
	for ext, ct := range opts.MIMETypes {
		mimeTypes[strings.ToLower(ext)] = ct
	}

	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	dir := http.Dir(root)
	h := &StaticHandler{
		dir:       dir,
		files:     http.FileServer(dir),
		decorate:  opts.Decorate,
		mimeTypes: mimeTypes,
		metrics:   opts.Metrics,
		recorder:  opts.Recorder,
		log:       log,
	}

	r := mux.NewRouter()
	r.Methods(http.MethodOptions).HandlerFunc(h.Preflight)
	r.Methods(http.MethodGet, http.MethodHead).HandlerFunc(h.ServeFile)
	r.MethodNotAllowedHandler = http.HandlerFunc(h.MethodNotAllowed)
	h.router = r

	return h
}

// ServeHTTP dispatches the request and accounts for the response
func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rw := newResponseWriter(w, h.decorate)

	h.router.ServeHTTP(rw, r)
	rw.finish()

	elapsed := time.Since(start)

	if h.metrics != nil {
		h.metrics.ObserveResponse(r.Method, rw.status, rw.bytes)
	}

	h.log.WithFields(logrus.Fields{
		"method":   r.Method,
		"path":     r.URL.Path,
		"status":   rw.status,
		"bytes":    rw.bytes,
		"duration": elapsed,
	}).Info("request")

	if h.recorder != nil {
		h.recorder.Record(&models.AccessRecord{
			Method:     r.Method,
			Path:       r.URL.Path,
			Status:     rw.status,
			Bytes:      rw.bytes,
			Duration:   elapsed,
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.UserAgent(),
			CreatedAt:  start,
		})
	}
}

// ServeFile handles GET and HEAD
func (h *StaticHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	// http.FileServer keeps a Content-Type that is already set; its error
	// responses replace it with text/plain.
	if ct, ok := h.mimeTypes[strings.ToLower(path.Ext(r.URL.Path))]; ok {
		w.Header().Set("Content-Type", ct)
	}

	// http.FileServer redirects explicit index.html requests to the directory.
	if strings.HasSuffix(r.URL.Path, "/"+indexPage) {
		h.serveIndex(w, r)
		return
	}

	h.files.ServeHTTP(w, r)
}

func (h *StaticHandler) serveIndex(w http.ResponseWriter, r *http.Request) {
	f, err := h.dir.Open(r.URL.Path)
	if err != nil {
		msg, code := toHTTPError(err)
		http.Error(w, msg, code)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		msg, code := toHTTPError(err)
		http.Error(w, msg, code)
		return
	}
	if info.IsDir() {
		http.NotFound(w, r)
		return
	}

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func toHTTPError(err error) (string, int) {
	if errors.Is(err, fs.ErrNotExist) {
		return "404 page not found", http.StatusNotFound
	}
	if errors.Is(err, fs.ErrPermission) {
		return "403 Forbidden", http.StatusForbidden
	}
	return "500 Internal Server Error", http.StatusInternalServerError
}

// Preflight handles OPTIONS for any path
func (h *StaticHandler) Preflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// MethodNotAllowed handles everything that is not GET, HEAD or OPTIONS
func (h *StaticHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "GET, HEAD, OPTIONS")
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}
