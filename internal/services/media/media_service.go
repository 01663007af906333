package media

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/asad/mediabridge/internal/apperr"
	"github.com/asad/mediabridge/internal/core"
	"github.com/asad/mediabridge/internal/httpx"
	"github.com/asad/mediabridge/internal/logging"
	"github.com/asad/mediabridge/internal/metrics"
)

const defaultCacheControl = "public, max-age=31536000"

// hopHeaders are connection-scoped and never copied from the backend.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// MediaService is the media fetch proxy. It lists buckets and streams
// objects from a Backend without buffering them.
type MediaService struct {
	backend Backend
	logger  logging.Logger
}

// NewMediaService creates a media proxy over the given backend.
func NewMediaService(backend Backend, logger logging.Logger) *MediaService {
	return &MediaService{
		backend: backend,
		logger:  logger.With(logging.String("service", "media")),
	}
}

// Name returns the service identifier.
func (s *MediaService) Name() string {
	return "media"
}

// CORS allows read-only cross-origin access and exposes the range headers
// video players need.
func (s *MediaService) CORS() core.CORSPolicy {
	return core.CORSPolicy{
		AllowMethods:  "GET, HEAD, OPTIONS",
		AllowHeaders:  "Content-Type, Range",
		ExposeHeaders: "Content-Length, Content-Range, Accept-Ranges",
		MaxAge:        86400,
	}
}

// RegisterRoutes sets up the proxy routes:
//   - GET /{bucket}[?list][&prefix=P]  - list objects
//   - GET /{bucket}/{path}?list        - list objects of the first segment
//   - GET|HEAD /{bucket}/{path}        - stream an object (Range aware)
func (s *MediaService) RegisterRoutes(router chi.Router) {
	router.Get("/", s.handleIndex)
	router.Get("/{bucket}", s.handleList)
	router.Head("/{bucket}", s.handleList)
	router.Get("/{bucket}/*", s.handleObject)
	router.Head("/{bucket}/*", s.handleObject)
}

func (s *MediaService) handleIndex(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(w, s.logger, apperr.BadRequest("Invalid path. Use: /bucket/file or /bucket?list"))
}

// handleList handles GET and HEAD /{bucket}. The "list" query flag is
// accepted but a bare bucket path lists too.
func (s *MediaService) handleList(w http.ResponseWriter, r *http.Request) {
	bucket, err := pathParam(r, "bucket")
	if err != nil || bucket == "" {
		httpx.WriteError(w, s.logger, apperr.BadRequest("Invalid bucket name"))
		return
	}
	s.list(w, r, bucket)
}

// list writes the bucket listing. HEAD gets an empty 200 without touching
// the backend.
func (s *MediaService) list(w http.ResponseWriter, r *http.Request, bucket string) {
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	prefix := r.URL.Query().Get("prefix")

	files, err := s.backend.List(r.Context(), bucket, prefix)
	if err != nil {
		s.logger.Warn("list failed",
			logging.String("bucket", bucket),
			logging.String("prefix", prefix),
			logging.ErrorField(err),
		)
		httpx.WriteError(w, s.logger, err)
		return
	}

	s.logger.Debug("bucket listed",
		logging.String("bucket", bucket),
		logging.Int("count", len(files)),
	)
	httpx.WriteJSON(w, http.StatusOK, ListResult{
		Bucket:    bucket,
		FileCount: len(files),
		Files:     files,
	})
}

// handleObject handles GET and HEAD /{bucket}/{path}. The backend is always
// asked with GET; HEAD callers get the same status and headers without a body.
func (s *MediaService) handleObject(w http.ResponseWriter, r *http.Request) {
	bucket, err := pathParam(r, "bucket")
	if err != nil {
		httpx.WriteError(w, s.logger, apperr.BadRequest("Invalid bucket name"))
		return
	}
	name, err := pathParam(r, "*")
	if err != nil {
		httpx.WriteError(w, s.logger, apperr.BadRequest("Invalid object path"))
		return
	}
	// The list flag wins over the object path: /media/sub?list lists media.
	if name == "" || r.URL.Query().Has("list") {
		s.list(w, r, bucket)
		return
	}

	ctx := r.Context()
	res, err := s.backend.Fetch(ctx, bucket, name, r.Header.Get("Range"))
	if err != nil {
		if ctx.Err() != nil {
			s.logger.Debug("client went away before backend answered", logging.String("bucket", bucket))
			return
		}
		s.logger.Warn("fetch failed",
			logging.String("bucket", bucket),
			logging.String("object", name),
			logging.ErrorField(err),
		)
		httpx.WriteError(w, s.logger, err)
		return
	}
	defer res.Body.Close()

	h := w.Header()
	copyHeaders(h, res.Header)
	if h.Get("Content-Length") == "" && res.ContentLength >= 0 {
		h.Set("Content-Length", strconv.FormatInt(res.ContentLength, 10))
	}
	httpx.SetCORSHeaders(h, s.CORS())
	if h.Get("Cache-Control") == "" {
		h.Set("Cache-Control", defaultCacheControl)
	}
	w.WriteHeader(res.Status)

	if r.Method == http.MethodHead {
		return
	}

	n, err := io.Copy(w, res.Body)
	metrics.RecordStreamedBytes(bucket, n)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, io.ErrClosedPipe) {
			s.logger.Debug("client disconnected mid-stream",
				logging.String("bucket", bucket),
				logging.String("object", name),
				logging.Int64("bytes", n),
			)
			return
		}
		s.logger.Warn("stream interrupted",
			logging.String("bucket", bucket),
			logging.String("object", name),
			logging.Int64("bytes", n),
			logging.ErrorField(err),
		)
	}
}

// copyHeaders replaces dst's values with src's, skipping hop-by-hop headers.
func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		dst[key] = append([]string(nil), values...)
	}
	for _, key := range hopHeaders {
		dst.Del(key)
	}
}

// pathParam returns a decoded route parameter. chi matches on the raw path
// when the request carries escapes, so the value may still be encoded.
func pathParam(r *http.Request, name string) (string, error) {
	value := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return value, nil
	}
	return url.PathUnescape(value)
}

// Ensure MediaService implements the Service interface.
var _ core.Service = (*MediaService)(nil)
