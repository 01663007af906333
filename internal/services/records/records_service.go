package records

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/asad/mediabridge/internal/apperr"
	"github.com/asad/mediabridge/internal/core"
	"github.com/asad/mediabridge/internal/httpx"
	"github.com/asad/mediabridge/internal/logging"
)

// maxBodySize bounds write bodies; payloads are small JSON documents.
const maxBodySize = 1 << 20

// RecordsService exposes the bridge over HTTP on a single path, selecting
// the operation from the method and query parameters.
type RecordsService struct {
	bridge *Bridge
	logger logging.Logger
}

// NewRecordsService creates the record bridge service.
func NewRecordsService(bridge *Bridge, logger logging.Logger) *RecordsService {
	return &RecordsService{
		bridge: bridge,
		logger: logger.With(logging.String("service", "records")),
	}
}

// Name returns the service identifier.
func (s *RecordsService) Name() string {
	return "records"
}

// CORS opens the bridge to browser clients for reads and writes.
func (s *RecordsService) CORS() core.CORSPolicy {
	return core.CORSPolicy{
		AllowMethods: "GET, POST, PATCH, OPTIONS",
		AllowHeaders: "Content-Type, Authorization",
	}
}

// RegisterRoutes sets up the bridge routes:
//   - GET   /?filter=S        - records with status S
//   - GET   /?json_id=N       - one record joined with its payload
//   - GET   /                 - all records
//   - POST  /                 - create a record
//   - PATCH /?id=H            - update by page handle
//   - PATCH /?formula_id=N    - update by record identifier
func (s *RecordsService) RegisterRoutes(router chi.Router) {
	router.Get("/", s.handleGet)
	router.Post("/", s.handlePost)
	router.Patch("/", s.handlePatch)
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{
			"error": "Method not allowed. Use GET to read, POST to create, or PATCH to update.",
		})
	})
}

func (s *RecordsService) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	switch {
	case query.Get("filter") != "":
		result, err := s.bridge.ListByStatus(ctx, query.Get("filter"))
		if err != nil {
			s.fail(w, "list by status", err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, result)

	case query.Get("json_id") != "":
		result, err := s.bridge.GetFullRecord(ctx, query.Get("json_id"))
		if err != nil {
			s.fail(w, "get full record", err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, result)

	default:
		result, err := s.bridge.ListAll(ctx)
		if err != nil {
			s.fail(w, "list records", err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, result)
	}
}

func (s *RecordsService) handlePost(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeFields(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		httpx.WriteError(w, s.logger, err)
		return
	}

	result, err := s.bridge.CreateRecord(r.Context(), fields)
	if err != nil {
		s.fail(w, "create record", err)
		return
	}
	s.logger.Info("record created",
		logging.String("page_id", result.ID),
		logging.String("payload_store", result.PayloadStore),
	)
	httpx.WriteJSON(w, http.StatusCreated, result)
}

func (s *RecordsService) handlePatch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	pageID, recordID := query.Get("id"), query.Get("formula_id")
	if pageID == "" && recordID == "" {
		httpx.WriteError(w, s.logger, apperr.BadRequest("Missing id or formula_id query parameter"))
		return
	}

	fields, err := decodeFields(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		httpx.WriteError(w, s.logger, err)
		return
	}

	var result *WriteResult
	if pageID != "" {
		result, err = s.bridge.UpdateByHandle(r.Context(), pageID, fields)
	} else {
		result, err = s.bridge.UpdateByRecordID(r.Context(), recordID, fields)
	}
	if err != nil {
		s.fail(w, "update record", err)
		return
	}
	s.logger.Info("record updated",
		logging.String("page_id", result.ID),
		logging.String("record_store", result.RecordStore),
		logging.String("payload_store", result.PayloadStore),
	)
	httpx.WriteJSON(w, http.StatusOK, result)
}

func (s *RecordsService) fail(w http.ResponseWriter, op string, err error) {
	if r := apperr.From(err); r.Status < http.StatusInternalServerError {
		s.logger.Warn(op+" failed", logging.ErrorField(err))
	}
	httpx.WriteError(w, s.logger, err)
}

// Ensure RecordsService implements the Service interface.
var _ core.Service = (*RecordsService)(nil)
