package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/asad/mediabridge/internal/apperr"
	"github.com/asad/mediabridge/internal/logging"
)

// WriteJSON writes v as an indented JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// WriteError renders err as the {error, ...details} envelope. Unclassified
// errors become 500s; every 5xx is logged at error level.
func WriteError(w http.ResponseWriter, logger logging.Logger, err error) {
	appErr := apperr.From(err)
	if appErr.Status >= http.StatusInternalServerError {
		logger.Error("request failed",
			logging.String("kind", string(appErr.Kind)),
			logging.Int("status", appErr.Status),
			logging.ErrorField(err),
		)
	}
	WriteJSON(w, appErr.Status, appErr.Envelope())
}
