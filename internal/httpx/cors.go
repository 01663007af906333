package httpx

import (
	"net/http"
	"strconv"

	"github.com/asad/mediabridge/internal/core"
)

// SetCORSHeaders writes the policy's Access-Control-* response headers,
// overwriting any already present.
func SetCORSHeaders(h http.Header, policy core.CORSPolicy) {
	h.Set("Access-Control-Allow-Origin", "*")
	if policy.AllowMethods != "" {
		h.Set("Access-Control-Allow-Methods", policy.AllowMethods)
	}
	if policy.AllowHeaders != "" {
		h.Set("Access-Control-Allow-Headers", policy.AllowHeaders)
	}
	if policy.ExposeHeaders != "" {
		h.Set("Access-Control-Expose-Headers", policy.ExposeHeaders)
	}
}

// CORS answers every OPTIONS request as a preflight and stamps the policy
// onto all other responses before the handler runs.
func CORS(policy core.CORSPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			SetCORSHeaders(w.Header(), policy)
			if r.Method == http.MethodOptions {
				if policy.MaxAge > 0 {
					w.Header().Set("Access-Control-Max-Age", strconv.Itoa(policy.MaxAge))
				}
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
