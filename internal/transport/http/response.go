package httptransport

import (
	"encoding/json"
	"net/http"
)

// apiError is the body of every non-2xx JSON response.
type apiError struct {
	Message string `json:"message"`
}

// writeJSON sends v as the response body. Encode errors are dropped: the
// status line is already on the wire at that point.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, apiError{Message: msg})
}
