package middleware

import (
	"encoding/json"
	"net/http"
)

// jsonError writes the same failure envelope the handlers use.
func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   message,
	})
}
