package middleware

import (
	"encoding/json"
	"net/http"
)

// writeJSONError writes the same {"error","code"} body the API handlers use.
func writeJSONError(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}
