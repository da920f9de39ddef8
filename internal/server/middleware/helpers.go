package middleware

import (
	"encoding/json"
	"net/http"
)

// writeDetail sends {"detail": msg} with the given status.
func writeDetail(w http.ResponseWriter, status int, msg string) {
	body, _ := json.Marshal(map[string]string{"detail": msg})
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(body)
}
