package handler

import (
	"encoding/json"
	"net/http"
)

// envelope is the uniform response shape for every JSON endpoint: status is
// always "success" or "error", message is human-readable, and data carries
// the payload (omitted on error).
type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Success writes a {status:"success", message, data} envelope.
func Success(w http.ResponseWriter, code int, message string, data any) {
	write(w, code, envelope{Status: "success", Message: message, Data: data})
}

// Error writes a {status:"error", message} envelope.
func Error(w http.ResponseWriter, code int, message string) {
	write(w, code, envelope{Status: "error", Message: message})
}

func write(w http.ResponseWriter, code int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
