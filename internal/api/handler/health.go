package handler

import "net/http"

// Health answers GET /health. It sits outside the bearer-token middleware so
// orchestrators can probe liveness without a credential.
func Health(w http.ResponseWriter, r *http.Request) {
	Success(w, http.StatusOK, "ok", nil)
}
