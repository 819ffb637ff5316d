package handler

import (
	"net/http"
)

// Counter reports live numbers for the health endpoint.
type Counter interface {
	Counts() map[string]int
}

type Connections interface {
	Connected() int
}

type healthResponse struct {
	Status   string         `json:"status"`
	Clients  int            `json:"clients"`
	Messages map[string]int `json:"messages"`
}

// ServeHealth reports per-channel message counts and connected clients.
func ServeHealth(chat Counter, conns Connections) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(r.Context(), w, http.StatusOK, healthResponse{
			Status:   "ok",
			Clients:  conns.Connected(),
			Messages: chat.Counts(),
		})
	}
}
