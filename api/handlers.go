package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	qrcode "github.com/skip2/go-qrcode"

	"streamer-quiz-server/config"
	"streamer-quiz-server/store"
)

// Handler holds dependencies for the HTTP API handlers.
type Handler struct {
	Config    *config.Config
	Store     *store.Store
	StartedAt time.Time
}

// NewHandler creates a new API handler with the given dependencies.
func NewHandler(cfg *config.Config, st *store.Store) *Handler {
	return &Handler{
		Config:    cfg,
		Store:     st,
		StartedAt: time.Now(),
	}
}

// CORS sets CORS headers on the response. Call before writing body.
// Returns true when the request was a preflight and is already answered.
func CORS(w http.ResponseWriter, r *http.Request) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}

// HealthResponse is the JSON structure for /healthz. Clients poll it to
// wake the process up from a cold start before opening a socket.
type HealthResponse struct {
	Status    string `json:"status"`
	Matches   int    `json:"matches"`
	UptimeSec int64  `json:"uptimeSec"`
}

// Health reports process liveness and the current live match count.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if CORS(w, r) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	resp := HealthResponse{
		Status:    "ok",
		Matches:   h.Store.Count(),
		UptimeSec: int64(time.Since(h.StartedAt).Seconds()),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("encoding health response", "tag", "api", "err", err)
	}
}

// MatchQR renders a QR code PNG encoding the join link for a live match,
// so the host can flash it on stream instead of spelling out the code.
func (h *Handler) MatchQR(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if CORS(w, r) {
		return
	}
	id := p.ByName("id")
	if _, err := h.Store.Get(id); err != nil {
		http.Error(w, "match not found", http.StatusNotFound)
		return
	}

	base := h.Config.PublicBaseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	joinURL := fmt.Sprintf("%s/?match=%s", base, id)

	png, err := qrcode.Encode(joinURL, qrcode.Medium, 256)
	if err != nil {
		slog.Error("encoding qr code", "tag", "api", "err", err)
		http.Error(w, "failed to render qr code", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if _, err := w.Write(png); err != nil {
		slog.Error("writing qr response", "tag", "api", "err", err)
	}
}
