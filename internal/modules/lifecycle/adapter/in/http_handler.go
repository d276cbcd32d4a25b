package in

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	lifecyclein "recvault/internal/modules/lifecycle/port/in"
	"recvault/internal/platform/httpx"
)

type HTTPHandler struct {
	guard lifecyclein.Guard
}

func NewHTTPHandler(guard lifecyclein.Guard) *HTTPHandler {
	return &HTTPHandler{guard: guard}
}

func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/lifecycle", func(r chi.Router) {
		r.Post("/hide", h.Hide)
		r.Post("/unload", h.Unload)
	})
}

func (h *HTTPHandler) Hide(w http.ResponseWriter, r *http.Request) {
	if err := h.guard.Hide(r.Context()); err != nil {
		httpx.Fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) Unload(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]bool{"allow": h.guard.OnUnloadAttempt(r.Context())})
}
