package in

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"recvault/internal/modules/recovery/dto"
	recoveryin "recvault/internal/modules/recovery/port/in"
	"recvault/internal/platform/httpx"
)

// HTTPHandler is the recovery surface for a separate presentation layer.
type HTTPHandler struct {
	usecase recoveryin.Usecase
}

func NewHTTPHandler(usecase recoveryin.Usecase) *HTTPHandler {
	return &HTTPHandler{usecase: usecase}
}

func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/recoverable", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/{id}/resume", h.Resume)
		r.Get("/{id}/export", h.Export)
		r.Delete("/{id}", h.Discard)
	})
}

func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	out, err := h.usecase.ListRecoverable(r.Context())
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (h *HTTPHandler) Resume(w http.ResponseWriter, r *http.Request) {
	out, err := h.usecase.Resume(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	status := http.StatusOK
	if out.Queued {
		status = http.StatusAccepted
	}
	httpx.JSON(w, status, out)
}

func (h *HTTPHandler) Export(w http.ResponseWriter, r *http.Request) {
	out, err := h.usecase.Export(r.Context(), dto.ExportInput{SessionID: chi.URLParam(r, "id"), Format: r.URL.Query().Get("format")})
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Data)
}

func (h *HTTPHandler) Discard(w http.ResponseWriter, r *http.Request) {
	out, err := h.usecase.Discard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}
