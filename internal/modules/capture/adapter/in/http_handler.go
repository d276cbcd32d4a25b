package in

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"recvault/internal/modules/capture/dto"
	capturein "recvault/internal/modules/capture/port/in"
	"recvault/internal/platform/httpx"
	"recvault/internal/platform/logging"
)

const stopMessage = "stop"

// HTTPHandler exposes capture over plain HTTP and a WebSocket stream where
// every binary frame is one chunk.
type HTTPHandler struct {
	usecase  capturein.Usecase
	maxChunk int64
	log      logging.Logger
}

func NewHTTPHandler(usecase capturein.Usecase, maxChunk int64, logger logging.Logger) *HTTPHandler {
	return &HTTPHandler{usecase: usecase, maxChunk: maxChunk, log: logger}
}

func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.Start)
		r.Get("/active", h.Active)
		r.Post("/active/chunks", h.Append)
		r.Post("/active/stop", h.Stop)
		r.Get("/active/stream", h.Stream)
	})
}

type startRequest struct {
	Label string `json:"label"`
}

type startResponse struct {
	SessionID string `json:"session_id"`
	StartTime string `json:"start_time"`
}

type appendResponse struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	ChunkCount int    `json:"chunk_count"`
	TotalBytes int64  `json:"total_bytes"`
}

func (h *HTTPHandler) Start(w http.ResponseWriter, r *http.Request) {
	req := startRequest{}
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			httpx.Error(w, http.StatusBadRequest, "invalid json body")
			return
		}
	}
	out, err := h.usecase.StartSession(r.Context(), dto.StartInput{Label: req.Label})
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, startResponse{SessionID: out.SessionID, StartTime: out.StartTime.Format("2006-01-02T15:04:05.000Z07:00")})
}

func (h *HTTPHandler) Active(w http.ResponseWriter, r *http.Request) {
	out, ok := h.usecase.Active(r.Context())
	if !ok {
		httpx.Error(w, http.StatusNotFound, "no active session")
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) Append(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxChunk))
	if err != nil {
		httpx.Error(w, http.StatusRequestEntityTooLarge, "chunk too large")
		return
	}
	out, err := h.usecase.AppendChunk(r.Context(), data)
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, toAppendResponse(out))
}

func (h *HTTPHandler) Stop(w http.ResponseWriter, r *http.Request) {
	out, err := h.usecase.StopSession(r.Context())
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

// Stream starts a session for the connection. Binary frames are chunks; a
// "stop" text frame or a dropped connection stops the session.
func (h *HTTPHandler) Stream(w http.ResponseWriter, r *http.Request) {
	out, err := h.usecase.StartSession(r.Context(), dto.StartInput{Label: r.URL.Query().Get("label")})
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Errorw("accept capture stream", "session_id", out.SessionID, "error", err)
		h.stop(r.Context())
		return
	}
	defer func() {
		_ = ws.Close(websocket.StatusNormalClosure, "session stopped")
	}()
	ws.SetReadLimit(h.maxChunk)
	h.log.Infow("capture stream opened", "session_id", out.SessionID, "remote", r.RemoteAddr)

	ctx := r.Context()
	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 {
				h.log.Warnw("capture stream dropped", "session_id", out.SessionID, "error", err)
			}
			h.stop(ctx)
			return
		}
		if typ == websocket.MessageText {
			if string(data) != stopMessage {
				continue
			}
			session, err := h.usecase.StopSession(context.WithoutCancel(ctx))
			if err != nil {
				_ = wsjson.Write(ctx, ws, map[string]string{"error": err.Error()})
				return
			}
			_ = wsjson.Write(ctx, ws, session)
			return
		}
		appended, err := h.usecase.AppendChunk(ctx, data)
		if err != nil {
			_ = wsjson.Write(ctx, ws, map[string]string{"error": err.Error()})
			h.stop(ctx)
			return
		}
		if err := wsjson.Write(ctx, ws, toAppendResponse(appended)); err != nil {
			h.log.Debugw("ack capture chunk", "session_id", out.SessionID, "error", err)
		}
	}
}

func (h *HTTPHandler) stop(ctx context.Context) {
	if _, err := h.usecase.StopSession(context.WithoutCancel(ctx)); err != nil {
		h.log.Warnw("stop session after stream ended", "error", err)
	}
}

func toAppendResponse(out dto.AppendOutput) appendResponse {
	return appendResponse{SessionID: out.SessionID, Sequence: out.Sequence, ChunkCount: out.ChunkCount, TotalBytes: out.TotalBytes}
}
