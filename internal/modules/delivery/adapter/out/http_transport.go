package out

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"recvault/internal/modules/delivery/domain"
	deliveryout "recvault/internal/modules/delivery/port/out"
	apperrors "recvault/internal/platform/errors"
)

type HTTPTransport struct {
	client     *resty.Client
	submitPath string
	chunkPath  string
}

// NewHTTPTransport talks to the processing endpoint. Timeouts come from the
// per-attempt context; resty's own retries stay off so every attempt is
// counted by the queue.
func NewHTTPTransport(baseURL, submitPath, chunkPath string) deliveryout.Transport {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetRetryCount(0)
	return &HTTPTransport{client: client, submitPath: submitPath, chunkPath: chunkPath}
}

func (h *HTTPTransport) SubmitSession(ctx context.Context, submission domain.Submission) (domain.Ack, error) {
	meta, err := json.Marshal(submission.Meta)
	if err != nil {
		return domain.Ack{}, fmt.Errorf("encode metadata: %w", err)
	}
	resp, err := h.client.R().
		SetContext(ctx).
		SetMultipartField("audio", submission.Filename, submission.ContentType, bytes.NewReader(submission.Audio)).
		SetMultipartFormData(map[string]string{"metadata": string(meta)}).
		Post(h.submitPath)
	body, err := classify(resp, err)
	if err != nil {
		return domain.Ack{}, err
	}
	return decodeAck(body)
}

func (h *HTTPTransport) StageChunk(ctx context.Context, upload domain.ChunkUpload) (domain.Ack, error) {
	resp, err := h.client.R().
		SetContext(ctx).
		SetMultipartField("audio_chunk", fmt.Sprintf("chunk-%06d.webm", upload.Sequence), "audio/webm", bytes.NewReader(upload.Audio)).
		SetMultipartFormData(map[string]string{
			"recording_id": upload.SessionID,
			"chunk_number": strconv.Itoa(upload.Sequence),
		}).
		Post(h.chunkPath)
	body, err := classify(resp, err)
	if err != nil {
		return domain.Ack{}, err
	}
	return decodeAck(body)
}

func classify(resp *resty.Response, err error) ([]byte, error) {
	if err != nil {
		return nil, &apperrors.TransferError{Kind: apperrors.ErrTransferTransient, Err: err}
	}
	code := resp.StatusCode()
	switch {
	case code >= 200 && code < 300:
		return resp.Body(), nil
	case code >= 400 && code < 500:
		return nil, &apperrors.TransferError{Kind: apperrors.ErrTransferRejected, Status: code}
	default:
		return nil, &apperrors.TransferError{Kind: apperrors.ErrTransferTransient, Status: code}
	}
}

type ackBody struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	RecordingID string          `json:"recording_id"`
	ChunkNumber json.RawMessage `json:"chunk_number"`
	Status      string          `json:"status"`
}

func decodeAck(body []byte) (domain.Ack, error) {
	raw := ackBody{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.Ack{}, fmt.Errorf("decode acknowledgment: %w", apperrors.ErrDeliveryUnconfirmed)
	}
	ack := domain.Ack{Status: strings.ToLower(raw.Status)}
	for _, candidate := range []string{raw.SessionID, raw.RecordingID, raw.ID} {
		if candidate != "" {
			ack.SessionID = candidate
			break
		}
	}
	if len(raw.ChunkNumber) > 0 {
		text := strings.Trim(string(raw.ChunkNumber), `"`)
		if n, err := strconv.Atoi(text); err == nil {
			ack.Sequence = &n
		}
	}
	if ack.SessionID == "" {
		return domain.Ack{}, fmt.Errorf("acknowledgment carries no identifier: %w", apperrors.ErrDeliveryUnconfirmed)
	}
	return ack, nil
}
