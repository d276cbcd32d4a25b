package out_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	deliveryoutadapter "recvault/internal/modules/delivery/adapter/out"
	"recvault/internal/modules/delivery/domain"
	apperrors "recvault/internal/platform/errors"
)

func TestSubmitSessionSendsMultipartAndDecodesAck(t *testing.T) {
	t.Parallel()
	var gotMeta domain.SessionMeta
	var gotAudio []byte
	var gotName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/transcribe", r.URL.Path)
		assert.NoError(t, json.Unmarshal([]byte(r.FormValue("metadata")), &gotMeta))
		file, header, err := r.FormFile("audio")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotName = header.Filename
		gotAudio, _ = io.ReadAll(file)
		_, _ = w.Write([]byte(`{"recording_id":"S1","status":"Accepted"}`))
	}))
	defer srv.Close()

	transport := deliveryoutadapter.NewHTTPTransport(srv.URL+"/", "/api/transcribe", "/api/save-chunk")
	ack, err := transport.SubmitSession(context.Background(), domain.Submission{
		Meta:        domain.SessionMeta{ID: "S1", ChunkCount: 2, LastSequence: 1},
		Filename:    "recording_S1.webm",
		ContentType: "audio/webm",
		Audio:       []byte("abc"),
	})
	require.NoError(t, err)
	assert.Equal(t, "S1", ack.SessionID)
	assert.Equal(t, "accepted", ack.Status)
	assert.Equal(t, "S1", gotMeta.ID)
	assert.Equal(t, 2, gotMeta.ChunkCount)
	assert.Equal(t, "recording_S1.webm", gotName)
	assert.Equal(t, []byte("abc"), gotAudio)
}

func TestStageChunkSendsSequence(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/save-chunk", r.URL.Path)
		assert.Equal(t, "S1", r.FormValue("recording_id"))
		assert.Equal(t, "7", r.FormValue("chunk_number"))
		_, header, err := r.FormFile("audio_chunk")
		if assert.NoError(t, err) {
			assert.Equal(t, "chunk-000007.webm", header.Filename)
		}
		_, _ = w.Write([]byte(`{"recording_id":"S1","chunk_number":"7"}`))
	}))
	defer srv.Close()

	transport := deliveryoutadapter.NewHTTPTransport(srv.URL, "/api/transcribe", "/api/save-chunk")
	ack, err := transport.StageChunk(context.Background(), domain.ChunkUpload{SessionID: "S1", Sequence: 7, Audio: []byte("x")})
	require.NoError(t, err)
	require.NotNil(t, ack.Sequence)
	assert.Equal(t, 7, *ack.Sequence)
	seq := 7
	assert.True(t, ack.Confirms(domain.Task{Kind: domain.KindChunk, SessionID: "S1", Chunks: []domain.Chunk{{SessionID: "S1", Sequence: seq}}}))
}

func TestTransportClassifiesFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "client error", status: http.StatusUnprocessableEntity, want: apperrors.ErrTransferRejected},
		{name: "server error", status: http.StatusServiceUnavailable, want: apperrors.ErrTransferTransient},
		{name: "empty body", status: http.StatusOK, want: apperrors.ErrDeliveryUnconfirmed},
		{name: "no identifier", status: http.StatusOK, body: `{"status":"ok"}`, want: apperrors.ErrDeliveryUnconfirmed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()
			transport := deliveryoutadapter.NewHTTPTransport(srv.URL, "/submit", "/chunk")
			_, err := transport.SubmitSession(context.Background(), domain.Submission{Meta: domain.SessionMeta{ID: "S1"}, Audio: []byte("a")})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Equal(t, tt.want != apperrors.ErrTransferRejected, apperrors.Retryable(err))
		})
	}
}

func TestTransportTimeoutIsTransient(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	transport := deliveryoutadapter.NewHTTPTransport(srv.URL, "/submit", "/chunk")
	_, err := transport.SubmitSession(ctx, domain.Submission{Meta: domain.SessionMeta{ID: "S1"}, Audio: []byte("a")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrTransferTransient))
}
