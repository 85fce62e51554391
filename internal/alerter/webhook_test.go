package alerter

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbo-vision/coreflow/internal/frame"
)

func TestWebhookSink_SignsAndPostsBody(t *testing.T) {
	const secret = "shh"
	var gotSig, gotBody string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotSig = r.Header.Get("X-Coreflow-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, secret)
	status := sink.Send(context.Background(), Payload{Observations: []frame.Observation{
		{Timestamp: time.Unix(100, 0), Summary: "person detected"},
	}})

	require.Equal(t, StatusOk, status)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gotBody))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), gotSig)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(gotBody), &decoded))
	assert.Equal(t, "coreflow", decoded["source"])
}

func TestWebhookSink_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, "")
	status := sink.Send(context.Background(), Payload{Observations: []frame.Observation{{Summary: "x"}}})
	assert.Equal(t, StatusTransientError, status)
}

func TestWebhookSink_ClientErrorIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, "")
	status := sink.Send(context.Background(), Payload{Observations: []frame.Observation{{Summary: "x"}}})
	assert.Equal(t, StatusPermanentError, status)
}

func TestWebhookSink_UnreachableServerIsTransient(t *testing.T) {
	sink := NewWebhookSink("http://127.0.0.1:0", "")
	status := sink.Send(context.Background(), Payload{Observations: []frame.Observation{{Summary: "x"}}})
	assert.Equal(t, StatusTransientError, status)
}
