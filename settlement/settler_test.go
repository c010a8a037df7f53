package settlement

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curveExchange/entity"
)

func TestWebhook_Settle(t *testing.T) {
	var got webhookBody
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		buf, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(buf, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhook(WebhookOptions{URL: srv.URL + "/", Token: "secret"})
	err := wh.Settle(context.Background(), entity.Settlement{Kind: entity.SettlementPayout, Recipient: "tz1alice", Amount: 230})
	require.NoError(t, err)

	assert.Equal(t, webhookBody{Kind: entity.SettlementPayout, Recipient: "tz1alice", Amount: 230}, got)
	assert.Equal(t, "Bearer secret", auth)
}

func TestWebhook_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhook(WebhookOptions{URL: srv.URL, RetryCount: 3})
	require.NoError(t, wh.Settle(context.Background(), entity.Settlement{Kind: entity.SettlementRefund, Recipient: "tz1bob", Amount: 440}))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestWebhook_ClientErrorFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	wh := NewWebhook(WebhookOptions{URL: srv.URL})
	err := wh.Settle(context.Background(), entity.Settlement{Kind: entity.SettlementRefund, Recipient: "tz1bob", Amount: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestDiscard(t *testing.T) {
	assert.NoError(t, Discard{}.Settle(context.Background(), entity.Settlement{}))
}
