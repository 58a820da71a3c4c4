package polymarket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sreeduggirala/polytrade/internal/domain"
)

// wsTestServer upgrades the connection, records the subscription, then sends
// the given raw messages.
func wsTestServer(t *testing.T, messages []string, gotSub chan<- subscribeMessage) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub subscribeMessage
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		gotSub <- sub

		for _, msg := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		// Hold the connection open until the client walks away.
		conn.ReadMessage()
	}))
}

func streamTradeJSON(wallet, txHash string) string {
	payload, _ := json.Marshal(map[string]interface{}{
		"type": "trade",
		"trade": map[string]interface{}{
			"proxyWallet":     wallet,
			"side":            "buy",
			"asset":           "token-1",
			"size":            10.0,
			"price":           0.4,
			"timestamp":       1750000000,
			"transactionHash": txHash,
		},
	})
	return string(payload)
}

func TestStream_DeliversTrackedTrades(t *testing.T) {
	gotSub := make(chan subscribeMessage, 1)
	srv := wsTestServer(t, []string{
		streamTradeJSON("0xWhale", "0xaa"),
		streamTradeJSON("0xstranger", "0xbb"),  // untracked wallet
		`{"type":"price_change"}`,              // unrelated message type
		streamTradeJSON("0xwhale", ""),         // no hash, cannot dedup
		streamTradeJSON("0xWHALE", "0xcc"),
	}, gotSub)
	defer srv.Close()

	out := make(chan *domain.TradeEvent, 16)
	stream, err := NewStream(StreamConfig{
		URL:     "ws" + strings.TrimPrefix(srv.URL, "http"),
		Wallets: []string{"0xWhale"},
		Out:     out,
		Logger:  &mockLogger{},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream.Start(ctx)
	defer stream.Stop()

	select {
	case sub := <-gotSub:
		assert.Equal(t, "subscribe", sub.Type)
		assert.Equal(t, "activity", sub.Channel)
		assert.Equal(t, []string{"0xwhale"}, sub.Wallets, "subscription uses lowercased wallets")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscription")
	}

	var got []*domain.TradeEvent
	deadline := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case ev := <-out:
			got = append(got, ev)
		case <-deadline:
			t.Fatalf("timed out, got %d events", len(got))
		}
	}

	assert.Equal(t, "0xaa", got[0].TxHash)
	assert.Equal(t, "0xwhale", got[0].SourceWallet)
	assert.Equal(t, domain.Buy, got[0].Side)
	assert.Equal(t, "4", got[0].Volume.String())
	assert.Equal(t, "0xcc", got[1].TxHash, "wallet match is case-insensitive")

	// Nothing else should arrive.
	select {
	case ev := <-out:
		t.Fatalf("unexpected extra event %s", ev.TxHash)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStream_RequiresConfig(t *testing.T) {
	out := make(chan *domain.TradeEvent)
	_, err := NewStream(StreamConfig{URL: "", Wallets: []string{"0xw"}, Out: out, Logger: &mockLogger{}})
	assert.Error(t, err)
	_, err = NewStream(StreamConfig{URL: "ws://x", Wallets: []string{"0xw"}, Logger: &mockLogger{}})
	assert.Error(t, err)
}
