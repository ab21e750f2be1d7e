package handlers_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"minigames-backend/internal/handlers"
	"minigames-backend/internal/services"
)

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// readUntil skips messages until one of the given type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) map[string]any {
	t.Helper()

	for i := 0; i < 50; i++ {
		msg := readMessage(t, conn)
		if msg["type"] == msgType {
			return msg
		}
	}
	t.Fatalf("no %s message received", msgType)
	return nil
}

func TestWebSocketHubStreamsCrashRound(t *testing.T) {
	ledger, err := services.NewFileStore(filepath.Join(t.TempDir(), "users.json"), 1000)
	require.NoError(t, err)
	defer ledger.Close()

	log := zap.NewNop()
	cfg := crashConfig()
	cfg.Ceiling = 1.25
	crash := services.NewCrashEngine(ledger, cfg, orderedRand{}, log)
	hub := handlers.NewWebSocketHub(crash.Snapshot, log)
	crash.SetBroadcaster(hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	router := handlers.NewGameRouter(handlers.GameRouterDeps{
		Ledger: ledger,
		Mines:  services.NewMinesEngine(ledger, minesConfig(), orderedRand{}, log),
		Crash:  crash,
		Hub:    hub,
		Log:    log,
	})
	srv := httptest.NewServer(router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/crash/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	state := readMessage(t, conn)
	assert.Equal(t, handlers.MessageState, state["type"])
	data := state["data"].(map[string]any)
	assert.Equal(t, false, data["gameActive"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": handlers.MessagePing}))
	assert.Equal(t, handlers.MessagePong, readUntil(t, conn, handlers.MessagePong)["type"])

	status, err := crash.StartRound()
	require.NoError(t, err)
	start := readUntil(t, conn, handlers.MessageRoundStart)
	assert.Equal(t, status.RoundID, start["roundId"])

	_, err = crash.PlaceBet(ctx, "ws-user", 10, 1.15)
	require.NoError(t, err)

	for !crash.Tick(ctx) {
	}

	cashOut := readUntil(t, conn, handlers.MessageCashOut)
	bet := cashOut["data"].(map[string]any)
	assert.Equal(t, "ws-user", bet["userId"])
	assert.Equal(t, 1.15, bet["cashOutMultiplier"])

	crashed := readUntil(t, conn, handlers.MessageCrash)
	assert.Equal(t, status.RoundID, crashed["roundId"])
	result := crashed["data"].(map[string]any)
	assert.NotEmpty(t, result["serverSeed"])
}
