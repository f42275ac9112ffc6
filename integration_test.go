package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"streamer-quiz-server/api"
	"streamer-quiz-server/client"
	"streamer-quiz-server/config"
	"streamer-quiz-server/matchid"
	"streamer-quiz-server/store"
	"streamer-quiz-server/ws"
)

// setupTestServer creates a test HTTP server with the full relay stack.
func setupTestServer(t *testing.T) (*httptest.Server, func()) {
	t.Helper()

	cfg := config.Defaults()
	cfg.EmptyMatchTTLSec = 1

	st := store.New()
	hub := ws.NewHub(cfg, st)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	apiHandler := api.NewHandler(cfg, st)
	router := httprouter.New()
	router.HandlerFunc(http.MethodGet, "/ws", hub.ServeWS)
	router.GET("/healthz", apiHandler.Health)
	router.GET("/api/matches/:id/qr", apiHandler.MatchQR)

	server := httptest.NewServer(router)
	cleanup := func() {
		server.Close()
		cancel()
	}
	return server, cleanup
}

// connectWS creates a WebSocket connection to the test server.
func connectWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	return conn
}

// readMsg reads a JSON message from the WebSocket and returns it as a map.
func readMsg(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var msg map[string]interface{}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to unmarshal: %v\ndata: %s", err, string(data))
	}
	return msg
}

// sendMsg sends a JSON message over the WebSocket.
func sendMsg(t *testing.T, conn *websocket.Conn, msg interface{}) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
}

// readUntilType reads messages until one of the given type arrives.
func readUntilType(t *testing.T, conn *websocket.Conn, msgType string) map[string]interface{} {
	t.Helper()
	for i := 0; i < 20; i++ {
		msg := readMsg(t, conn)
		if msg["type"] == msgType {
			return msg
		}
	}
	t.Fatalf("never received a %s message", msgType)
	return nil
}

// playerScore digs playerScores[slot] out of a matchUpdate message.
func playerScore(t *testing.T, msg map[string]interface{}, slot int) float64 {
	t.Helper()
	m, ok := msg["match"].(map[string]interface{})
	if !ok {
		t.Fatalf("message has no match record: %v", msg)
	}
	state := m["state"].(map[string]interface{})
	scores := state["playerScores"].([]interface{})
	return scores[slot].(float64)
}

// waitForScore reads matchUpdates until playerScores[slot] == want.
func waitForScore(t *testing.T, conn *websocket.Conn, slot int, want float64) {
	t.Helper()
	for i := 0; i < 20; i++ {
		msg := readUntilType(t, conn, "matchUpdate")
		if playerScore(t, msg, slot) == want {
			return
		}
	}
	t.Fatalf("never saw playerScores[%d] == %v", slot, want)
}

func TestIntegration_HostGuestScenario(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	host := connectWS(t, server)
	defer host.Close()

	// Host creates a match.
	sendMsg(t, host, map[string]interface{}{"type": "createMatch", "config": map[string]interface{}{}})
	ack := readMsg(t, host)
	if ack["type"] != "createMatchResult" || ack["success"] != true {
		t.Fatalf("expected successful createMatchResult, got %v", ack)
	}
	matchID := ack["matchId"].(string)
	if len(matchID) != matchid.Length {
		t.Fatalf("expected %d-character match id, got %q", matchid.Length, matchID)
	}
	for _, c := range matchID {
		if !strings.ContainsRune(matchid.Alphabet, c) {
			t.Fatalf("match id %q uses character outside the alphabet", matchID)
		}
	}
	readUntilType(t, host, "matchUpdate") // host's own join

	// Guest joins.
	guest := connectWS(t, server)
	defer guest.Close()
	sendMsg(t, guest, map[string]string{"type": "joinMatch", "matchId": matchID, "displayName": "Mo"})
	joinAck := readUntilType(t, guest, "joinMatchResult")
	if joinAck["success"] != true {
		t.Fatalf("expected successful join, got %v", joinAck)
	}

	// Both sides see a player list containing Mo.
	for _, conn := range []*websocket.Conn{host, guest} {
		update := readUntilType(t, conn, "matchUpdate")
		m := update["match"].(map[string]interface{})
		players := m["players"].([]interface{})
		found := false
		for _, p := range players {
			if p.(map[string]interface{})["displayName"] == "Mo" {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected Mo in players, got %v", players)
		}
	}

	// Guest bumps slot 0 by +100; both sides converge on 100.
	sendMsg(t, guest, map[string]interface{}{"type": "changeScore", "matchId": matchID, "playerId": 0, "delta": 100})
	waitForScore(t, host, 0, 100)
	waitForScore(t, guest, 0, 100)

	// Host disconnects; the match survives and the guest keeps receiving updates.
	host.Close()
	sendMsg(t, guest, map[string]interface{}{"type": "changeScore", "matchId": matchID, "playerId": 0, "delta": -50})
	waitForScore(t, guest, 0, 50)
}

func TestIntegration_JoinUnknownMatchFails(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	conn := connectWS(t, server)
	defer conn.Close()

	sendMsg(t, conn, map[string]string{"type": "joinMatch", "matchId": "NOSUCH", "displayName": "Mo"})
	ack := readUntilType(t, conn, "joinMatchResult")
	if ack["success"] != false {
		t.Fatalf("joining an unknown match must fail, got %v", ack)
	}
	if !strings.Contains(ack["error"].(string), "not found") {
		t.Errorf("expected a not-found error, got %v", ack["error"])
	}
}

func TestIntegration_SecondCreateWhileHostingRejected(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	conn := connectWS(t, server)
	defer conn.Close()

	sendMsg(t, conn, map[string]interface{}{"type": "createMatch"})
	first := readMsg(t, conn)
	if first["success"] != true {
		t.Fatalf("first create should succeed, got %v", first)
	}

	sendMsg(t, conn, map[string]interface{}{"type": "createMatch"})
	second := readUntilType(t, conn, "createMatchResult")
	if second["success"] != false {
		t.Fatalf("second create while hosting must fail, got %v", second)
	}
}

func TestIntegration_UpdateGameStateReplacesPerKey(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	conn := connectWS(t, server)
	defer conn.Close()

	sendMsg(t, conn, map[string]interface{}{"type": "createMatch"})
	ack := readMsg(t, conn)
	matchID := ack["matchId"].(string)

	sendMsg(t, conn, map[string]interface{}{
		"type": "updateGameState", "matchId": matchID,
		"state": map[string]interface{}{"revealed": map[string]bool{"A-0": true}},
	})
	sendMsg(t, conn, map[string]interface{}{
		"type": "updateGameState", "matchId": matchID,
		"state": map[string]interface{}{"showAnswer": map[string]bool{"A-0": true}},
	})

	// Both top-level keys persist independently.
	for i := 0; i < 20; i++ {
		update := readUntilType(t, conn, "matchUpdate")
		state := update["match"].(map[string]interface{})["state"].(map[string]interface{})
		revealed := state["revealed"].(map[string]interface{})
		answers := state["showAnswer"].(map[string]interface{})
		if revealed["A-0"] == true && answers["A-0"] == true {
			return
		}
	}
	t.Fatal("revealed and showAnswer never both true for A-0")
}

func TestIntegration_HealthAndQREndpoints(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	conn := connectWS(t, server)
	defer conn.Close()
	sendMsg(t, conn, map[string]interface{}{"type": "createMatch"})
	ack := readMsg(t, conn)
	matchID := ack["matchId"].(string)

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	var health api.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decoding health: %v", err)
	}
	if health.Status != "ok" || health.Matches != 1 {
		t.Errorf("expected ok/1 match, got %+v", health)
	}

	qrResp, err := http.Get(server.URL + "/api/matches/" + matchID + "/qr")
	if err != nil {
		t.Fatalf("qr: %v", err)
	}
	defer qrResp.Body.Close()
	if qrResp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for live match qr, got %d", qrResp.StatusCode)
	}
	if ct := qrResp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %s", ct)
	}

	missing, err := http.Get(server.URL + "/api/matches/NOSUCH/qr")
	if err != nil {
		t.Fatalf("qr missing: %v", err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown match, got %d", missing.StatusCode)
	}
}

func TestIntegration_ClientLibraryEndToEnd(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	host, err := client.Dial(ctx, wsURL)
	if err != nil {
		t.Fatalf("host dial: %v", err)
	}
	defer host.Close()

	matchID, err := host.CreateMatch(ctx, nil, "Host")
	if err != nil {
		t.Fatalf("create match: %v", err)
	}

	guest, err := client.Dial(ctx, wsURL)
	if err != nil {
		t.Fatalf("guest dial: %v", err)
	}
	defer guest.Close()

	snap, err := guest.JoinMatch(ctx, matchID, "Mo")
	if err != nil {
		t.Fatalf("join match: %v", err)
	}
	if len(snap.Players) != 2 {
		t.Errorf("expected 2 players after join, got %d", len(snap.Players))
	}

	if err := guest.ChangePlayerScore(0, 100); err != nil {
		t.Fatalf("change score: %v", err)
	}
	// Optimistic apply is immediate on the guest.
	if got := guest.Match().State.PlayerScores[0]; got != 100 {
		t.Errorf("expected optimistic score 100, got %d", got)
	}

	// The host converges via the broadcast.
	deadline := time.After(3 * time.Second)
	for host.Match().State.PlayerScores[0] != 100 {
		select {
		case <-deadline:
			t.Fatal("host never saw playerScores[0] == 100")
		case <-time.After(20 * time.Millisecond):
		}
	}

	if err := guest.Reveal("HISTORY", 2); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	for !host.Match().State.Revealed["HISTORY-2"] {
		select {
		case <-deadline:
			t.Fatal("host never saw HISTORY-2 revealed")
		case <-time.After(20 * time.Millisecond):
		}
	}
}
