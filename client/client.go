package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"streamer-quiz-server/match"
	"streamer-quiz-server/ws"
)

// ErrAckTimeout is returned when the server does not acknowledge an
// intent within the ack timeout. The intent may be retried.
var ErrAckTimeout = errors.New("timed out waiting for server acknowledgment")

// ErrClosed is returned from intents issued after Close.
var ErrClosed = errors.New("client is closed")

const (
	defaultAckTimeout  = 10 * time.Second
	reconnectAttempts  = 5
	reconnectBaseDelay = time.Second
	writeTimeout       = 10 * time.Second
)

// Client is a headless protocol client: it emits intents, applies them
// optimistically to a local match mirror, and reconciles every inbound
// matchUpdate as authoritative. Safe for use from multiple goroutines.
type Client struct {
	// AckTimeout bounds the wait for createMatch/joinMatch acks.
	// Defaults to 10s; raise it for deployments with slow cold starts.
	AckTimeout time.Duration

	// OnUpdate, when set, is called with a snapshot of the local mirror
	// after every reconciled broadcast.
	OnUpdate func(match.Match)

	// OnError, when set, receives server-side rejections of intents.
	OnError func(message string)

	url string

	mu          sync.Mutex
	conn        *websocket.Conn
	local       match.Match
	matchID     string
	displayName string
	closed      bool

	pendingCreate chan ws.CreateMatchResultMsg
	pendingJoin   chan joinResult
}

type joinResult struct {
	Success bool         `json:"success"`
	Match   *MatchUpdate `json:"match"`
	Error   string       `json:"error"`
}

// Dial connects to the server's /ws endpoint (ws:// or wss:// URL) and
// starts the read loop.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	c := &Client{
		AckTimeout: defaultAckTimeout,
		url:        url,
		conn:       conn,
		local:      *match.New("", ""),
	}
	go c.readLoop(conn)
	return c, nil
}

// Close tears the connection down. No reconnection is attempted.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Match returns a snapshot of the local match mirror.
func (c *Client) Match() match.Match {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneMatch(c.local)
}

// CreateMatch asks the server to create a match and waits for the ack,
// bounded by AckTimeout. On success the returned id is also retained as
// the client's current match.
func (c *Client) CreateMatch(ctx context.Context, cfg *match.ConfigPatch, displayName string) (string, error) {
	ack := make(chan ws.CreateMatchResultMsg, 1)
	c.mu.Lock()
	c.pendingCreate = ack
	c.mu.Unlock()

	err := c.send(ws.CreateMatchMsg{Type: "createMatch", Config: cfg, DisplayName: displayName})
	if err != nil {
		return "", err
	}

	select {
	case res := <-ack:
		if !res.Success {
			return "", errors.New(res.Error)
		}
		c.mu.Lock()
		c.matchID = res.MatchID
		c.displayName = displayName
		c.local.ID = res.MatchID
		c.mu.Unlock()
		return res.MatchID, nil
	case <-time.After(c.ackTimeout()):
		return "", ErrAckTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// JoinMatch joins an existing match and waits for the ack. On success the
// authoritative record is reconciled into the local mirror.
func (c *Client) JoinMatch(ctx context.Context, matchID, displayName string) (match.Match, error) {
	ack := make(chan joinResult, 1)
	c.mu.Lock()
	c.pendingJoin = ack
	c.mu.Unlock()

	err := c.send(ws.JoinMatchMsg{Type: "joinMatch", MatchID: matchID, DisplayName: displayName})
	if err != nil {
		return match.Match{}, err
	}

	select {
	case res := <-ack:
		if !res.Success {
			return match.Match{}, errors.New(res.Error)
		}
		c.mu.Lock()
		c.matchID = matchID
		c.displayName = displayName
		if res.Match != nil {
			Reconcile(&c.local, *res.Match)
		}
		snap := cloneMatch(c.local)
		c.mu.Unlock()
		return snap, nil
	case <-time.After(c.ackTimeout()):
		return match.Match{}, ErrAckTimeout
	case <-ctx.Done():
		return match.Match{}, ctx.Err()
	}
}

// Reveal flips a cell to question-visible, optimistically and on the
// server. The full accumulated revealed map is sent because a present
// key replaces the stored map wholesale.
func (c *Client) Reveal(category string, row int) error {
	key := fmt.Sprintf("%s-%d", category, row)
	c.mu.Lock()
	if c.local.State.Revealed == nil {
		c.local.State.Revealed = make(map[string]bool)
	}
	c.local.State.Revealed[key] = true
	patch := match.StatePatch{Revealed: copyBoolMap(c.local.State.Revealed)}
	id := c.matchID
	c.mu.Unlock()
	return c.send(ws.UpdateGameStateMsg{Type: "updateGameState", MatchID: id, State: patch})
}

// ShowAnswer marks a revealed cell's answer as visible. Rejected locally
// when the cell is not revealed, mirroring the server invariant.
func (c *Client) ShowAnswer(category string, row int) error {
	key := fmt.Sprintf("%s-%d", category, row)
	c.mu.Lock()
	if !c.local.State.Revealed[key] {
		c.mu.Unlock()
		return fmt.Errorf("cell %s is not revealed", key)
	}
	if c.local.State.ShowAnswer == nil {
		c.local.State.ShowAnswer = make(map[string]bool)
	}
	c.local.State.ShowAnswer[key] = true
	patch := match.StatePatch{ShowAnswer: copyBoolMap(c.local.State.ShowAnswer)}
	id := c.matchID
	c.mu.Unlock()
	return c.send(ws.UpdateGameStateMsg{Type: "updateGameState", MatchID: id, State: patch})
}

// ChangePlayerScore adds delta to a player slot, optimistically and on
// the server. Deltas are signed and unbounded.
func (c *Client) ChangePlayerScore(slot, delta int) error {
	c.mu.Lock()
	if slot >= 0 && slot < len(c.local.State.PlayerScores) {
		c.local.State.PlayerScores[slot] += delta
	}
	id := c.matchID
	c.mu.Unlock()
	return c.send(ws.ChangeScoreMsg{Type: "changeScore", MatchID: id, PlayerID: &slot, Delta: delta})
}

// ChangeTeamScore adds delta to a team slot.
func (c *Client) ChangeTeamScore(team, delta int) error {
	c.mu.Lock()
	if team >= 0 && team < len(c.local.State.TeamScores) {
		c.local.State.TeamScores[team] += delta
	}
	id := c.matchID
	c.mu.Unlock()
	return c.send(ws.ChangeScoreMsg{Type: "changeScore", MatchID: id, TeamID: &team, Delta: delta})
}

// SetPlayerName renames a slot and sends the full names sequence.
func (c *Client) SetPlayerName(slot int, name string) error {
	c.mu.Lock()
	if slot >= 0 && slot < len(c.local.State.PlayerNames) {
		c.local.State.PlayerNames[slot] = name
	}
	names := append([]string(nil), c.local.State.PlayerNames...)
	id := c.matchID
	c.mu.Unlock()
	return c.send(ws.UpdateGameStateMsg{
		Type:    "updateGameState",
		MatchID: id,
		State:   match.StatePatch{PlayerNames: &names},
	})
}

// SetPlayerImage sets (or with nil clears) a slot's avatar and sends the
// full image sequence.
func (c *Client) SetPlayerImage(slot int, dataURI *string) error {
	c.mu.Lock()
	if slot >= 0 && slot < len(c.local.State.PlayerImages) {
		c.local.State.PlayerImages[slot] = dataURI
	}
	images := append([]*string(nil), c.local.State.PlayerImages...)
	id := c.matchID
	c.mu.Unlock()
	return c.send(ws.UpdateGameStateMsg{
		Type:    "updateGameState",
		MatchID: id,
		State:   match.StatePatch{PlayerImages: &images},
	})
}

// UpdateConfig merges the present fields of patch into the match config.
func (c *Client) UpdateConfig(patch match.ConfigPatch) error {
	c.mu.Lock()
	mergeConfig(&c.local.Config, patch)
	id := c.matchID
	c.mu.Unlock()
	return c.send(ws.UpdateConfigMsg{Type: "updateConfig", MatchID: id, Config: patch})
}

// ResetBoard clears every revealed cell and shown answer.
func (c *Client) ResetBoard() error {
	c.mu.Lock()
	c.local.State.Reset()
	id := c.matchID
	c.mu.Unlock()
	return c.send(ws.ResetBoardMsg{Type: "resetBoard", MatchID: id})
}

// AdvertiseStream announces that this connection starts (or stops)
// broadcasting webcam video for a slot. The media path is external.
func (c *Client) AdvertiseStream(slot int, active bool) error {
	c.mu.Lock()
	id := c.matchID
	c.mu.Unlock()
	return c.send(ws.AdvertiseStreamMsg{Type: "advertiseStream", MatchID: id, Slot: slot, Active: active})
}

func (c *Client) ackTimeout() time.Duration {
	if c.AckTimeout > 0 {
		return c.AckTimeout
	}
	return defaultAckTimeout
}

func (c *Client) send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn == nil {
		return ErrClosed
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return
			}
			c.reconnect()
			return
		}
		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return
	}

	switch envelope.Type {
	case "createMatchResult":
		var res ws.CreateMatchResultMsg
		if err := json.Unmarshal(data, &res); err != nil {
			return
		}
		c.mu.Lock()
		ack := c.pendingCreate
		c.pendingCreate = nil
		c.mu.Unlock()
		if ack != nil {
			ack <- res
		}

	case "joinMatchResult":
		var res joinResult
		if err := json.Unmarshal(data, &res); err != nil {
			return
		}
		c.mu.Lock()
		ack := c.pendingJoin
		c.pendingJoin = nil
		c.mu.Unlock()
		if ack != nil {
			ack <- res
		}

	case "matchUpdate":
		var msg struct {
			Match *MatchUpdate `json:"match"`
		}
		if err := json.Unmarshal(data, &msg); err != nil || msg.Match == nil {
			return
		}
		c.mu.Lock()
		Reconcile(&c.local, *msg.Match)
		snap := cloneMatch(c.local)
		onUpdate := c.OnUpdate
		c.mu.Unlock()
		if onUpdate != nil {
			onUpdate(snap)
		}

	case "error":
		var msg ws.ErrorMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		if c.OnError != nil {
			c.OnError(msg.Message)
		}
	}
}

// reconnect redials with backoff and re-issues joinMatch to re-sync; the
// server keeps no session state, so rejoining is the recovery path.
func (c *Client) reconnect() {
	c.mu.Lock()
	matchID, displayName := c.matchID, c.displayName
	c.mu.Unlock()

	delay := reconnectBaseDelay
	for attempt := 1; attempt <= reconnectAttempts; attempt++ {
		time.Sleep(delay)
		delay *= 2

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
		if err != nil {
			slog.Warn("reconnect attempt failed", "tag", "client", "attempt", attempt, "err", err)
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		go c.readLoop(conn)

		if matchID != "" {
			ctx, cancel := context.WithTimeout(context.Background(), c.ackTimeout())
			_, err = c.JoinMatch(ctx, matchID, displayName)
			cancel()
			if err != nil {
				slog.Warn("rejoin after reconnect failed", "tag", "client", "err", err)
			}
		}
		return
	}
	slog.Error("giving up reconnecting", "tag", "client", "attempts", reconnectAttempts)
}

func cloneMatch(m match.Match) match.Match {
	out := m
	out.State.Revealed = copyBoolMap(m.State.Revealed)
	out.State.ShowAnswer = copyBoolMap(m.State.ShowAnswer)
	out.State.PlayerScores = append([]int(nil), m.State.PlayerScores...)
	out.State.TeamScores = append([]int(nil), m.State.TeamScores...)
	out.State.PlayerNames = append([]string(nil), m.State.PlayerNames...)
	out.State.PlayerImages = append([]*string(nil), m.State.PlayerImages...)
	out.Players = append([]match.Participant(nil), m.Players...)
	out.Streams = make(map[int]string, len(m.Streams))
	for k, v := range m.Streams {
		out.Streams[k] = v
	}
	return out
}

func copyBoolMap(src map[string]bool) map[string]bool {
	dst := make(map[string]bool, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
