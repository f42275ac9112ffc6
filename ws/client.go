package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"streamer-quiz-server/match"
	"streamer-quiz-server/matcherrors"
	"streamer-quiz-server/matchid"
	"streamer-quiz-server/wsutil"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Client is a middleman between the websocket connection and the match
// rooms. ID is the connection identity participants are tracked by.
type Client struct {
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte
	ID   string

	// hostedMatchID is the id of the match this connection created, if
	// any. A connection hosts at most one live match at a time.
	hostedMatchID string
}

// ReadPump pumps messages from the websocket connection into the match
// rooms. It runs in its own goroutine per connection.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Hub.Config.MaxMessageBytes)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read", "tag", "ws", "id", c.ID, "err", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// WritePump pumps messages from the send channel to the websocket
// connection. It runs in its own goroutine per connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	var envelope InboundEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.sendError("Invalid message format.")
		return
	}

	switch envelope.Type {
	case "createMatch":
		c.handleCreateMatch(envelope.Raw)
	case "joinMatch":
		c.handleJoinMatch(envelope.Raw)
	case "updateConfig":
		c.handleUpdateConfig(envelope.Raw)
	case "updateGameState":
		c.handleUpdateGameState(envelope.Raw)
	case "changeScore":
		c.handleChangeScore(envelope.Raw)
	case "resetBoard":
		c.handleResetBoard(envelope.Raw)
	case "advertiseStream":
		c.handleAdvertiseStream(envelope.Raw)
	default:
		c.sendError("Unknown message type: " + envelope.Type)
	}
}

func (c *Client) handleCreateMatch(raw json.RawMessage) {
	var msg CreateMatchMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendCreateResult("", errors.New("invalid createMatch message"))
		return
	}

	if c.hostedMatchID != "" {
		// Only reject while the hosted match is still live.
		if _, err := c.Hub.Store.Get(c.hostedMatchID); err == nil {
			c.sendCreateResult("", matcherrors.ErrAlreadyHosting)
			return
		}
		c.hostedMatchID = ""
	}

	id, err := matchid.New(c.Hub.Store.InUse)
	if err != nil {
		c.sendCreateResult("", err)
		return
	}

	m := match.New(id, c.ID)
	if msg.Config != nil {
		if err := m.Config.Apply(*msg.Config); err != nil {
			c.sendCreateResult("", err)
			return
		}
	}

	st := c.Hub.Store
	room := match.NewRoom(m, c.Hub.Config.MaxImageBytes,
		time.Duration(c.Hub.Config.EmptyMatchTTLSec)*time.Second,
		func(expiredID string) { st.Remove(expiredID) })
	if err := st.Create(room); err != nil {
		c.sendCreateResult("", err)
		return
	}
	go room.Run()

	c.hostedMatchID = id
	slog.Info("match created", "tag", "ws", "id", id, "host", c.ID)

	// Ack first so the creator learns the id before the first broadcast.
	c.sendCreateResult(id, nil)

	room.Dispatch(match.Action{
		Type:         match.ActionJoin,
		ConnectionID: c.ID,
		DisplayName:  msg.DisplayName,
		Send:         c.Send,
	})
}

func (c *Client) handleJoinMatch(raw json.RawMessage) {
	var msg JoinMatchMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendJoinFailure("invalid joinMatch message")
		return
	}

	id := strings.ToUpper(strings.TrimSpace(msg.MatchID))
	room, err := c.Hub.Store.Get(id)
	if err != nil {
		// Strict policy: joining an unknown id fails instead of silently
		// fabricating an empty match.
		c.sendJoinFailure(err.Error())
		return
	}

	name := msg.DisplayName
	if limit := c.Hub.Config.MaxNameLength; limit > 0 {
		if runes := []rune(strings.TrimSpace(name)); len(runes) > limit {
			name = string(runes[:limit])
		}
	}

	room.Dispatch(match.Action{
		Type:         match.ActionJoin,
		ConnectionID: c.ID,
		DisplayName:  name,
		Send:         c.Send,
		ReplyTo:      c.Send,
	})
}

func (c *Client) handleUpdateConfig(raw json.RawMessage) {
	var msg UpdateConfigMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("Invalid updateConfig message.")
		return
	}
	c.dispatch(msg.MatchID, match.Action{
		Type:   match.ActionUpdateConfig,
		Config: msg.Config,
	})
}

func (c *Client) handleUpdateGameState(raw json.RawMessage) {
	var msg UpdateGameStateMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("Invalid updateGameState message.")
		return
	}
	c.dispatch(msg.MatchID, match.Action{
		Type:  match.ActionUpdateState,
		State: msg.State,
	})
}

func (c *Client) handleChangeScore(raw json.RawMessage) {
	var msg ChangeScoreMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("Invalid changeScore message.")
		return
	}
	c.dispatch(msg.MatchID, match.Action{
		Type:     match.ActionChangeScore,
		PlayerID: msg.PlayerID,
		TeamID:   msg.TeamID,
		Delta:    msg.Delta,
	})
}

func (c *Client) handleResetBoard(raw json.RawMessage) {
	var msg ResetBoardMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("Invalid resetBoard message.")
		return
	}
	c.dispatch(msg.MatchID, match.Action{Type: match.ActionResetBoard})
}

func (c *Client) handleAdvertiseStream(raw json.RawMessage) {
	var msg AdvertiseStreamMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("Invalid advertiseStream message.")
		return
	}
	c.dispatch(msg.MatchID, match.Action{
		Type:   match.ActionAdvertiseStream,
		Slot:   msg.Slot,
		Active: msg.Active,
	})
}

// dispatch routes an intent to the addressed room, filling in the
// connection identity and the caller-only reply channel.
func (c *Client) dispatch(matchID string, a match.Action) {
	room, err := c.Hub.Store.Get(strings.ToUpper(strings.TrimSpace(matchID)))
	if err != nil {
		c.sendError(err.Error())
		return
	}
	a.ConnectionID = c.ID
	a.ReplyTo = c.Send
	room.Dispatch(a)
}

func (c *Client) sendError(message string) {
	msg := ErrorMsg{Type: "error", Message: message}
	data, _ := json.Marshal(msg)
	wsutil.SafeSend(c.Send, data)
}

func (c *Client) sendCreateResult(matchID string, err error) {
	msg := CreateMatchResultMsg{Type: "createMatchResult", Success: err == nil, MatchID: matchID}
	if err != nil {
		msg.Error = err.Error()
	}
	data, _ := json.Marshal(msg)
	wsutil.SafeSend(c.Send, data)
}

func (c *Client) sendJoinFailure(message string) {
	data, _ := json.Marshal(match.JoinResultMsg{Type: "joinMatchResult", Success: false, Error: message})
	wsutil.SafeSend(c.Send, data)
}
