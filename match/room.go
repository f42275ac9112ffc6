package match

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"streamer-quiz-server/matcherrors"
	"streamer-quiz-server/wsutil"
)

// ActionType enumerates the kinds of intents a room can process.
type ActionType int

const (
	ActionJoin ActionType = iota
	ActionLeave
	ActionUpdateConfig
	ActionUpdateState
	ActionChangeScore
	ActionResetBoard
	ActionAdvertiseStream
	ActionGetView // reflect internal state without data races (used by tests and the health surface)
	ActionExpire  // internal: fired when the empty-room timer expires
)

// Action represents one intent sent into the room's action channel.
// ReplyTo is the issuing connection's send channel; validation errors
// and join acks go there and only there.
type Action struct {
	Type         ActionType
	ConnectionID string
	DisplayName  string
	Send         chan []byte // join: where this member receives broadcasts
	ReplyTo      chan []byte

	Config ConfigPatch
	State  StatePatch

	PlayerID *int
	TeamID   *int
	Delta    int

	Slot   int
	Active bool

	ViewReply chan Match
}

// MatchUpdateMsg is the full-record broadcast sent to every room member
// after a mutation. Represented as an explicit "replace whole room
// state" message so a diff-based protocol could be substituted later
// without changing the client's merge contract.
type MatchUpdateMsg struct {
	Type  string `json:"type"`
	Match *Match `json:"match"`
}

// JoinResultMsg is the caller-only acknowledgment of a joinMatch intent.
type JoinResultMsg struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Match   *Match `json:"match,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Room owns one Match. A single goroutine (Run) consumes Actions and is
// the only writer of the match record, so concurrent intents against the
// same id are linearized and every broadcast reflects a fully applied
// mutation.
type Room struct {
	Match   *Match
	Actions chan Action
	Done    chan struct{}

	maxImageBytes int
	emptyTTL      time.Duration

	// onExpired is called (from the room goroutine) when the room has had
	// zero members for emptyTTL; the owner removes the id from its registry.
	onExpired func(id string)

	members      map[string]chan []byte
	expireCancel chan struct{}
}

// NewRoom creates a room around m. emptyTTL <= 0 disables expiry.
func NewRoom(m *Match, maxImageBytes int, emptyTTL time.Duration, onExpired func(id string)) *Room {
	return &Room{
		Match:         m,
		Actions:       make(chan Action, 16),
		Done:          make(chan struct{}),
		maxImageBytes: maxImageBytes,
		emptyTTL:      emptyTTL,
		onExpired:     onExpired,
		members:       make(map[string]chan []byte),
	}
}

// Run is the room's main loop. It processes actions sequentially and
// should be run as a goroutine. It returns when the room expires.
func (r *Room) Run() {
	defer close(r.Done)

	// A room starts empty; if nobody ever joins it still gets cleaned up.
	r.startExpireTimer()

	for action := range r.Actions {
		switch action.Type {
		case ActionJoin:
			r.handleJoin(action)
		case ActionLeave:
			r.handleLeave(action.ConnectionID)
		case ActionUpdateConfig:
			r.handleUpdateConfig(action)
		case ActionUpdateState:
			r.handleUpdateState(action)
		case ActionChangeScore:
			r.handleChangeScore(action)
		case ActionResetBoard:
			r.handleResetBoard(action)
		case ActionAdvertiseStream:
			r.handleAdvertiseStream(action)
		case ActionGetView:
			action.ViewReply <- r.snapshot()
		case ActionExpire:
			// A join may have raced the timer through the action queue.
			if len(r.members) > 0 {
				continue
			}
			slog.Info("match expired", "tag", "match", "id", r.Match.ID)
			if r.onExpired != nil {
				r.onExpired(r.Match.ID)
			}
			return
		}
	}
}

func (r *Room) handleJoin(a Action) {
	r.cancelExpireTimer()

	name := strings.TrimSpace(a.DisplayName)
	if name == "" {
		name = fmt.Sprintf("PLAYER %d", len(r.Match.Players)+1)
	}

	if _, rejoining := r.members[a.ConnectionID]; rejoining {
		// Same connection joining twice: refresh channel and name only.
		r.members[a.ConnectionID] = a.Send
		for i := range r.Match.Players {
			if r.Match.Players[i].ConnectionID == a.ConnectionID {
				r.Match.Players[i].DisplayName = name
			}
		}
	} else {
		r.members[a.ConnectionID] = a.Send
		r.Match.Players = append(r.Match.Players, Participant{
			ConnectionID: a.ConnectionID,
			DisplayName:  name,
			JoinedAt:     time.Now(),
		})
	}

	slog.Info("participant joined", "tag", "match", "id", r.Match.ID, "name", name, "members", len(r.members))

	if a.ReplyTo != nil {
		data, err := json.Marshal(JoinResultMsg{Type: "joinMatchResult", Success: true, Match: r.Match})
		if err != nil {
			slog.Error("marshaling join result", "tag", "match", "err", err)
		} else {
			wsutil.SafeSend(a.ReplyTo, data)
		}
	}
	r.broadcast()
}

func (r *Room) handleLeave(connectionID string) {
	if _, ok := r.members[connectionID]; !ok {
		return // no-op for rooms that do not contain the connection
	}
	delete(r.members, connectionID)

	players := r.Match.Players[:0]
	for _, p := range r.Match.Players {
		if p.ConnectionID != connectionID {
			players = append(players, p)
		}
	}
	r.Match.Players = players

	for slot, owner := range r.Match.Streams {
		if owner == connectionID {
			delete(r.Match.Streams, slot)
		}
	}

	slog.Info("participant left", "tag", "match", "id", r.Match.ID, "members", len(r.members))

	// Departure does not delete the match; remaining members keep playing.
	r.broadcast()

	if len(r.members) == 0 {
		r.startExpireTimer()
	}
}

func (r *Room) handleUpdateConfig(a Action) {
	if !r.isMember(a.ConnectionID) {
		r.sendError(a.ReplyTo, matcherrors.ErrNotInMatch.Error())
		return
	}
	if err := r.Match.Config.Apply(a.Config); err != nil {
		r.sendError(a.ReplyTo, err.Error())
		return
	}
	r.broadcast()
}

func (r *Room) handleUpdateState(a Action) {
	if !r.isMember(a.ConnectionID) {
		r.sendError(a.ReplyTo, matcherrors.ErrNotInMatch.Error())
		return
	}
	if err := r.Match.State.Apply(a.State, r.maxImageBytes); err != nil {
		r.sendError(a.ReplyTo, err.Error())
		return
	}
	r.broadcast()
}

func (r *Room) handleChangeScore(a Action) {
	if !r.isMember(a.ConnectionID) {
		r.sendError(a.ReplyTo, matcherrors.ErrNotInMatch.Error())
		return
	}
	switch {
	case a.PlayerID != nil:
		idx := *a.PlayerID
		if idx < 0 || idx >= PlayerSlots {
			r.sendError(a.ReplyTo, matcherrors.ErrInvalidSlot.Error())
			return
		}
		r.Match.State.PlayerScores[idx] += a.Delta
	case a.TeamID != nil:
		idx := *a.TeamID
		if idx < 0 || idx >= TeamSlots {
			r.sendError(a.ReplyTo, matcherrors.ErrInvalidSlot.Error())
			return
		}
		r.Match.State.TeamScores[idx] += a.Delta
	default:
		r.sendError(a.ReplyTo, "changeScore requires playerId or teamId")
		return
	}
	r.broadcast()
}

func (r *Room) handleResetBoard(a Action) {
	if !r.isMember(a.ConnectionID) {
		r.sendError(a.ReplyTo, matcherrors.ErrNotInMatch.Error())
		return
	}
	r.Match.State.Reset()
	r.broadcast()
}

func (r *Room) handleAdvertiseStream(a Action) {
	if !r.isMember(a.ConnectionID) {
		r.sendError(a.ReplyTo, matcherrors.ErrNotInMatch.Error())
		return
	}
	if a.Slot < 0 || a.Slot >= PlayerSlots {
		r.sendError(a.ReplyTo, matcherrors.ErrInvalidSlot.Error())
		return
	}
	if a.Active {
		r.Match.Streams[a.Slot] = a.ConnectionID
	} else if r.Match.Streams[a.Slot] == a.ConnectionID {
		delete(r.Match.Streams, a.Slot)
	}
	r.broadcast()
}

func (r *Room) isMember(connectionID string) bool {
	_, ok := r.members[connectionID]
	return ok
}

// broadcast marshals the full match record once and fans it out to every
// member. Sends are non-blocking; a member whose buffer is full misses
// this frame and catches up on the next mutation.
func (r *Room) broadcast() {
	data, err := json.Marshal(MatchUpdateMsg{Type: "matchUpdate", Match: r.Match})
	if err != nil {
		slog.Error("marshaling match update", "tag", "match", "err", err)
		return
	}
	for _, ch := range r.members {
		wsutil.SafeSend(ch, data)
	}
}

func (r *Room) sendError(ch chan []byte, message string) {
	if ch == nil {
		return
	}
	msg := map[string]string{
		"type":    "error",
		"message": message,
	}
	data, _ := json.Marshal(msg)
	wsutil.SafeSend(ch, data)
}

// snapshot returns a deep copy of the match record safe to read outside
// the room goroutine.
func (r *Room) snapshot() Match {
	m := *r.Match
	m.State.Revealed = copyBoolMap(r.Match.State.Revealed)
	m.State.ShowAnswer = copyBoolMap(r.Match.State.ShowAnswer)
	m.State.PlayerScores = append([]int(nil), r.Match.State.PlayerScores...)
	m.State.TeamScores = append([]int(nil), r.Match.State.TeamScores...)
	m.State.PlayerNames = append([]string(nil), r.Match.State.PlayerNames...)
	m.State.PlayerImages = append([]*string(nil), r.Match.State.PlayerImages...)
	m.Players = append([]Participant(nil), r.Match.Players...)
	m.Streams = make(map[int]string, len(r.Match.Streams))
	for k, v := range r.Match.Streams {
		m.Streams[k] = v
	}
	return m
}

func copyBoolMap(src map[string]bool) map[string]bool {
	dst := make(map[string]bool, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// Dispatch delivers an action to the room, giving up if the room has
// already shut down. It reports whether the action was accepted.
func (r *Room) Dispatch(a Action) bool {
	select {
	case r.Actions <- a:
		return true
	case <-r.Done:
		return false
	}
}

func (r *Room) cancelExpireTimer() {
	if r.expireCancel != nil {
		close(r.expireCancel)
		r.expireCancel = nil
	}
}

// startExpireTimer arms the empty-room timer. If it fires, ActionExpire
// is sent. No-op when expiry is disabled. Cancels any existing timer first.
func (r *Room) startExpireTimer() {
	if r.emptyTTL <= 0 {
		return
	}
	r.cancelExpireTimer()
	r.expireCancel = make(chan struct{})
	cancel := r.expireCancel
	ttl := r.emptyTTL
	go func() {
		select {
		case <-time.After(ttl):
			select {
			case r.Actions <- Action{Type: ActionExpire}:
			case <-r.Done:
			}
		case <-cancel:
		}
	}()
}
