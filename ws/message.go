package ws

import (
	"encoding/json"

	"streamer-quiz-server/match"
)

// InboundEnvelope is the generic envelope for all client-to-server
// messages. The Type field is used for routing; Raw holds the full JSON
// payload.
type InboundEnvelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements custom unmarshaling to capture the raw payload.
func (e *InboundEnvelope) UnmarshalJSON(data []byte) error {
	type typeOnly struct {
		Type string `json:"type"`
	}
	var t typeOnly
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	e.Type = t.Type
	e.Raw = json.RawMessage(data)
	return nil
}

// --- Client-to-Server message payloads ---

// CreateMatchMsg asks the server to create a match. Config is optional;
// present fields are applied on top of the default setup. DisplayName is
// the host's name on the participant list (optional).
type CreateMatchMsg struct {
	Type        string             `json:"type"`
	Config      *match.ConfigPatch `json:"config,omitempty"`
	DisplayName string             `json:"displayName,omitempty"`
}

// JoinMatchMsg asks to join an existing match by its shareable id.
type JoinMatchMsg struct {
	Type        string `json:"type"`
	MatchID     string `json:"matchId"`
	DisplayName string `json:"displayName"`
}

// UpdateConfigMsg merges the present config fields into the match config.
type UpdateConfigMsg struct {
	Type    string            `json:"type"`
	MatchID string            `json:"matchId"`
	Config  match.ConfigPatch `json:"config"`
}

// UpdateGameStateMsg merges the present top-level state keys into the
// match state; each present key replaces the stored value wholesale.
type UpdateGameStateMsg struct {
	Type    string           `json:"type"`
	MatchID string           `json:"matchId"`
	State   match.StatePatch `json:"state"`
}

// ChangeScoreMsg adds Delta to one player or team score slot. Exactly one
// of PlayerID and TeamID should be set.
type ChangeScoreMsg struct {
	Type     string `json:"type"`
	MatchID  string `json:"matchId"`
	PlayerID *int   `json:"playerId,omitempty"`
	TeamID   *int   `json:"teamId,omitempty"`
	Delta    int    `json:"delta"`
}

// ResetBoardMsg clears all revealed cells and shown answers.
type ResetBoardMsg struct {
	Type    string `json:"type"`
	MatchID string `json:"matchId"`
}

// AdvertiseStreamMsg records that this connection starts (or stops)
// broadcasting webcam video for a player slot.
type AdvertiseStreamMsg struct {
	Type    string `json:"type"`
	MatchID string `json:"matchId"`
	Slot    int    `json:"slot"`
	Active  bool   `json:"active"`
}

// --- Server-to-Client messages ---

// ErrorMsg is sent to the issuing connection when an intent is rejected.
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// CreateMatchResultMsg is the caller-only acknowledgment of createMatch.
type CreateMatchResultMsg struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	MatchID string `json:"matchId,omitempty"`
	Error   string `json:"error,omitempty"`
}
