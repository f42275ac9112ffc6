package client

import (
	"time"

	"streamer-quiz-server/match"
)

// MatchUpdate mirrors the match record as it arrives in a matchUpdate
// broadcast, with every block optional. Pointer fields distinguish
// "absent from the payload" from "present but empty", which is what the
// merge contract is built on: absent fields must not clobber local state.
type MatchUpdate struct {
	ID               string               `json:"id"`
	HostConnectionID string               `json:"hostConnectionId"`
	Config           *match.ConfigPatch   `json:"config"`
	State            *match.StatePatch    `json:"state"`
	Players          *[]match.Participant `json:"players"`
	Streams          map[int]string       `json:"streams"`
	CreatedAt        *time.Time           `json:"createdAt"`
}

// Reconcile merges an inbound authoritative update into the local match
// mirror. Only fields present in the payload are written; everything the
// server omitted keeps its current local value (a guest must not reset
// host-only settings before the host has sent a config at all).
//
// Values are taken as absolutes, never re-applied as deltas, so a
// client's own echoed broadcast is idempotent over its optimistic state.
func Reconcile(local *match.Match, u MatchUpdate) {
	if u.ID != "" {
		local.ID = u.ID
	}
	if u.HostConnectionID != "" {
		local.HostConnectionID = u.HostConnectionID
	}
	if u.CreatedAt != nil {
		local.CreatedAt = *u.CreatedAt
	}
	if u.Config != nil {
		mergeConfig(&local.Config, *u.Config)
	}
	if u.State != nil {
		mergeState(&local.State, *u.State)
	}
	if u.Players != nil {
		local.Players = *u.Players
	}
	if u.Streams != nil {
		local.Streams = u.Streams
	}
}

// mergeConfig overwrites only the config fields present in the payload.
// No validation: the server copy is authoritative.
func mergeConfig(c *match.Config, p match.ConfigPatch) {
	if p.Theme != nil {
		c.Theme = *p.Theme
	}
	if p.TeamMode != nil {
		c.TeamMode = *p.TeamMode
	}
	if p.PlayerCount != nil {
		c.PlayerCount = *p.PlayerCount
	}
	if p.TeamCount != nil {
		c.TeamCount = *p.TeamCount
	}
	if p.PlayersPerTeam != nil {
		c.PlayersPerTeam = *p.PlayersPerTeam
	}
}

// mergeState replaces each present top-level key wholesale, matching the
// server's "last full sub-object wins" semantics.
func mergeState(s *match.State, p match.StatePatch) {
	if p.Revealed != nil {
		s.Revealed = p.Revealed
	}
	if p.ShowAnswer != nil {
		s.ShowAnswer = p.ShowAnswer
	}
	if p.PlayerScores != nil {
		s.PlayerScores = append([]int(nil), *p.PlayerScores...)
	}
	if p.TeamScores != nil {
		s.TeamScores = append([]int(nil), *p.TeamScores...)
	}
	if p.PlayerNames != nil {
		s.PlayerNames = append([]string(nil), *p.PlayerNames...)
	}
	if p.PlayerImages != nil {
		s.PlayerImages = append([]*string(nil), *p.PlayerImages...)
	}
}
