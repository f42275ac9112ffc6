package match

import (
	"fmt"
	"strings"
	"time"

	"streamer-quiz-server/matcherrors"
)

const (
	// PlayerSlots is the number of fixed player positions on the board.
	PlayerSlots = 8
	// TeamSlots is the number of fixed team positions.
	TeamSlots = 4
)

// Theme is the visual theme shared with all participants.
type Theme string

const (
	ThemeNormal    Theme = "normal"
	ThemeHalloween Theme = "halloween"
	ThemeChristmas Theme = "christmas"
)

func (t Theme) valid() bool {
	switch t {
	case ThemeNormal, ThemeHalloween, ThemeChristmas:
		return true
	}
	return false
}

// Config is the pre-game setup chosen by the host and broadcast to
// joiners verbatim. Mutated at most once, before play begins.
type Config struct {
	Theme          Theme `json:"theme"`
	TeamMode       bool  `json:"teamMode"`
	PlayerCount    int   `json:"playerCount"`
	TeamCount      int   `json:"teamCount"`
	PlayersPerTeam int   `json:"playersPerTeam"`
}

// DefaultConfig returns the setup the host screen starts from.
func DefaultConfig() Config {
	return Config{
		Theme:          ThemeNormal,
		TeamMode:       false,
		PlayerCount:    4,
		TeamCount:      2,
		PlayersPerTeam: 2,
	}
}

// ConfigPatch carries only the config fields present in an updateConfig
// intent. Absent fields leave the stored value untouched.
type ConfigPatch struct {
	Theme          *Theme `json:"theme,omitempty"`
	TeamMode       *bool  `json:"teamMode,omitempty"`
	PlayerCount    *int   `json:"playerCount,omitempty"`
	TeamCount      *int   `json:"teamCount,omitempty"`
	PlayersPerTeam *int   `json:"playersPerTeam,omitempty"`
}

// Apply merges the present fields of p into c. Validation happens before
// any field is written, so a rejected patch leaves c unchanged.
func (c *Config) Apply(p ConfigPatch) error {
	if p.Theme != nil && !p.Theme.valid() {
		return fmt.Errorf("unknown theme %q", *p.Theme)
	}
	if p.PlayerCount != nil && (*p.PlayerCount < 1 || *p.PlayerCount > PlayerSlots) {
		return fmt.Errorf("playerCount %d out of range 1..%d", *p.PlayerCount, PlayerSlots)
	}
	if p.TeamCount != nil && (*p.TeamCount < 2 || *p.TeamCount > TeamSlots) {
		return fmt.Errorf("teamCount %d out of range 2..%d", *p.TeamCount, TeamSlots)
	}
	if p.PlayersPerTeam != nil && (*p.PlayersPerTeam < 1 || *p.PlayersPerTeam > 2) {
		return fmt.Errorf("playersPerTeam %d out of range 1..2", *p.PlayersPerTeam)
	}

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
	return nil
}

// State is the mutable shared game state. Cell keys have the form
// "<category>-<rowIndex>". All sequences have a fixed length; index i
// denotes the same logical slot for the lifetime of the match.
type State struct {
	Revealed     map[string]bool `json:"revealed"`
	ShowAnswer   map[string]bool `json:"showAnswer"`
	PlayerScores []int           `json:"playerScores"`
	TeamScores   []int           `json:"teamScores"`
	PlayerNames  []string        `json:"playerNames"`
	PlayerImages []*string       `json:"playerImages"`
}

// NewState returns the default state of a freshly created match:
// nothing revealed, all scores zero, numbered placeholder names.
func NewState() State {
	names := make([]string, PlayerSlots)
	for i := range names {
		names[i] = fmt.Sprintf("Player %d", i+1)
	}
	return State{
		Revealed:     make(map[string]bool),
		ShowAnswer:   make(map[string]bool),
		PlayerScores: make([]int, PlayerSlots),
		TeamScores:   make([]int, TeamSlots),
		PlayerNames:  names,
		PlayerImages: make([]*string, PlayerSlots),
	}
}

// StatePatch carries only the top-level state keys present in an
// updateGameState intent. Each present key replaces the stored value
// wholesale ("last full sub-object wins"); keys not present are left
// untouched. Sequence pointers distinguish "absent" from "empty".
type StatePatch struct {
	Revealed     map[string]bool `json:"revealed,omitempty"`
	ShowAnswer   map[string]bool `json:"showAnswer,omitempty"`
	PlayerScores *[]int          `json:"playerScores,omitempty"`
	TeamScores   *[]int          `json:"teamScores,omitempty"`
	PlayerNames  *[]string       `json:"playerNames,omitempty"`
	PlayerImages *[]*string      `json:"playerImages,omitempty"`
}

// Apply merges p into s: every present top-level key replaces the stored
// value wholesale, absent keys stay untouched. The whole patch is
// validated before any key is written, so a rejected patch cannot leave
// s half-applied. After merging, showAnswer entries whose cell is not
// revealed are pruned, keeping showAnswer ⊆ revealed under any intent
// sequence.
func (s *State) Apply(p StatePatch, maxImageBytes int) error {
	if p.PlayerScores != nil && len(*p.PlayerScores) != PlayerSlots {
		return fmt.Errorf("playerScores must have %d entries, got %d", PlayerSlots, len(*p.PlayerScores))
	}
	if p.TeamScores != nil && len(*p.TeamScores) != TeamSlots {
		return fmt.Errorf("teamScores must have %d entries, got %d", TeamSlots, len(*p.TeamScores))
	}
	var trimmedNames []string
	if p.PlayerNames != nil {
		if len(*p.PlayerNames) != PlayerSlots {
			return fmt.Errorf("playerNames must have %d entries, got %d", PlayerSlots, len(*p.PlayerNames))
		}
		trimmedNames = make([]string, PlayerSlots)
		for i, name := range *p.PlayerNames {
			trimmed := strings.TrimSpace(name)
			if trimmed == "" {
				return fmt.Errorf("playerNames[%d]: %w", i, matcherrors.ErrEmptyName)
			}
			trimmedNames[i] = trimmed
		}
	}
	if p.PlayerImages != nil {
		if len(*p.PlayerImages) != PlayerSlots {
			return fmt.Errorf("playerImages must have %d entries, got %d", PlayerSlots, len(*p.PlayerImages))
		}
		for i, img := range *p.PlayerImages {
			if img != nil && maxImageBytes > 0 && len(*img) > maxImageBytes {
				return fmt.Errorf("playerImages[%d] is %d bytes: %w", i, len(*img), matcherrors.ErrImageTooLarge)
			}
		}
	}

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
	if trimmedNames != nil {
		s.PlayerNames = trimmedNames
	}
	if p.PlayerImages != nil {
		s.PlayerImages = append([]*string(nil), *p.PlayerImages...)
	}

	for key, shown := range s.ShowAnswer {
		if shown && !s.Revealed[key] {
			delete(s.ShowAnswer, key)
		}
	}
	return nil
}

// Reset clears the board back to fully hidden. This is the only path
// that un-reveals a cell; scores, names and images survive.
func (s *State) Reset() {
	s.Revealed = make(map[string]bool)
	s.ShowAnswer = make(map[string]bool)
}

// Participant is one connected member of a match.
type Participant struct {
	ConnectionID string    `json:"connectionId"`
	DisplayName  string    `json:"displayName"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// Match is one running quiz session: the unit the store maps ids to and
// the record broadcast in full on every mutation.
type Match struct {
	ID               string        `json:"id"`
	HostConnectionID string        `json:"hostConnectionId"`
	Config           Config        `json:"config"`
	State            State         `json:"state"`
	Players          []Participant `json:"players"`
	// Streams maps a player slot to the connection currently advertising
	// webcam video for it. The media path itself is negotiated outside
	// the protocol; only "who broadcasts which slot" is fanned out.
	Streams   map[int]string `json:"streams"`
	CreatedAt time.Time      `json:"createdAt"`
}

// New creates a Match with default state for the given id and host.
func New(id, hostConnectionID string) *Match {
	return &Match{
		ID:               id,
		HostConnectionID: hostConnectionID,
		Config:           DefaultConfig(),
		State:            NewState(),
		Players:          []Participant{},
		Streams:          make(map[int]string),
		CreatedAt:        time.Now(),
	}
}
