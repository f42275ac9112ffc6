package match

import (
	"errors"
	"strings"
	"testing"

	"streamer-quiz-server/matcherrors"
)

func boolMap(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

func TestStateApplyReplacesPresentKeyWholesale(t *testing.T) {
	s := NewState()
	if err := s.Apply(StatePatch{Revealed: boolMap("B-1")}, 0); err != nil {
		t.Fatalf("apply: %v", err)
	}
	// A later patch that carries revealed replaces the map wholesale:
	// last full sub-object wins, B-1 is lost.
	if err := s.Apply(StatePatch{Revealed: boolMap("A-0")}, 0); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if s.Revealed["B-1"] {
		t.Error("B-1 should be gone after a wholesale replacement")
	}
	if !s.Revealed["A-0"] {
		t.Error("A-0 should be revealed")
	}
}

func TestStateApplyLeavesAbsentKeysUntouched(t *testing.T) {
	s := NewState()
	if err := s.Apply(StatePatch{Revealed: boolMap("A-0")}, 0); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.Apply(StatePatch{ShowAnswer: boolMap("A-0")}, 0); err != nil {
		t.Fatalf("apply: %v", err)
	}
	// Both top-level keys persist independently.
	if !s.Revealed["A-0"] {
		t.Error("revealed must survive a patch that only carries showAnswer")
	}
	if !s.ShowAnswer["A-0"] {
		t.Error("showAnswer should be set")
	}
}

func TestStateApplyPrunesShowAnswerForHiddenCells(t *testing.T) {
	s := NewState()
	if err := s.Apply(StatePatch{ShowAnswer: boolMap("A-0")}, 0); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if s.ShowAnswer["A-0"] {
		t.Error("showAnswer must never be true for an unrevealed cell")
	}

	// Replacing revealed with a map missing the cell prunes the orphan too.
	if err := s.Apply(StatePatch{Revealed: boolMap("A-0")}, 0); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.Apply(StatePatch{ShowAnswer: boolMap("A-0")}, 0); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.Apply(StatePatch{Revealed: boolMap("B-1")}, 0); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if s.ShowAnswer["A-0"] {
		t.Error("showAnswer for A-0 must be pruned once A-0 is no longer revealed")
	}
}

func TestStateApplyRejectsWrongSequenceLengths(t *testing.T) {
	s := NewState()
	short := []int{1, 2, 3}
	err := s.Apply(StatePatch{PlayerScores: &short}, 0)
	if err == nil {
		t.Fatal("expected error for wrong playerScores length")
	}
	if s.PlayerScores[0] != 0 {
		t.Error("rejected patch must not mutate state")
	}
}

func TestStateApplyRejectsBlankNames(t *testing.T) {
	s := NewState()
	names := []string{"Mo", "  ", "c", "d", "e", "f", "g", "h"}
	err := s.Apply(StatePatch{PlayerNames: &names}, 0)
	if !errors.Is(err, matcherrors.ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
	if s.PlayerNames[0] != "Player 1" {
		t.Error("rejected patch must not mutate names")
	}
}

func TestStateApplyTrimsNames(t *testing.T) {
	s := NewState()
	names := []string{" Mo ", "b", "c", "d", "e", "f", "g", "h"}
	if err := s.Apply(StatePatch{PlayerNames: &names}, 0); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if s.PlayerNames[0] != "Mo" {
		t.Errorf("expected trimmed name, got %q", s.PlayerNames[0])
	}
}

func TestStateApplyRejectsOversizedImages(t *testing.T) {
	s := NewState()
	big := strings.Repeat("x", 100)
	images := make([]*string, PlayerSlots)
	images[2] = &big
	err := s.Apply(StatePatch{PlayerImages: &images}, 50)
	if !errors.Is(err, matcherrors.ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}
	if s.PlayerImages[2] != nil {
		t.Error("rejected patch must not store the image")
	}
}

func TestStateResetClearsBoardOnly(t *testing.T) {
	s := NewState()
	scores := []int{100, 0, 0, 0, 0, 0, 0, 0}
	if err := s.Apply(StatePatch{Revealed: boolMap("A-0"), PlayerScores: &scores}, 0); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.Apply(StatePatch{ShowAnswer: boolMap("A-0")}, 0); err != nil {
		t.Fatalf("apply: %v", err)
	}

	s.Reset()

	if len(s.Revealed) != 0 || len(s.ShowAnswer) != 0 {
		t.Error("reset must clear revealed and showAnswer")
	}
	if s.PlayerScores[0] != 100 {
		t.Error("reset must not touch scores")
	}
}

func TestConfigApplyPartial(t *testing.T) {
	c := DefaultConfig()
	theme := ThemeHalloween
	if err := c.Apply(ConfigPatch{Theme: &theme}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if c.Theme != ThemeHalloween {
		t.Error("theme should be updated")
	}
	if c.PlayerCount != 4 || c.TeamCount != 2 {
		t.Error("absent fields must keep their values")
	}
}

func TestConfigApplyValidation(t *testing.T) {
	c := DefaultConfig()
	bad := 9
	if err := c.Apply(ConfigPatch{PlayerCount: &bad}); err == nil {
		t.Error("playerCount 9 must be rejected")
	}
	badTheme := Theme("spooky")
	if err := c.Apply(ConfigPatch{Theme: &badTheme}); err == nil {
		t.Error("unknown theme must be rejected")
	}
	if c != DefaultConfig() {
		t.Error("rejected patches must not mutate config")
	}
}
