package client

import (
	"reflect"
	"testing"

	"streamer-quiz-server/match"
)

func TestReconcileAbsentConfigLeavesLocalUntouched(t *testing.T) {
	local := match.New("", "")
	theme := match.ThemeChristmas
	if err := local.Config.Apply(match.ConfigPatch{Theme: &theme}); err != nil {
		t.Fatalf("setup: %v", err)
	}

	Reconcile(local, MatchUpdate{ID: "AB3XY7"}) // no config block at all

	if local.Config.Theme != match.ThemeChristmas {
		t.Error("an update without config must not reset local config")
	}
	if local.ID != "AB3XY7" {
		t.Error("present fields must be applied")
	}
}

func TestReconcileMergesOnlyPresentConfigFields(t *testing.T) {
	local := match.New("", "")
	teamMode := true
	Reconcile(local, MatchUpdate{Config: &match.ConfigPatch{TeamMode: &teamMode}})

	if !local.Config.TeamMode {
		t.Error("teamMode should be merged")
	}
	if local.Config.PlayerCount != 4 {
		t.Error("absent playerCount must keep its local value")
	}
}

func TestReconcileReplacesPresentStateKeysWholesale(t *testing.T) {
	local := match.New("", "")
	local.State.Revealed["B-1"] = true
	local.State.ShowAnswer["B-1"] = true

	Reconcile(local, MatchUpdate{State: &match.StatePatch{
		Revealed: map[string]bool{"A-0": true},
	}})

	if local.State.Revealed["B-1"] {
		t.Error("a present revealed key replaces the local map wholesale")
	}
	if !local.State.Revealed["A-0"] {
		t.Error("A-0 should be revealed")
	}
	if !local.State.ShowAnswer["B-1"] {
		t.Error("absent showAnswer must keep its local value")
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	local := match.New("", "")
	scores := []int{100, 0, 0, 0, 0, 0, 0, 0}
	update := MatchUpdate{State: &match.StatePatch{PlayerScores: &scores}}

	// An echoed broadcast reconciles to absolute values; applying it
	// twice must not double the optimistically applied delta.
	Reconcile(local, update)
	Reconcile(local, update)

	if local.State.PlayerScores[0] != 100 {
		t.Errorf("expected 100 after double reconcile, got %d", local.State.PlayerScores[0])
	}
}

func TestReconcilePlayersAndStreams(t *testing.T) {
	local := match.New("", "")
	players := []match.Participant{{ConnectionID: "c1", DisplayName: "Mo"}}
	Reconcile(local, MatchUpdate{
		Players: &players,
		Streams: map[int]string{3: "c1"},
	})

	if !reflect.DeepEqual(local.Players, players) {
		t.Errorf("players not replaced: %v", local.Players)
	}
	if local.Streams[3] != "c1" {
		t.Errorf("streams not replaced: %v", local.Streams)
	}

	// A later update without players keeps them.
	Reconcile(local, MatchUpdate{})
	if len(local.Players) != 1 {
		t.Error("absent players must keep local value")
	}
}
