package tournament

import (
	"testing"

	"pong-platform/backend/internal/models"
)

func TestBracketSizeFor(t *testing.T) {
	cases := map[int]int{1: 2, 2: 2, 3: 4, 4: 4, 5: 8, 8: 8, 9: 16, 32: 32}
	for players, want := range cases {
		if got := bracketSizeFor(players); got != want {
			t.Errorf("bracketSizeFor(%d) = %d, want %d", players, got, want)
		}
	}
}

func TestRoundsFor(t *testing.T) {
	cases := map[int]int{2: 1, 4: 2, 8: 3, 16: 4, 32: 5}
	for size, want := range cases {
		if got := roundsFor(size); got != want {
			t.Errorf("roundsFor(%d) = %d, want %d", size, got, want)
		}
	}
}

func TestNextSlot(t *testing.T) {
	cases := []struct {
		match  int
		nextN  int
		wantP1 bool
	}{
		{1, 1, true},
		{2, 1, false},
		{3, 2, true},
		{4, 2, false},
		{7, 4, true},
	}
	for _, c := range cases {
		nextN, asP1 := nextSlot(c.match)
		if nextN != c.nextN || asP1 != c.wantP1 {
			t.Errorf("nextSlot(%d) = (%d, %v), want (%d, %v)", c.match, nextN, asP1, c.nextN, c.wantP1)
		}
	}
}

func players(ids ...int64) []models.TournamentPlayer {
	ps := make([]models.TournamentPlayer, 0, len(ids))
	for _, id := range ids {
		ps = append(ps, models.TournamentPlayer{TournamentID: 1, UserID: id})
	}
	return ps
}

func slot(t *testing.T, matches []models.TournamentMatch, round, n int) *models.TournamentMatch {
	t.Helper()
	m := findSlot(matches, round, n)
	if m == nil {
		t.Fatalf("missing slot R%d M%d", round, n)
	}
	return m
}

func TestGenerateBracketFullField(t *testing.T) {
	tn := &models.Tournament{ID: 1}
	matches := generateBracket(tn, players(10, 20, 30, 40))

	if len(matches) != 3 {
		t.Fatalf("got %d matches, want 3", len(matches))
	}

	m1 := slot(t, matches, 1, 1)
	m2 := slot(t, matches, 1, 2)
	if m1.Status != models.MatchReady || m2.Status != models.MatchReady {
		t.Fatal("round 1 matches not ready")
	}
	if *m1.P1ID != 10 || *m1.P2ID != 20 || *m2.P1ID != 30 || *m2.P2ID != 40 {
		t.Fatal("seeding order not respected")
	}

	final := slot(t, matches, 2, 1)
	if final.Status != models.MatchPending || final.P1ID != nil || final.P2ID != nil {
		t.Fatal("final not pending and empty")
	}

	if m1.MatchID != "T1-R1-M1" || final.MatchID != "T1-R2-M1" {
		t.Fatalf("match ids = %s, %s", m1.MatchID, final.MatchID)
	}
}

func TestGenerateBracketWithBye(t *testing.T) {
	tn := &models.Tournament{ID: 1}
	matches := generateBracket(tn, players(10, 20, 30))

	bye := slot(t, matches, 1, 2)
	if bye.Status != models.MatchCompleted {
		t.Fatalf("bye status = %s, want completed", bye.Status)
	}
	if bye.WinnerID == nil || *bye.WinnerID != 30 {
		t.Fatal("bye winner not the solo player")
	}

	final := slot(t, matches, 2, 1)
	if final.P2ID == nil || *final.P2ID != 30 {
		t.Fatal("bye winner not advanced into the final")
	}
	if final.Status != models.MatchPending {
		t.Fatalf("final status = %s, want pending until R1 resolves", final.Status)
	}
}

func TestGenerateBracketWithEmptySlots(t *testing.T) {
	tn := &models.Tournament{ID: 1}
	// Five players in a bracket of eight: one bye and one fully empty slot.
	matches := generateBracket(tn, players(1, 2, 3, 4, 5))

	if len(matches) != 7 {
		t.Fatalf("got %d matches, want 7", len(matches))
	}

	hole := slot(t, matches, 1, 4)
	if hole.Status != models.MatchCompleted || hole.WinnerID != nil {
		t.Fatal("empty slot not closed out")
	}

	// The bye winner keeps advancing through the dead quarter.
	semi := slot(t, matches, 2, 2)
	if semi.Status != models.MatchCompleted || semi.WinnerID == nil || *semi.WinnerID != 5 {
		t.Fatalf("bye winner did not cascade: status=%s", semi.Status)
	}

	final := slot(t, matches, 3, 1)
	if final.P2ID == nil || *final.P2ID != 5 {
		t.Fatal("cascaded winner not seated in the final")
	}
	if final.Status != models.MatchPending {
		t.Fatal("final must wait for the live half of the bracket")
	}

	// The live half still plays normally.
	if slot(t, matches, 1, 1).Status != models.MatchReady {
		t.Fatal("live quarter not ready")
	}
	if slot(t, matches, 2, 1).Status != models.MatchPending {
		t.Fatal("live semi should wait for round 1")
	}
}

func TestGenerateBracketTwoPlayers(t *testing.T) {
	tn := &models.Tournament{ID: 3}
	matches := generateBracket(tn, players(7, 8))

	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	final := matches[0]
	if final.Status != models.MatchReady || *final.P1ID != 7 || *final.P2ID != 8 {
		t.Fatal("two-player bracket must be a single ready final")
	}
}
