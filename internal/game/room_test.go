package game

import (
	"errors"
	"sync"
	"testing"
	"time"

	"pong-platform/backend/internal/models"
)

func TestRoomLifecycleStatuses(t *testing.T) {
	r := NewRoom(Config{ID: 1, Mode: models.ModePublic, P1: Player{UserID: 1}})
	if r.Status() != models.StatusWaiting {
		t.Fatalf("status = %s, want WAITING", r.Status())
	}

	if err := r.SeatPlayer2(Player{UserID: 2}); err != nil {
		t.Fatalf("SeatPlayer2: %v", err)
	}
	if err := r.SeatPlayer2(Player{UserID: 3}); err == nil {
		t.Fatal("seated a third player")
	}

	if !r.MarkStarting() {
		t.Fatal("MarkStarting failed on WAITING room")
	}
	if r.MarkStarting() {
		t.Fatal("MarkStarting succeeded twice")
	}
	if !r.Cancel() {
		t.Fatal("Cancel failed on STARTING room")
	}
	if r.Status() != models.StatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", r.Status())
	}
}

func TestCancelledRoomDoesNotStart(t *testing.T) {
	r := NewRoom(Config{ID: 1, Mode: models.ModePublic, P1: Player{UserID: 1}})
	r.SeatPlayer2(Player{UserID: 2})
	r.MarkStarting()
	r.Cancel()

	r.Start()

	if r.Status() != models.StatusCancelled {
		t.Fatalf("status = %s, cancelled room came alive", r.Status())
	}
}

func TestInputRejectsStrangers(t *testing.T) {
	r := newRunningRoom(t, Config{})

	if err := r.ApplyInput(99, DirUp, 0); !errors.Is(err, ErrNotAPlayer) {
		t.Fatalf("err = %v, want ErrNotAPlayer", err)
	}
	if err := r.ApplyInput(1, DirUp, 0); err != nil {
		t.Fatalf("player input rejected: %v", err)
	}
}

func TestInputRejectedBeforeStart(t *testing.T) {
	r := NewRoom(Config{ID: 1, Mode: models.ModePublic, P1: Player{UserID: 1}})
	if err := r.ApplyInput(1, DirUp, 0); !errors.Is(err, ErrNotInProgress) {
		t.Fatalf("err = %v, want ErrNotInProgress", err)
	}
}

func TestLocalModeRoutesBothPaddles(t *testing.T) {
	r := newRunningRoom(t, Config{Mode: models.ModeLocal, P1: Player{UserID: 5, Name: "solo"}})
	r.metaMu.Lock()
	r.p2 = Player{UserID: 5, Name: "solo (P2)"}
	r.metaMu.Unlock()

	if err := r.ApplyInput(5, DirUp, 1); err != nil {
		t.Fatalf("paddle 1 input: %v", err)
	}
	if err := r.ApplyInput(5, DirDown, 2); err != nil {
		t.Fatalf("paddle 2 input: %v", err)
	}
	if err := r.ApplyInput(5, DirUp, 3); !errors.Is(err, ErrNotAPlayer) {
		t.Fatalf("err = %v, want ErrNotAPlayer for paddle 3", err)
	}
	if err := r.ApplyInput(6, DirUp, 1); !errors.Is(err, ErrNotAPlayer) {
		t.Fatalf("err = %v, want ErrNotAPlayer for stranger", err)
	}

	// Drain the mailbox and confirm the directions landed on both sides.
	for len(r.mailbox) > 0 {
		(<-r.mailbox)()
	}
	if r.dirL != DirUp || r.dirR != DirDown {
		t.Fatalf("directions = %d/%d, want up/down", r.dirL, r.dirR)
	}
}

func TestForfeitEndsRunningGame(t *testing.T) {
	var mu sync.Mutex
	var result *Result
	done := make(chan struct{})

	r := NewRoom(Config{
		ID:   7,
		Mode: models.ModePublic,
		P1:   Player{UserID: 1, Name: "alice"},
		Seed: 3,
		OnEnd: func(res *Result) {
			mu.Lock()
			result = res
			mu.Unlock()
			close(done)
		},
	})
	r.SeatPlayer2(Player{UserID: 2, Name: "bob"})
	r.MarkStarting()
	r.Start()

	if err := r.Forfeit(2); err != nil {
		t.Fatalf("Forfeit: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("game did not end after forfeit")
	}

	mu.Lock()
	defer mu.Unlock()
	if !result.Forfeit {
		t.Fatal("result not marked forfeit")
	}
	if result.WinnerID != 1 {
		t.Fatalf("winner = %d, want 1", result.WinnerID)
	}
	if result.P1Score != WinScore {
		t.Fatalf("p1Score = %d, want %d", result.P1Score, WinScore)
	}

	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("tick loop still running after finish")
	}
}

func TestSpectatorsOnlyDuringPlay(t *testing.T) {
	r := NewRoom(Config{ID: 1, Mode: models.ModePublic, P1: Player{UserID: 1}})
	if err := r.AddSpectator(9); err == nil {
		t.Fatal("spectating allowed before start")
	}

	running := newRunningRoom(t, Config{})
	if err := running.AddSpectator(9); err != nil {
		t.Fatalf("AddSpectator: %v", err)
	}
	running.RemoveSpectator(9)
}

func TestSnapshotTracksSimulation(t *testing.T) {
	r := newRunningRoom(t, Config{})
	r.ballX, r.ballY = 33, 66
	r.p1Score = 4
	r.publishSnapshot()

	snap := r.Snapshot()
	if snap.BallX != 33 || snap.BallY != 66 {
		t.Fatalf("snapshot ball = (%f, %f), want (33, 66)", snap.BallX, snap.BallY)
	}
	if snap.P1Score != 4 {
		t.Fatalf("snapshot p1Score = %d, want 4", snap.P1Score)
	}
	if snap.GameID != 42 {
		t.Fatalf("snapshot gameId = %d, want 42", snap.GameID)
	}
}
