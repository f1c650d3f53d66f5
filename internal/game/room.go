package game

import (
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"pong-platform/backend/internal/models"
)

var (
	// ErrNotAPlayer is returned when a caller tries to drive a paddle
	// they do not own.
	ErrNotAPlayer = errors.New("NOT_A_PLAYER")
	// ErrNotInProgress is returned for gameplay operations outside
	// IN_PROGRESS.
	ErrNotInProgress = errors.New("UNAVAILABLE")
)

// Player is one side of a room. For LOCAL rooms both sides carry the same
// user id; for AI rooms one side is the reserved AI user.
type Player struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	IsAI   bool   `json:"is_ai"`
}

// TournamentLink ties a room to the bracket slot it decides.
type TournamentLink struct {
	TournamentID int64  `json:"tournament_id"`
	Round        int    `json:"round"`
	MatchID      string `json:"match_id"`
}

// GameState is the snapshot pushed to clients on every tick.
type GameState struct {
	GameID      int64   `json:"gameId"`
	P1Score     int     `json:"p1Score"`
	P2Score     int     `json:"p2Score"`
	PaddleLeft  float64 `json:"paddleLeft"`
	PaddleRight float64 `json:"paddleRight"`
	BallX       float64 `json:"ballX"`
	BallY       float64 `json:"ballY"`
	Status      string  `json:"status"`
}

// stateView extends the public snapshot with velocities for the AI driver.
type stateView struct {
	GameState
	ballVX float64
	ballVY float64
}

// Result describes a terminated game, handed to the lifecycle layer for
// persistence, ranking and release.
type Result struct {
	GameID    int64
	Mode      string
	P1        Player
	P2        Player
	P1Score   int
	P2Score   int
	WinnerID  int64
	LoserID   int64
	Forfeit   bool
	Abandoned bool
	StartedAt time.Time
	Duration  time.Duration
	Link      *TournamentLink
}

// Emitter pushes typed events to connected users. The hub satisfies this.
type Emitter interface {
	EmitToUser(userID int64, event string, data interface{})
}

// Config carries everything a room needs at creation time.
type Config struct {
	ID   int64
	Mode string
	P1   Player
	Link *TournamentLink

	// Seed feeds the room's private RNG. Zero means high-entropy.
	Seed int64

	Emitter Emitter

	// StillBound reports whether a user's current room binding is this
	// room. Stale emissions and abandoned rooms hinge on it.
	StillBound func(userID, roomID int64) bool

	// OnEnd runs the post-terminal sequence (persistence, ranking,
	// release, deletion scheduling). Called once, after clients have
	// observed the terminal state.
	OnEnd func(*Result)

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Room is one authoritative pong game. All simulation state is owned by the
// room's run goroutine; external commands are serialized through the mailbox.
// Composition (players, mode, status) changes only under metaMu and only
// while the room is not yet running.
type Room struct {
	id   int64
	mode string
	link *TournamentLink

	metaMu     sync.RWMutex
	p1         Player
	p2         Player
	hasP2      bool
	status     string
	spectators map[int64]struct{}
	startedAt  time.Time

	mailbox chan func()
	done    chan struct{}
	started sync.Once

	// Simulation state below is touched only by the run goroutine once
	// Start has been called.
	ballX, ballY       float64
	prevBallX          float64
	prevBallY          float64
	ballVX, ballVY     float64
	speed              float64
	paddleL, paddleR   float64
	prevPadL, prevPadR float64
	dirL, dirR         Direction
	p1Score, p2Score   int
	forfeit            bool

	p1Disc   bool
	p1DiscAt time.Time
	p2Disc   bool
	p2DiscAt time.Time

	rng *rand.Rand
	now func() time.Time

	emitter    Emitter
	stillBound func(userID, roomID int64) bool
	onEnd      func(*Result)

	snapMu sync.RWMutex
	snap   stateView
}

// NewRoom creates a WAITING room with p1 seated on the left.
func NewRoom(cfg Config) *Room {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	stillBound := cfg.StillBound
	if stillBound == nil {
		stillBound = func(int64, int64) bool { return true }
	}

	r := &Room{
		id:         cfg.ID,
		mode:       cfg.Mode,
		link:       cfg.Link,
		p1:         cfg.P1,
		status:     models.StatusWaiting,
		spectators: make(map[int64]struct{}),
		mailbox:    make(chan func(), 64),
		done:       make(chan struct{}),
		ballX:      FieldSize / 2,
		ballY:      FieldSize / 2,
		paddleL:    PaddleMaxY / 2,
		paddleR:    PaddleMaxY / 2,
		rng:        rand.New(rand.NewSource(seed)),
		now:        now,
		emitter:    cfg.Emitter,
		stillBound: stillBound,
		onEnd:      cfg.OnEnd,
	}
	r.prevBallX, r.prevBallY = r.ballX, r.ballY
	r.prevPadL, r.prevPadR = r.paddleL, r.paddleR
	r.publishSnapshot()
	return r
}

// ID returns the room id (also the Store's game id).
func (r *Room) ID() int64 { return r.id }

// Mode returns the room mode.
func (r *Room) Mode() string { return r.mode }

// Link returns the tournament linkage, nil for non-tournament rooms.
func (r *Room) Link() *TournamentLink { return r.link }

// Status returns the current room status.
func (r *Room) Status() string {
	r.metaMu.RLock()
	defer r.metaMu.RUnlock()
	return r.status
}

// Players returns both seats; ok is false while p2 is empty.
func (r *Room) Players() (p1, p2 Player, ok bool) {
	r.metaMu.RLock()
	defer r.metaMu.RUnlock()
	return r.p1, r.p2, r.hasP2
}

// HasPlayer reports whether the user owns a seat in this room.
func (r *Room) HasPlayer(userID int64) bool {
	r.metaMu.RLock()
	defer r.metaMu.RUnlock()
	return r.p1.UserID == userID || (r.hasP2 && r.p2.UserID == userID)
}

// SeatPlayer2 fills the right seat. Only legal while WAITING.
func (r *Room) SeatPlayer2(p Player) error {
	r.metaMu.Lock()
	defer r.metaMu.Unlock()
	if r.status != models.StatusWaiting {
		return ErrNotInProgress
	}
	if r.hasP2 {
		return errors.New("FULL")
	}
	r.p2 = p
	r.hasP2 = true
	return nil
}

// MarkStarting moves WAITING -> STARTING.
func (r *Room) MarkStarting() bool {
	r.metaMu.Lock()
	defer r.metaMu.Unlock()
	if r.status != models.StatusWaiting {
		return false
	}
	r.status = models.StatusStarting
	return true
}

// Cancel moves a not-yet-running room to CANCELLED. Returns false if the
// game already started or ended.
func (r *Room) Cancel() bool {
	r.metaMu.Lock()
	defer r.metaMu.Unlock()
	if r.status != models.StatusWaiting && r.status != models.StatusStarting {
		return false
	}
	r.status = models.StatusCancelled
	return true
}

// Start serves the ball and launches the tick loop. A cancelled room is a
// no-op (the scheduled start timer races with leaveGame).
func (r *Room) Start() {
	r.metaMu.Lock()
	if r.status != models.StatusStarting && r.status != models.StatusWaiting {
		r.metaMu.Unlock()
		return
	}
	if !r.hasP2 {
		r.metaMu.Unlock()
		log.Printf("[ROOM] Room %d start with empty seat, cancelling", r.id)
		r.Cancel()
		return
	}
	r.status = models.StatusInProgress
	r.startedAt = r.now()
	r.metaMu.Unlock()

	r.started.Do(func() {
		r.serve(0)
		r.publishSnapshot()
		go r.run()
	})
}

// Done is closed when the tick loop has fully stopped.
func (r *Room) Done() <-chan struct{} { return r.done }

// ApplyInput sets the direction of the caller's paddle. LOCAL rooms route by
// playerNumber (1 or 2) from the single owner; otherwise the caller must own
// the seat they are driving.
func (r *Room) ApplyInput(userID int64, dir Direction, playerNumber int) error {
	if r.Status() != models.StatusInProgress {
		return ErrNotInProgress
	}

	side, err := r.resolveSide(userID, playerNumber)
	if err != nil {
		return err
	}

	r.do(func() {
		if side == 1 {
			r.dirL = dir
		} else {
			r.dirR = dir
		}
	})
	return nil
}

// MarkDisconnected flags a player's side as disconnected and notifies the
// opponent. The seat is kept for ReconnectWindow.
func (r *Room) MarkDisconnected(userID int64) {
	if r.Status() != models.StatusInProgress {
		return
	}
	side, err := r.resolveSide(userID, 0)
	if err != nil {
		return
	}

	now := r.now()
	r.do(func() {
		if side == 1 {
			if r.p1Disc {
				return
			}
			r.p1Disc = true
			r.p1DiscAt = now
		} else {
			if r.p2Disc {
				return
			}
			r.p2Disc = true
			r.p2DiscAt = now
		}
		r.emitToOpponent(side, "opponent-disconnected", map[string]interface{}{
			"gameId":            r.id,
			"reconnectDeadline": now.Add(ReconnectWindow).UnixMilli(),
		})
	})
}

// Rejoin clears a player's disconnected flag and notifies the opponent.
func (r *Room) Rejoin(userID int64) error {
	if r.Status() != models.StatusInProgress {
		return ErrNotInProgress
	}
	side, err := r.resolveSide(userID, 0)
	if err != nil {
		return err
	}

	r.do(func() {
		if side == 1 {
			if !r.p1Disc {
				return
			}
			r.p1Disc = false
		} else {
			if !r.p2Disc {
				return
			}
			r.p2Disc = false
		}
		r.emitToOpponent(side, "opponent-reconnected", map[string]interface{}{
			"gameId": r.id,
		})
	})
	return nil
}

// Forfeit immediately awards the win to the opponent.
func (r *Room) Forfeit(userID int64) error {
	if r.Status() != models.StatusInProgress {
		return ErrNotInProgress
	}
	side, err := r.resolveSide(userID, 0)
	if err != nil {
		return err
	}

	r.do(func() {
		if side == 1 {
			r.p2Score = WinScore
		} else {
			r.p1Score = WinScore
		}
		r.forfeit = true
		r.finish()
	})
	return nil
}

// AddSpectator subscribes a user to the room channel. Spectating is only
// allowed while the game is running.
func (r *Room) AddSpectator(userID int64) error {
	r.metaMu.Lock()
	defer r.metaMu.Unlock()
	if r.status != models.StatusInProgress {
		return ErrNotInProgress
	}
	r.spectators[userID] = struct{}{}
	return nil
}

// RemoveSpectator unsubscribes a user from the room channel.
func (r *Room) RemoveSpectator(userID int64) {
	r.metaMu.Lock()
	defer r.metaMu.Unlock()
	delete(r.spectators, userID)
}

// Snapshot returns the most recently published game state.
func (r *Room) Snapshot() GameState {
	r.snapMu.RLock()
	defer r.snapMu.RUnlock()
	return r.snap.GameState
}

// aiView exposes ball velocity to the AI driver alongside the snapshot.
func (r *Room) aiView() stateView {
	r.snapMu.RLock()
	defer r.snapMu.RUnlock()
	return r.snap
}

// resolveSide maps a caller to the paddle they may drive.
func (r *Room) resolveSide(userID int64, playerNumber int) (int, error) {
	r.metaMu.RLock()
	defer r.metaMu.RUnlock()

	if r.mode == models.ModeLocal {
		if r.p1.UserID != userID {
			return 0, ErrNotAPlayer
		}
		switch playerNumber {
		case 0, 1:
			return 1, nil
		case 2:
			return 2, nil
		default:
			return 0, ErrNotAPlayer
		}
	}

	if r.p1.UserID == userID {
		return 1, nil
	}
	if r.hasP2 && r.p2.UserID == userID {
		return 2, nil
	}
	return 0, ErrNotAPlayer
}

// do serializes a command through the room mailbox. Commands sent after the
// room stopped are dropped.
func (r *Room) do(cmd func()) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.mailbox <- cmd:
		return true
	case <-r.done:
		return false
	}
}

// run is the room's single mutator loop: mailbox commands and ticks,
// strictly interleaved, never concurrent.
func (r *Room) run() {
	defer close(r.done)

	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-r.mailbox:
			cmd()
		case <-ticker.C:
			r.tick()
		}
		if r.Status() != models.StatusInProgress {
			return
		}
	}
}

// emitToOpponent pushes an event to the other seat, skipping AI players.
func (r *Room) emitToOpponent(side int, event string, data interface{}) {
	r.metaMu.RLock()
	var opponent Player
	if side == 1 {
		opponent = r.p2
	} else {
		opponent = r.p1
	}
	r.metaMu.RUnlock()

	if opponent.IsAI || r.emitter == nil {
		return
	}
	r.emitter.EmitToUser(opponent.UserID, event, data)
}

// emitToRoom pushes an event to both players and all spectators. Player
// emissions are gated on their binding still pointing at this room, so a
// player who left and joined something else sees nothing from here.
func (r *Room) emitToRoom(event string, data interface{}) {
	if r.emitter == nil {
		return
	}

	r.metaMu.RLock()
	players := []Player{r.p1}
	if r.hasP2 && r.p2.UserID != r.p1.UserID {
		players = append(players, r.p2)
	}
	spectators := make([]int64, 0, len(r.spectators))
	for id := range r.spectators {
		spectators = append(spectators, id)
	}
	r.metaMu.RUnlock()

	for _, p := range players {
		if p.IsAI {
			continue
		}
		if !r.stillBound(p.UserID, r.id) {
			continue
		}
		r.emitter.EmitToUser(p.UserID, event, data)
	}
	for _, id := range spectators {
		r.emitter.EmitToUser(id, event, data)
	}
}

// publishSnapshot copies the simulation state into the read-side snapshot.
func (r *Room) publishSnapshot() {
	state := stateView{
		GameState: GameState{
			GameID:      r.id,
			P1Score:     r.p1Score,
			P2Score:     r.p2Score,
			PaddleLeft:  r.paddleL,
			PaddleRight: r.paddleR,
			BallX:       r.ballX,
			BallY:       r.ballY,
			Status:      r.Status(),
		},
		ballVX: r.ballVX,
		ballVY: r.ballVY,
	}

	r.snapMu.Lock()
	r.snap = state
	r.snapMu.Unlock()
}
