package lifecycle

import (
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"pong-platform/backend/internal/game"
	"pong-platform/backend/internal/hub"
	"pong-platform/backend/internal/models"
	"pong-platform/backend/internal/store"
	"pong-platform/backend/internal/validation"
)

// Presence is the slice of the hub the coordinator needs: typed emissions,
// presence status and the in-process event bus.
type Presence interface {
	EmitToUser(userID int64, event string, data interface{})
	SetStatus(userID int64, status string)
	Publish(event string, data interface{})
}

// Ranker applies a finished game to player ratings and stats.
type Ranker interface {
	ApplyResult(res *game.Result) error
}

// Coordinator owns every live room: matchmaking, private games, local and
// AI games, reconnects, spectating and the end-of-game sequence. Rooms
// simulate on their own goroutines; the coordinator only touches their
// composition and bindings.
type Coordinator struct {
	store  store.Store
	hub    Presence
	ranker Ranker

	// aiUserID is the persisted AI account seated in AI rooms.
	aiUserID int64

	mu           sync.Mutex
	rooms        map[int64]*game.Room
	userToRoom   map[int64]int64
	waitingQueue []int64
	startTimers  map[int64]*time.Timer
	aiDifficulty map[int64]string
	rng          *rand.Rand

	lockMu    sync.Mutex
	userLocks map[int64]*sync.Mutex

	now func() time.Time

	// roomSeed seeds new rooms; zero keeps them high-entropy. Tests pin it.
	roomSeed int64
}

// New creates a Coordinator. aiUserID must reference the provisioned AI
// account.
func New(st store.Store, presence Presence, ranker Ranker, aiUserID int64) *Coordinator {
	return &Coordinator{
		store:        st,
		hub:          presence,
		ranker:       ranker,
		aiUserID:     aiUserID,
		rooms:        make(map[int64]*game.Room),
		userToRoom:   make(map[int64]int64),
		startTimers:  make(map[int64]*time.Timer),
		aiDifficulty: make(map[int64]string),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		userLocks:    make(map[int64]*sync.Mutex),
		now:          time.Now,
	}
}

// lockUser serializes operations for one user.
func (c *Coordinator) lockUser(userID int64) func() {
	c.lockMu.Lock()
	l, ok := c.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		c.userLocks[userID] = l
	}
	c.lockMu.Unlock()

	l.Lock()
	return l.Unlock
}

// lockPair takes both users' locks in ascending id order, which keeps
// concurrent pairings deadlock-free.
func (c *Coordinator) lockPair(a, b int64) func() {
	if a == b {
		return c.lockUser(a)
	}
	if a > b {
		a, b = b, a
	}
	ua := c.lockUser(a)
	ub := c.lockUser(b)
	return func() {
		ub()
		ua()
	}
}

// boundRoom returns the user's current room binding, 0 if unbound.
func (c *Coordinator) boundRoom(userID int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userToRoom[userID]
}

// stillBound reports whether the user's binding currently points at roomID.
// Rooms consult this before emitting, so frames from a room a user already
// left never reach them.
func (c *Coordinator) stillBound(userID, roomID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userToRoom[userID] == roomID
}

// Room returns a live room by id.
func (c *Coordinator) Room(gameID int64) (*game.Room, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rooms[gameID]
	return r, ok
}

// newRoomID draws an unused id from [1, MaxRoomID].
func (c *Coordinator) newRoomID() int64 {
	for {
		id := int64(c.rng.Intn(game.MaxRoomID)) + 1
		if _, taken := c.rooms[id]; !taken {
			return id
		}
	}
}

// newRoom builds a room wired into the coordinator's callbacks. Caller
// holds c.mu.
func (c *Coordinator) newRoom(mode string, p1 game.Player, link *game.TournamentLink) *game.Room {
	id := c.newRoomID()
	room := game.NewRoom(game.Config{
		ID:         id,
		Mode:       mode,
		P1:         p1,
		Link:       link,
		Seed:       c.roomSeed,
		Emitter:    c.hub,
		StillBound: c.stillBound,
		OnEnd:      c.onGameEnd,
		Now:        c.now,
	})
	c.rooms[id] = room
	return room
}

func (c *Coordinator) playerFor(userID int64) (game.Player, error) {
	user, err := c.store.GetUser(userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return game.Player{}, ErrUserNotFound
		}
		return game.Player{}, err
	}
	return game.Player{UserID: user.ID, Name: user.Username}, nil
}

// JoinMatchmaking pairs the user with the oldest waiting public room, or
// parks them in a fresh one.
func (c *Coordinator) JoinMatchmaking(userID int64) error {
	// Peek for the oldest waiting opponent first so the pair can be locked
	// in order.
	c.mu.Lock()
	var waitingOwner int64
	for _, id := range c.waitingQueue {
		room, ok := c.rooms[id]
		if !ok || room.Status() != models.StatusWaiting {
			continue
		}
		p1, _, _ := room.Players()
		if p1.UserID == userID {
			continue
		}
		waitingOwner = p1.UserID
		break
	}
	c.mu.Unlock()

	if waitingOwner != 0 {
		unlock := c.lockPair(userID, waitingOwner)
		defer unlock()
		if err := c.trySeatWaiting(userID, waitingOwner); err == nil {
			return nil
		} else if !errors.Is(err, ErrGameNotFound) {
			return err
		}
		// The waiting room evaporated between the peek and the lock;
		// fall through and open a new one.
	} else {
		unlock := c.lockUser(userID)
		defer unlock()
	}

	if c.boundRoom(userID) != 0 {
		// Queueing again implies leaving whatever came before.
		if err := c.leaveLocked(userID); err != nil && !errors.Is(err, ErrNotInGame) {
			return err
		}
	}

	p1, err := c.playerFor(userID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	room := c.newRoom(models.ModePublic, p1, nil)
	c.userToRoom[userID] = room.ID()
	c.waitingQueue = append(c.waitingQueue, room.ID())
	c.mu.Unlock()

	if err := c.store.CreateGame(&models.Game{
		ID:     room.ID(),
		Mode:   models.ModePublic,
		Status: models.StatusWaiting,
		P1ID:   userID,
	}); err != nil {
		log.Printf("[LIFECYCLE] Failed to persist game %d: %v", room.ID(), err)
	}

	c.hub.EmitToUser(userID, "waiting-for-opponent", map[string]interface{}{
		"gameId": room.ID(),
	})
	log.Printf("[LIFECYCLE] User %d waiting in public room %d", userID, room.ID())
	return nil
}

// trySeatWaiting seats userID into the queued public room owned by ownerID.
// Caller holds both user locks.
func (c *Coordinator) trySeatWaiting(userID, ownerID int64) error {
	if c.boundRoom(userID) != 0 {
		// Queueing again implies leaving whatever came before.
		if err := c.leaveLocked(userID); err != nil && !errors.Is(err, ErrNotInGame) {
			return err
		}
	}

	c.mu.Lock()
	var room *game.Room
	for _, id := range c.waitingQueue {
		if r := c.rooms[id]; r != nil && r.HasPlayer(ownerID) {
			room = r
			break
		}
	}
	c.mu.Unlock()

	if room == nil || room.Status() != models.StatusWaiting {
		return ErrGameNotFound
	}

	p2, err := c.playerFor(userID)
	if err != nil {
		return err
	}
	return c.seatAndSchedule(room, p2)
}

// seatAndSchedule fills the right seat, flips the room to STARTING and arms
// the countdown. Caller holds the locks of both involved users.
func (c *Coordinator) seatAndSchedule(room *game.Room, p2 game.Player) error {
	if err := room.SeatPlayer2(p2); err != nil {
		return ErrUnavailable
	}
	if !room.MarkStarting() {
		return ErrUnavailable
	}

	p1, _, _ := room.Players()
	roomID := room.ID()

	c.mu.Lock()
	c.userToRoom[p2.UserID] = roomID
	c.dequeueWaiting(roomID)
	c.mu.Unlock()

	if err := c.store.UpdateGame(roomID, map[string]interface{}{
		"p2_id":  p2.UserID,
		"status": models.StatusStarting,
	}); err != nil {
		log.Printf("[LIFECYCLE] Failed to update game %d: %v", roomID, err)
	}

	c.hub.SetStatus(p1.UserID, hub.StatusInGame)
	if !p2.IsAI {
		c.hub.SetStatus(p2.UserID, hub.StatusInGame)
	}

	payload := map[string]interface{}{
		"gameId":    roomID,
		"p1":        p1,
		"p2":        p2,
		"countdown": int(game.StartDelay / time.Second),
	}
	c.hub.EmitToUser(p1.UserID, "game-starting", payload)
	if !p2.IsAI && p2.UserID != p1.UserID {
		c.hub.EmitToUser(p2.UserID, "game-starting", payload)
	}

	c.scheduleStart(roomID)
	log.Printf("[LIFECYCLE] Room %d starting: %d vs %d", roomID, p1.UserID, p2.UserID)
	return nil
}

// CreatePrivateGame opens an invite-only room; the returned id doubles as
// the join code.
func (c *Coordinator) CreatePrivateGame(userID int64) (int64, error) {
	unlock := c.lockUser(userID)
	defer unlock()

	if c.boundRoom(userID) != 0 {
		return 0, ErrAlreadyInGame
	}

	p1, err := c.playerFor(userID)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	room := c.newRoom(models.ModePrivate, p1, nil)
	c.userToRoom[userID] = room.ID()
	c.mu.Unlock()

	if err := c.store.CreateGame(&models.Game{
		ID:     room.ID(),
		Mode:   models.ModePrivate,
		Status: models.StatusWaiting,
		P1ID:   userID,
	}); err != nil {
		log.Printf("[LIFECYCLE] Failed to persist game %d: %v", room.ID(), err)
	}

	c.hub.EmitToUser(userID, "private-game-created", map[string]interface{}{
		"gameId": room.ID(),
	})
	return room.ID(), nil
}

// JoinPrivateGame seats the user into an invite-only room by id.
func (c *Coordinator) JoinPrivateGame(userID, gameID int64) error {
	if err := validation.ValidateGameID(gameID); err != nil {
		return ErrGameNotFound
	}

	c.mu.Lock()
	room := c.rooms[gameID]
	c.mu.Unlock()
	if room == nil {
		return ErrGameNotFound
	}
	if room.Mode() != models.ModePrivate {
		return ErrNotPrivate
	}

	p1, _, _ := room.Players()
	if p1.UserID == userID {
		return ErrOwnGame
	}

	unlock := c.lockPair(userID, p1.UserID)
	defer unlock()

	if c.boundRoom(userID) != 0 {
		return ErrAlreadyInGame
	}
	if room.Status() != models.StatusWaiting {
		return ErrUnavailable
	}

	p2, err := c.playerFor(userID)
	if err != nil {
		return err
	}
	return c.seatAndSchedule(room, p2)
}

// CreateLocalGame opens a room where one user drives both paddles.
func (c *Coordinator) CreateLocalGame(userID int64, p1Name, p2Name string) (int64, error) {
	unlock := c.lockUser(userID)
	defer unlock()

	if c.boundRoom(userID) != 0 {
		return 0, ErrAlreadyInGame
	}

	p1, err := c.playerFor(userID)
	if err != nil {
		return 0, err
	}
	if p1Name != "" {
		p1.Name = p1Name
	}
	if p2Name == "" {
		p2Name = p1.Name + " (P2)"
	}
	p2 := game.Player{UserID: userID, Name: p2Name}

	c.mu.Lock()
	room := c.newRoom(models.ModeLocal, p1, nil)
	c.userToRoom[userID] = room.ID()
	c.mu.Unlock()

	if err := c.store.CreateGame(&models.Game{
		ID:     room.ID(),
		Mode:   models.ModeLocal,
		Status: models.StatusWaiting,
		P1ID:   userID,
		P2ID:   &userID,
	}); err != nil {
		log.Printf("[LIFECYCLE] Failed to persist game %d: %v", room.ID(), err)
	}

	if err := c.seatAndSchedule(room, p2); err != nil {
		return 0, err
	}
	return room.ID(), nil
}

// CreateAIGame opens a room against the built-in AI at the given
// difficulty.
func (c *Coordinator) CreateAIGame(userID int64, difficulty string) (int64, error) {
	if err := validation.ValidateDifficulty(difficulty); err != nil {
		return 0, err
	}

	unlock := c.lockUser(userID)
	defer unlock()

	if c.boundRoom(userID) != 0 {
		return 0, ErrAlreadyInGame
	}

	human, err := c.playerFor(userID)
	if err != nil {
		return 0, err
	}
	bot := game.Player{UserID: c.aiUserID, Name: "PongBot", IsAI: true}

	// The bot takes the left or right seat at random.
	c.mu.Lock()
	p1, p2 := human, bot
	if c.rng.Intn(2) == 0 {
		p1, p2 = bot, human
	}
	room := c.newRoom(models.ModeAI, p1, nil)
	c.userToRoom[userID] = room.ID()
	c.aiDifficulty[room.ID()] = difficulty
	c.mu.Unlock()

	row := &models.Game{
		ID:     room.ID(),
		Mode:   models.ModeAI,
		Status: models.StatusWaiting,
		P1ID:   p1.UserID,
		P2ID:   &p2.UserID,
	}
	if err := c.store.CreateGame(row); err != nil {
		log.Printf("[LIFECYCLE] Failed to persist game %d: %v", room.ID(), err)
	}

	if err := c.seatAndSchedule(room, p2); err != nil {
		return 0, err
	}
	return room.ID(), nil
}

// CreateTournamentGame opens a room for a bracket match and binds both
// players to it. A player still bound to a casual room is rebound; the old
// room sees them as gone and winds itself down.
func (c *Coordinator) CreateTournamentGame(p1ID, p2ID int64, link game.TournamentLink) (int64, error) {
	unlock := c.lockPair(p1ID, p2ID)
	defer unlock()

	p1, err := c.playerFor(p1ID)
	if err != nil {
		return 0, err
	}
	p2, err := c.playerFor(p2ID)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	room := c.newRoom(models.ModeTournament, p1, &link)
	c.userToRoom[p1ID] = room.ID()
	c.mu.Unlock()

	round := link.Round
	matchID := link.MatchID
	if err := c.store.CreateGame(&models.Game{
		ID:           room.ID(),
		Mode:         models.ModeTournament,
		Status:       models.StatusWaiting,
		P1ID:         p1ID,
		P2ID:         &p2ID,
		TournamentID: &link.TournamentID,
		Round:        &round,
		MatchID:      &matchID,
	}); err != nil {
		log.Printf("[LIFECYCLE] Failed to persist game %d: %v", room.ID(), err)
	}

	if err := c.seatAndSchedule(room, p2); err != nil {
		return 0, err
	}
	return room.ID(), nil
}

// scheduleStart arms the countdown timer that launches the room.
func (c *Coordinator) scheduleStart(roomID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startTimers[roomID] = time.AfterFunc(game.StartDelay, func() {
		c.startRoom(roomID)
	})
}

// startRoom fires when the countdown lapses. A room cancelled in the
// meantime stays down.
func (c *Coordinator) startRoom(roomID int64) {
	c.mu.Lock()
	room := c.rooms[roomID]
	difficulty := c.aiDifficulty[roomID]
	delete(c.startTimers, roomID)
	c.mu.Unlock()

	if room == nil {
		return
	}

	room.Start()
	if room.Status() != models.StatusInProgress {
		return
	}

	if err := c.store.UpdateGame(roomID, map[string]interface{}{
		"status": models.StatusInProgress,
	}); err != nil {
		log.Printf("[LIFECYCLE] Failed to update game %d: %v", roomID, err)
	}

	c.emitRoom(room, "game-started", room.Snapshot())

	if room.Mode() == models.ModeAI {
		game.StartAI(room, c.aiUserID, difficulty, 0)
	}
	log.Printf("[LIFECYCLE] Room %d in progress", roomID)
}

// emitRoom pushes an event to the room's human players, gated on their
// binding still pointing here.
func (c *Coordinator) emitRoom(room *game.Room, event string, data interface{}) {
	p1, p2, hasP2 := room.Players()
	players := []game.Player{p1}
	if hasP2 && p2.UserID != p1.UserID {
		players = append(players, p2)
	}
	for _, p := range players {
		if p.IsAI || !c.stillBound(p.UserID, room.ID()) {
			continue
		}
		c.hub.EmitToUser(p.UserID, event, data)
	}
}

// LeaveGame detaches the user from their current room. Before the first
// tick this cancels the room outright; during play it opens the reconnect
// window, so the leaver can still come back before it lapses.
func (c *Coordinator) LeaveGame(userID int64) error {
	unlock := c.lockUser(userID)
	defer unlock()
	return c.leaveLocked(userID)
}

// ForfeitGame concedes the user's running game outright, awarding the win
// to the opponent on the spot.
func (c *Coordinator) ForfeitGame(userID int64) error {
	unlock := c.lockUser(userID)
	defer unlock()

	roomID := c.boundRoom(userID)
	if roomID == 0 {
		return ErrNotInGame
	}

	c.mu.Lock()
	room := c.rooms[roomID]
	c.mu.Unlock()
	if room == nil {
		c.unbind(userID, roomID)
		return nil
	}

	switch room.Status() {
	case models.StatusWaiting, models.StatusStarting:
		c.cancelRoom(room, userID)
		return nil

	case models.StatusInProgress:
		c.unbind(userID, roomID)
		c.hub.SetStatus(userID, hub.StatusOnline)
		if room.Mode() == models.ModeLocal {
			return nil
		}
		return room.Forfeit(userID)

	default:
		c.unbind(userID, roomID)
		return nil
	}
}

// AbortGame force-ends a room from outside, used when a tournament is
// cancelled mid-bracket. A room that never started is cancelled outright; a
// running one is drained of its players and winds down as abandoned, so no
// ratings move.
func (c *Coordinator) AbortGame(gameID int64) {
	c.mu.Lock()
	room := c.rooms[gameID]
	c.mu.Unlock()
	if room == nil {
		return
	}

	p1, p2, hasP2 := room.Players()
	unlock := c.lockPair(p1.UserID, p2.UserID)
	defer unlock()

	switch room.Status() {
	case models.StatusWaiting, models.StatusStarting:
		c.cancelRoom(room, 0)

	case models.StatusInProgress:
		c.unbind(p1.UserID, gameID)
		c.hub.SetStatus(p1.UserID, hub.StatusOnline)
		c.hub.EmitToUser(p1.UserID, "game-cancelled", map[string]interface{}{"gameId": gameID})
		if hasP2 && !p2.IsAI && p2.UserID != p1.UserID {
			c.unbind(p2.UserID, gameID)
			c.hub.SetStatus(p2.UserID, hub.StatusOnline)
			c.hub.EmitToUser(p2.UserID, "game-cancelled", map[string]interface{}{"gameId": gameID})
		}
		log.Printf("[LIFECYCLE] Room %d aborted", gameID)
	}
}

func (c *Coordinator) leaveLocked(userID int64) error {
	roomID := c.boundRoom(userID)
	if roomID == 0 {
		return ErrNotInGame
	}

	c.mu.Lock()
	room := c.rooms[roomID]
	c.mu.Unlock()
	if room == nil {
		c.unbind(userID, roomID)
		return nil
	}

	switch room.Status() {
	case models.StatusWaiting, models.StatusStarting:
		c.cancelRoom(room, userID)
		return nil

	case models.StatusInProgress:
		if room.Mode() == models.ModeLocal {
			// Unbinding is enough; the tick loop notices the empty
			// room and winds it down.
			c.unbind(userID, roomID)
			c.hub.SetStatus(userID, hub.StatusOnline)
			return nil
		}
		// Leaving mid-game holds the seat open: the opponent learns of
		// the disconnect and the tick loop forfeits when the window
		// lapses without a rejoin.
		room.MarkDisconnected(userID)
		c.unbind(userID, roomID)
		c.hub.SetStatus(userID, hub.StatusOnline)
		c.hub.EmitToUser(userID, "game-left", map[string]interface{}{
			"gameId":            roomID,
			"reconnectDeadline": c.now().Add(game.ReconnectWindow).UnixMilli(),
		})
		log.Printf("[LIFECYCLE] User %d left room %d, window open", userID, roomID)
		return nil

	default:
		c.unbind(userID, roomID)
		return nil
	}
}

// cancelRoom tears down a room that never started.
func (c *Coordinator) cancelRoom(room *game.Room, leaverID int64) {
	if !room.Cancel() {
		// The start timer won the race; fall back to the forfeit path.
		c.unbind(leaverID, room.ID())
		room.Forfeit(leaverID)
		return
	}

	roomID := room.ID()
	p1, p2, hasP2 := room.Players()

	c.mu.Lock()
	if timer := c.startTimers[roomID]; timer != nil {
		timer.Stop()
		delete(c.startTimers, roomID)
	}
	c.dequeueWaiting(roomID)
	delete(c.aiDifficulty, roomID)
	delete(c.rooms, roomID)
	for _, p := range []game.Player{p1, p2} {
		if p.UserID != 0 && c.userToRoom[p.UserID] == roomID {
			delete(c.userToRoom, p.UserID)
		}
	}
	c.mu.Unlock()

	if err := c.store.UpdateGame(roomID, map[string]interface{}{
		"status": models.StatusCancelled,
	}); err != nil {
		log.Printf("[LIFECYCLE] Failed to update game %d: %v", roomID, err)
	}

	payload := map[string]interface{}{"gameId": roomID}
	c.hub.SetStatus(p1.UserID, hub.StatusOnline)
	if p1.UserID != leaverID {
		c.hub.EmitToUser(p1.UserID, "game-cancelled", payload)
	}
	if hasP2 && !p2.IsAI && p2.UserID != p1.UserID {
		c.hub.SetStatus(p2.UserID, hub.StatusOnline)
		if p2.UserID != leaverID {
			c.hub.EmitToUser(p2.UserID, "game-cancelled", payload)
		}
	}
	log.Printf("[LIFECYCLE] Room %d cancelled", roomID)
}

// HandleDisconnect reacts to a user's websocket going away. A running game
// holds their seat for the reconnect window; anything earlier is treated as
// leaving.
func (c *Coordinator) HandleDisconnect(userID int64) {
	unlock := c.lockUser(userID)
	defer unlock()

	roomID := c.boundRoom(userID)
	if roomID == 0 {
		return
	}

	c.mu.Lock()
	room := c.rooms[roomID]
	c.mu.Unlock()
	if room == nil {
		c.unbind(userID, roomID)
		return
	}

	if room.Status() == models.StatusInProgress && room.Mode() != models.ModeLocal {
		room.MarkDisconnected(userID)
		c.unbind(userID, roomID)
		log.Printf("[LIFECYCLE] User %d disconnected from room %d, window open", userID, roomID)
		return
	}

	c.leaveLocked(userID)
}

// RejoinGame reattaches a disconnected player to their running game.
func (c *Coordinator) RejoinGame(userID, gameID int64) error {
	if err := validation.ValidateGameID(gameID); err != nil {
		return ErrGameNotFound
	}

	unlock := c.lockUser(userID)
	defer unlock()

	if bound := c.boundRoom(userID); bound != 0 && bound != gameID {
		return ErrAlreadyInGame
	}

	c.mu.Lock()
	room := c.rooms[gameID]
	c.mu.Unlock()
	if room == nil {
		return ErrGameNotFound
	}
	if !room.HasPlayer(userID) {
		return ErrNotAPlayer
	}
	if room.Status() != models.StatusInProgress {
		return ErrUnavailable
	}

	c.mu.Lock()
	c.userToRoom[userID] = gameID
	c.mu.Unlock()

	if err := room.Rejoin(userID); err != nil {
		return err
	}

	c.hub.SetStatus(userID, hub.StatusInGame)
	c.hub.EmitToUser(userID, "game-rejoined", room.Snapshot())
	log.Printf("[LIFECYCLE] User %d rejoined room %d", userID, gameID)
	return nil
}

// SpectateGame subscribes a user to a running game's updates.
func (c *Coordinator) SpectateGame(userID, gameID int64) error {
	if err := validation.ValidateGameID(gameID); err != nil {
		return ErrGameNotFound
	}

	unlock := c.lockUser(userID)
	defer unlock()

	if c.boundRoom(userID) != 0 {
		return ErrAlreadyInGame
	}

	c.mu.Lock()
	room := c.rooms[gameID]
	c.mu.Unlock()
	if room == nil {
		return ErrGameNotFound
	}
	if room.HasPlayer(userID) {
		return ErrOwnGame
	}

	if err := room.AddSpectator(userID); err != nil {
		return ErrUnavailable
	}

	c.hub.EmitToUser(userID, "spectating-started", room.Snapshot())
	return nil
}

// StopSpectating unsubscribes a spectator.
func (c *Coordinator) StopSpectating(userID, gameID int64) {
	c.mu.Lock()
	room := c.rooms[gameID]
	c.mu.Unlock()
	if room != nil {
		room.RemoveSpectator(userID)
	}
}

// HandleInput forwards a paddle direction into the user's current room.
func (c *Coordinator) HandleInput(userID int64, dir game.Direction, playerNumber int) error {
	roomID := c.boundRoom(userID)
	if roomID == 0 {
		return ErrNotInGame
	}

	c.mu.Lock()
	room := c.rooms[roomID]
	c.mu.Unlock()
	if room == nil {
		return ErrNotInGame
	}

	return room.ApplyInput(userID, dir, playerNumber)
}

// dequeueWaiting drops a room from the public waiting queue. Caller holds
// c.mu.
func (c *Coordinator) dequeueWaiting(roomID int64) {
	for i, id := range c.waitingQueue {
		if id == roomID {
			c.waitingQueue = append(c.waitingQueue[:i], c.waitingQueue[i+1:]...)
			return
		}
	}
}

func (c *Coordinator) unbind(userID, roomID int64) {
	c.mu.Lock()
	if c.userToRoom[userID] == roomID {
		delete(c.userToRoom, userID)
	}
	c.mu.Unlock()
}

// onGameEnd runs the post-terminal sequence on the room's goroutine:
// persist the outcome, apply ratings, release bindings and presence, notify
// the tournament layer, and schedule the room's removal. The store write
// always lands before the tournament publish.
func (c *Coordinator) onGameEnd(res *game.Result) {
	completedAt := c.now()
	patch := map[string]interface{}{
		"status":       models.StatusFinished,
		"p1_score":     res.P1Score,
		"p2_score":     res.P2Score,
		"winner_id":    res.WinnerID,
		"forfeit":      res.Forfeit,
		"duration":     int(res.Duration / time.Second),
		"completed_at": completedAt,
	}
	if err := c.store.UpdateGame(res.GameID, patch); err != nil {
		log.Printf("[LIFECYCLE] Failed to persist result for game %d: %v", res.GameID, err)
	}

	if c.ranker != nil {
		if err := c.ranker.ApplyResult(res); err != nil {
			log.Printf("[LIFECYCLE] Failed to apply ratings for game %d: %v", res.GameID, err)
		}
	}

	c.mu.Lock()
	if timer := c.startTimers[res.GameID]; timer != nil {
		timer.Stop()
		delete(c.startTimers, res.GameID)
	}
	delete(c.aiDifficulty, res.GameID)
	for _, p := range []game.Player{res.P1, res.P2} {
		if !p.IsAI && c.userToRoom[p.UserID] == res.GameID {
			delete(c.userToRoom, p.UserID)
		}
	}
	c.mu.Unlock()

	for _, p := range []game.Player{res.P1, res.P2} {
		if !p.IsAI {
			c.hub.SetStatus(p.UserID, hub.StatusOnline)
		}
	}

	if res.Link != nil {
		c.hub.Publish("tournament:game-ended", res)
	}

	time.AfterFunc(game.DeleteDelay, func() {
		c.mu.Lock()
		delete(c.rooms, res.GameID)
		c.mu.Unlock()
	})
}
