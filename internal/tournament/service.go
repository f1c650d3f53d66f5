package tournament

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"pong-platform/backend/internal/game"
	"pong-platform/backend/internal/locks"
	"pong-platform/backend/internal/models"
	"pong-platform/backend/internal/store"
	"pong-platform/backend/internal/validation"
)

const (
	// AutoStartDelay runs from the moment registration fills.
	AutoStartDelay = 3 * time.Second
	// NextRoundDelay separates a round's last result from the next
	// round's matches.
	NextRoundDelay = 5 * time.Second
	// cacheTTL bounds how long a bracket view is served without a reload.
	cacheTTL = 5 * time.Minute
	// lockTTL caps how long one advancement may hold a tournament lock.
	lockTTL = 30 * time.Second
)

// Notifier is the slice of the hub the tournament layer needs.
type Notifier interface {
	EmitToUser(userID int64, event string, data interface{})
	Broadcast(event string, data interface{})
	On(event string, handler func(data interface{}))
}

// Matchmaker opens and aborts rooms for bracket matches. The lifecycle
// coordinator satisfies this.
type Matchmaker interface {
	CreateTournamentGame(p1ID, p2ID int64, link game.TournamentLink) (int64, error)
	AbortGame(gameID int64)
}

// PlayerView is a registered player with their display name resolved.
type PlayerView struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Seed     *int   `json:"seed,omitempty"`
}

// BracketView is the full client-facing shape of one tournament.
type BracketView struct {
	Tournament models.Tournament        `json:"tournament"`
	Players    []PlayerView             `json:"players"`
	Matches    []models.TournamentMatch `json:"matches"`
}

type cacheEntry struct {
	view    *BracketView
	expires time.Time
}

// Service runs single-elimination tournaments: registration, bracket
// generation, per-round match creation and winner advancement.
type Service struct {
	store      store.Store
	notifier   Notifier
	matchmaker Matchmaker
	locks      *locks.Manager

	mu          sync.Mutex
	cache       map[int64]cacheEntry
	startTimers map[int64]*time.Timer
	localLocks  map[int64]*sync.Mutex

	rng *rand.Rand
	now func() time.Time
}

// New creates a tournament service. lockManager may be nil; advancement
// then falls back to in-process locking, which is fine for a single node.
func New(st store.Store, notifier Notifier, matchmaker Matchmaker, lockManager *locks.Manager) *Service {
	return &Service{
		store:       st,
		notifier:    notifier,
		matchmaker:  matchmaker,
		locks:       lockManager,
		cache:       make(map[int64]cacheEntry),
		startTimers: make(map[int64]*time.Timer),
		localLocks:  make(map[int64]*sync.Mutex),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		now:         time.Now,
	}
}

// Subscribe attaches the service to the in-process game-ended stream. Must
// be called once during server wiring.
func (s *Service) Subscribe() {
	s.notifier.On("tournament:game-ended", s.handleGameEnded)
}

// lockTournament guards advancement for one tournament. With Redis it also
// holds across instances.
func (s *Service) lockTournament(ctx context.Context, tournamentID int64) (func(), error) {
	if s.locks != nil {
		lock, err := s.locks.Acquire(ctx, lockKey(tournamentID), lockTTL)
		if err != nil {
			return nil, err
		}
		return func() {
			if err := lock.Release(context.Background()); err != nil {
				log.Printf("[TOURNAMENT] Failed to release lock for %d: %v", tournamentID, err)
			}
		}, nil
	}

	s.mu.Lock()
	l, ok := s.localLocks[tournamentID]
	if !ok {
		l = &sync.Mutex{}
		s.localLocks[tournamentID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock, nil
}

func lockKey(tournamentID int64) string {
	return "tournament:" + strconv.FormatInt(tournamentID, 10)
}

// Create opens a tournament for registration and seats the creator.
func (s *Service) Create(creatorID int64, name string, maxPlayers int) (*models.Tournament, error) {
	if err := validation.ValidateDisplayName(name); err != nil {
		return nil, err
	}
	if err := validation.ValidateMaxPlayers(maxPlayers); err != nil {
		return nil, err
	}

	t := &models.Tournament{
		Name:        name,
		CreatorID:   creatorID,
		BracketType: "single_elimination",
		Status:      models.TournamentRegistration,
		MaxPlayers:  maxPlayers,
		TotalRounds: roundsFor(maxPlayers),
	}
	if err := s.store.CreateTournament(t); err != nil {
		return nil, err
	}

	if err := s.store.CreateTournamentPlayer(&models.TournamentPlayer{
		TournamentID: t.ID,
		UserID:       creatorID,
	}); err != nil {
		return nil, err
	}

	s.notifier.Broadcast("tournament:created", t)
	log.Printf("[TOURNAMENT] Tournament %d created by %d (%d players)", t.ID, creatorID, maxPlayers)
	return t, nil
}

// Join registers a user. Filling the last seat closes registration and arms
// the auto-start timer.
func (s *Service) Join(userID, tournamentID int64) error {
	t, err := s.getTournament(tournamentID)
	if err != nil {
		return err
	}
	if t.Status != models.TournamentRegistration {
		return ErrWrongStatus
	}

	players, err := s.store.ListTournamentPlayers(tournamentID)
	if err != nil {
		return err
	}
	for _, p := range players {
		if p.UserID == userID {
			return ErrAlreadyRegistered
		}
	}
	if len(players) >= t.MaxPlayers {
		return ErrTournamentFull
	}

	if err := s.store.CreateTournamentPlayer(&models.TournamentPlayer{
		TournamentID: tournamentID,
		UserID:       userID,
	}); err != nil {
		return err
	}

	s.evict(tournamentID)
	s.broadcastBracket(tournamentID, "tournament:player-joined")

	if len(players)+1 == t.MaxPlayers {
		s.armAutoStart(tournamentID)
	}
	return nil
}

// Leave withdraws a registration. The creator leaving cancels the whole
// tournament.
func (s *Service) Leave(userID, tournamentID int64) error {
	t, err := s.getTournament(tournamentID)
	if err != nil {
		return err
	}
	if t.Status != models.TournamentRegistration {
		return ErrWrongStatus
	}

	if t.CreatorID == userID {
		return s.Cancel(userID, tournamentID)
	}

	players, err := s.store.ListTournamentPlayers(tournamentID)
	if err != nil {
		return err
	}
	registered := false
	for _, p := range players {
		if p.UserID == userID {
			registered = true
			break
		}
	}
	if !registered {
		return ErrNotRegistered
	}

	if err := s.store.DeleteTournamentPlayer(tournamentID, userID); err != nil {
		return err
	}

	s.disarmAutoStart(tournamentID)
	s.evict(tournamentID)
	s.broadcastBracket(tournamentID, "tournament:player-left")
	return nil
}

// Start launches the bracket early, shrinking it to fit the field. Creator
// only.
func (s *Service) Start(userID, tournamentID int64) error {
	t, err := s.getTournament(tournamentID)
	if err != nil {
		return err
	}
	if t.CreatorID != userID {
		return ErrNotCreator
	}
	return s.start(tournamentID)
}

// Cancel aborts a tournament before or during play. Creator only.
func (s *Service) Cancel(userID, tournamentID int64) error {
	t, err := s.getTournament(tournamentID)
	if err != nil {
		return err
	}
	if t.CreatorID != userID {
		return ErrNotCreator
	}
	if t.Status == models.TournamentFinished || t.Status == models.TournamentCancelled {
		return ErrWrongStatus
	}

	s.disarmAutoStart(tournamentID)

	if err := s.store.UpdateTournament(tournamentID, map[string]interface{}{
		"status": models.TournamentCancelled,
	}); err != nil {
		return err
	}

	// Mid-bracket cancellation aborts rooms still playing.
	if t.Status == models.TournamentInProgress {
		matches, err := s.store.ListTournamentMatches(tournamentID)
		if err == nil {
			for _, m := range matches {
				if m.Status == models.MatchInProgress && m.GameID != nil {
					s.matchmaker.AbortGame(*m.GameID)
				}
			}
		}
	}

	s.evict(tournamentID)
	s.notifier.Broadcast("tournament:cancelled", map[string]interface{}{
		"tournamentId": tournamentID,
	})
	log.Printf("[TOURNAMENT] Tournament %d cancelled", tournamentID)
	return nil
}

// Bracket returns the tournament's full view, served from cache when fresh.
func (s *Service) Bracket(tournamentID int64) (*BracketView, error) {
	s.mu.Lock()
	entry, ok := s.cache[tournamentID]
	s.mu.Unlock()
	if ok && s.now().Before(entry.expires) {
		return entry.view, nil
	}

	view, err := s.loadBracket(tournamentID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[tournamentID] = cacheEntry{view: view, expires: s.now().Add(cacheTTL)}
	s.mu.Unlock()
	return view, nil
}

// ListActive returns tournaments open for registration, counting down or in
// play.
func (s *Service) ListActive() ([]models.Tournament, error) {
	return s.store.QueryTournaments(models.TournamentRegistration,
		models.TournamentStarting, models.TournamentInProgress)
}

// ForUser returns every tournament the user is or was registered in.
func (s *Service) ForUser(userID int64) ([]models.Tournament, error) {
	return s.store.UserTournaments(userID)
}

func (s *Service) getTournament(id int64) (*models.Tournament, error) {
	t, err := s.store.GetTournament(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return t, nil
}

func (s *Service) armAutoStart(tournamentID int64) {
	s.mu.Lock()
	if _, armed := s.startTimers[tournamentID]; armed {
		s.mu.Unlock()
		return
	}
	s.startTimers[tournamentID] = time.AfterFunc(AutoStartDelay, func() {
		if err := s.start(tournamentID); err != nil && !errors.Is(err, ErrWrongStatus) {
			log.Printf("[TOURNAMENT] Auto-start of %d failed: %v", tournamentID, err)
		}
	})
	s.mu.Unlock()

	// Registration is closed while the countdown runs.
	if err := s.store.UpdateTournament(tournamentID, map[string]interface{}{
		"status": models.TournamentStarting,
	}); err != nil {
		log.Printf("[TOURNAMENT] Failed to mark %d starting: %v", tournamentID, err)
	}
	s.evict(tournamentID)
	log.Printf("[TOURNAMENT] Tournament %d full, starting in %s", tournamentID, AutoStartDelay)
}

func (s *Service) disarmAutoStart(tournamentID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.startTimers[tournamentID]; ok {
		timer.Stop()
		delete(s.startTimers, tournamentID)
	}
}

// start generates the bracket and opens round 1.
func (s *Service) start(tournamentID int64) error {
	release, err := s.lockTournament(context.Background(), tournamentID)
	if err != nil {
		return err
	}
	defer release()

	t, err := s.getTournament(tournamentID)
	if err != nil {
		return err
	}
	if t.Status != models.TournamentRegistration && t.Status != models.TournamentStarting {
		return ErrWrongStatus
	}

	players, err := s.store.ListTournamentPlayers(tournamentID)
	if err != nil {
		return err
	}
	if len(players) < 2 {
		return ErrTooFewPlayers
	}

	s.disarmAutoStart(tournamentID)

	// Random seeding.
	seeded := make([]models.TournamentPlayer, len(players))
	copy(seeded, players)
	s.mu.Lock()
	s.rng.Shuffle(len(seeded), func(i, j int) {
		seeded[i], seeded[j] = seeded[j], seeded[i]
	})
	s.mu.Unlock()

	for i := range seeded {
		seed := i + 1
		if err := s.store.UpdateTournamentPlayer(tournamentID, seeded[i].UserID, map[string]interface{}{
			"seed": seed,
		}); err != nil {
			return err
		}
	}

	t.TotalRounds = roundsFor(bracketSizeFor(len(seeded)))
	matches := generateBracket(t, seeded)
	for i := range matches {
		if err := s.store.CreateTournamentMatch(&matches[i]); err != nil {
			return err
		}
	}

	startedAt := s.now()
	if err := s.store.UpdateTournament(tournamentID, map[string]interface{}{
		"status":        models.TournamentInProgress,
		"total_rounds":  t.TotalRounds,
		"current_round": 1,
		"started_at":    startedAt,
	}); err != nil {
		return err
	}

	s.evict(tournamentID)
	s.broadcastBracket(tournamentID, "tournament:started")
	log.Printf("[TOURNAMENT] Tournament %d started with %d players, %d rounds",
		tournamentID, len(seeded), t.TotalRounds)

	s.startRoundMatches(tournamentID, 1)
	return nil
}

// startRoundMatches opens a room for every ready match of the round.
func (s *Service) startRoundMatches(tournamentID int64, round int) {
	matches, err := s.store.ListTournamentMatches(tournamentID)
	if err != nil {
		log.Printf("[TOURNAMENT] Failed to load matches for %d: %v", tournamentID, err)
		return
	}

	for _, m := range matches {
		if m.Round != round || m.Status != models.MatchReady {
			continue
		}
		if m.P1ID == nil || m.P2ID == nil {
			continue
		}

		gameID, err := s.matchmaker.CreateTournamentGame(*m.P1ID, *m.P2ID, game.TournamentLink{
			TournamentID: tournamentID,
			Round:        round,
			MatchID:      m.MatchID,
		})
		if err != nil {
			log.Printf("[TOURNAMENT] Failed to open room for %s: %v", m.MatchID, err)
			continue
		}

		if err := s.store.UpdateTournamentMatch(m.MatchID, map[string]interface{}{
			"status":  models.MatchInProgress,
			"game_id": gameID,
		}); err != nil {
			log.Printf("[TOURNAMENT] Failed to update match %s: %v", m.MatchID, err)
		}

		payload := map[string]interface{}{
			"tournamentId": tournamentID,
			"matchId":      m.MatchID,
			"round":        round,
			"gameId":       gameID,
		}
		s.notifier.EmitToUser(*m.P1ID, "tournament:match-ready", payload)
		s.notifier.EmitToUser(*m.P2ID, "tournament:match-ready", payload)
	}

	s.evict(tournamentID)
	s.broadcastBracket(tournamentID, "tournament:round-started")
}

func (s *Service) loadBracket(tournamentID int64) (*BracketView, error) {
	t, err := s.getTournament(tournamentID)
	if err != nil {
		return nil, err
	}
	players, err := s.store.ListTournamentPlayers(tournamentID)
	if err != nil {
		return nil, err
	}
	matches, err := s.store.ListTournamentMatches(tournamentID)
	if err != nil {
		return nil, err
	}

	views := make([]PlayerView, 0, len(players))
	for _, p := range players {
		pv := PlayerView{UserID: p.UserID, Seed: p.Seed}
		if user, err := s.store.GetUser(p.UserID); err == nil {
			pv.Username = user.Username
		}
		views = append(views, pv)
	}

	return &BracketView{Tournament: *t, Players: views, Matches: matches}, nil
}

func (s *Service) evict(tournamentID int64) {
	s.mu.Lock()
	delete(s.cache, tournamentID)
	s.mu.Unlock()
}

func (s *Service) broadcastBracket(tournamentID int64, event string) {
	view, err := s.Bracket(tournamentID)
	if err != nil {
		log.Printf("[TOURNAMENT] Failed to load bracket %d: %v", tournamentID, err)
		return
	}
	s.notifier.Broadcast(event, view)
}
