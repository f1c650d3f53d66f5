package events

import (
	"encoding/json"
	"errors"
	"log"
	"strings"

	"pong-platform/backend/internal/game"
	"pong-platform/backend/internal/hub"
	"pong-platform/backend/internal/lifecycle"
	"pong-platform/backend/internal/tournament"
	"pong-platform/backend/internal/validation"
)

// Inbound payload shapes. Unknown fields are ignored; missing fields fall
// back to zero values and fail validation downstream.
type (
	// GamePayload addresses an existing room.
	GamePayload struct {
		GameID int64 `json:"gameId"`
	}

	// MovePayload is one paddle direction change. Routing goes by the
	// sender's current binding, so GameID is informational. PlayerNumber
	// picks the paddle in local games and is ignored otherwise.
	MovePayload struct {
		GameID       int64 `json:"gameId"`
		Direction    int   `json:"direction"`
		PlayerNumber int   `json:"playerNumber"`
	}

	// LocalPayload names the two locally controlled paddles.
	LocalPayload struct {
		Player1Name string `json:"player1Name"`
		Player2Name string `json:"player2Name"`
	}

	// AIPayload configures a game against the built-in opponent.
	AIPayload struct {
		Difficulty string `json:"difficulty"`
	}

	// TournamentCreatePayload opens a new tournament.
	TournamentCreatePayload struct {
		Name       string `json:"name"`
		MaxPlayers int    `json:"maxPlayers"`
	}

	// TournamentPayload addresses an existing tournament.
	TournamentPayload struct {
		TournamentID int64 `json:"tournamentId"`
	}
)

var errUnknownEvent = errors.New("unknown event")

type handler func(userID int64, data json.RawMessage) error

// Dispatcher routes inbound frames to the lifecycle coordinator and the
// tournament service through a closed event table. Failures bounce back to
// the sender on the namespace error channel.
type Dispatcher struct {
	hub         *hub.Hub
	games       *lifecycle.Coordinator
	tournaments *tournament.Service

	table map[string]handler
}

// New builds the dispatcher and its event table.
func New(h *hub.Hub, games *lifecycle.Coordinator, tournaments *tournament.Service) *Dispatcher {
	d := &Dispatcher{hub: h, games: games, tournaments: tournaments}
	d.table = map[string]handler{
		"game:join-matchmaking": d.joinMatchmaking,
		"game:create-private":   d.createPrivate,
		"game:join-private":     d.joinPrivate,
		"game:create-local":     d.createLocal,
		"game:create-ai":        d.createAI,
		"game:move":             d.move,
		"game:leave":            d.leave,
		"game:forfeit":          d.forfeit,
		"game:rejoin":           d.rejoin,
		"game:spectate":         d.spectate,
		"game:stop-spectate":    d.stopSpectate,

		"tournament:create":         d.tournamentCreate,
		"tournament:join":           d.tournamentJoin,
		"tournament:leave":          d.tournamentLeave,
		"tournament:start":          d.tournamentStart,
		"tournament:cancel":         d.tournamentCancel,
		"tournament:get":            d.tournamentGet,
		"tournament:get-bracket":    d.tournamentBracket,
		"tournament:list-active":    d.tournamentList,
		"tournament:my-tournaments": d.tournamentMine,
	}
	return d
}

// Handle processes one frame from a connected user. This is the hub's
// message handler.
func (d *Dispatcher) Handle(userID int64, msg hub.Message) {
	h, ok := d.table[msg.Event]
	if !ok {
		d.emitError(userID, msg.Event, errUnknownEvent)
		return
	}
	if err := h(userID, msg.Data); err != nil {
		d.emitError(userID, msg.Event, err)
	}
}

func (d *Dispatcher) emitError(userID int64, event string, err error) {
	log.Printf("[EVENTS] %s from user %d failed: %v", event, userID, err)

	// Errors land on the namespace channel: game:error or tournament:error.
	channel := "error"
	if i := strings.IndexByte(event, ':'); i > 0 {
		channel = event[:i] + ":error"
	}
	d.hub.EmitToUser(userID, channel, map[string]interface{}{
		"message": err.Error(),
	})
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (d *Dispatcher) joinMatchmaking(userID int64, _ json.RawMessage) error {
	return d.games.JoinMatchmaking(userID)
}

func (d *Dispatcher) createPrivate(userID int64, _ json.RawMessage) error {
	_, err := d.games.CreatePrivateGame(userID)
	return err
}

func (d *Dispatcher) joinPrivate(userID int64, data json.RawMessage) error {
	var p GamePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	return d.games.JoinPrivateGame(userID, p.GameID)
}

func (d *Dispatcher) createLocal(userID int64, data json.RawMessage) error {
	var p LocalPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	_, err := d.games.CreateLocalGame(userID, p.Player1Name, p.Player2Name)
	return err
}

func (d *Dispatcher) createAI(userID int64, data json.RawMessage) error {
	var p AIPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	_, err := d.games.CreateAIGame(userID, p.Difficulty)
	return err
}

func (d *Dispatcher) move(userID int64, data json.RawMessage) error {
	var p MovePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if err := validation.ValidateDirection(p.Direction); err != nil {
		return err
	}
	return d.games.HandleInput(userID, game.Direction(p.Direction), p.PlayerNumber)
}

func (d *Dispatcher) leave(userID int64, _ json.RawMessage) error {
	return d.games.LeaveGame(userID)
}

func (d *Dispatcher) forfeit(userID int64, _ json.RawMessage) error {
	return d.games.ForfeitGame(userID)
}

func (d *Dispatcher) rejoin(userID int64, data json.RawMessage) error {
	var p GamePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	return d.games.RejoinGame(userID, p.GameID)
}

func (d *Dispatcher) spectate(userID int64, data json.RawMessage) error {
	var p GamePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	return d.games.SpectateGame(userID, p.GameID)
}

func (d *Dispatcher) stopSpectate(userID int64, data json.RawMessage) error {
	var p GamePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	d.games.StopSpectating(userID, p.GameID)
	return nil
}

func (d *Dispatcher) tournamentCreate(userID int64, data json.RawMessage) error {
	var p TournamentCreatePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	_, err := d.tournaments.Create(userID, p.Name, p.MaxPlayers)
	return err
}

func (d *Dispatcher) tournamentJoin(userID int64, data json.RawMessage) error {
	var p TournamentPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	return d.tournaments.Join(userID, p.TournamentID)
}

func (d *Dispatcher) tournamentLeave(userID int64, data json.RawMessage) error {
	var p TournamentPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	return d.tournaments.Leave(userID, p.TournamentID)
}

func (d *Dispatcher) tournamentStart(userID int64, data json.RawMessage) error {
	var p TournamentPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	return d.tournaments.Start(userID, p.TournamentID)
}

func (d *Dispatcher) tournamentCancel(userID int64, data json.RawMessage) error {
	var p TournamentPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	return d.tournaments.Cancel(userID, p.TournamentID)
}

func (d *Dispatcher) tournamentGet(userID int64, data json.RawMessage) error {
	var p TournamentPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	view, err := d.tournaments.Bracket(p.TournamentID)
	if err != nil {
		return err
	}
	d.hub.EmitToUser(userID, "tournament:details", view)
	return nil
}

func (d *Dispatcher) tournamentBracket(userID int64, data json.RawMessage) error {
	var p TournamentPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	view, err := d.tournaments.Bracket(p.TournamentID)
	if err != nil {
		return err
	}
	d.hub.EmitToUser(userID, "tournament:bracket", view)
	return nil
}

func (d *Dispatcher) tournamentList(userID int64, _ json.RawMessage) error {
	list, err := d.tournaments.ListActive()
	if err != nil {
		return err
	}
	d.hub.EmitToUser(userID, "tournament:list", list)
	return nil
}

func (d *Dispatcher) tournamentMine(userID int64, _ json.RawMessage) error {
	list, err := d.tournaments.ForUser(userID)
	if err != nil {
		return err
	}
	d.hub.EmitToUser(userID, "tournament:my-tournaments", list)
	return nil
}
