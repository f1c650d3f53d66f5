package tournament

import "errors"

var (
	// ErrTournamentNotFound occurs when a tournament doesn't exist
	ErrTournamentNotFound = errors.New("tournament not found")
	// ErrAlreadyRegistered occurs when a user is already registered
	ErrAlreadyRegistered = errors.New("already registered for this tournament")
	// ErrNotRegistered occurs when a user is not registered
	ErrNotRegistered = errors.New("not registered for this tournament")
	// ErrTournamentFull occurs when registration is at capacity
	ErrTournamentFull = errors.New("tournament is full")
	// ErrNotCreator occurs when a non-creator tries a creator-only action
	ErrNotCreator = errors.New("only the creator may do this")
	// ErrWrongStatus occurs when an action doesn't fit the tournament state
	ErrWrongStatus = errors.New("tournament is not in the right state")
	// ErrTooFewPlayers occurs when starting with fewer than two players
	ErrTooFewPlayers = errors.New("at least two players required")
	// ErrMatchNotFound occurs when a bracket slot doesn't exist
	ErrMatchNotFound = errors.New("match not found")
)
