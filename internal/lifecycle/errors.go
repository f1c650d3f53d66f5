package lifecycle

import "errors"

// Error taxonomy surfaced to clients. The event layer maps these onto
// *:error frames verbatim.
var (
	ErrAlreadyInGame = errors.New("ALREADY_IN_GAME")
	ErrNotInGame     = errors.New("NOT_IN_GAME")
	ErrNotAPlayer    = errors.New("NOT_A_PLAYER")
	ErrGameNotFound  = errors.New("GAME_NOT_FOUND")
	ErrGameFull      = errors.New("FULL")
	ErrNotPrivate    = errors.New("NOT_PRIVATE")
	ErrOwnGame       = errors.New("OWN_GAME")
	ErrUnavailable   = errors.New("UNAVAILABLE")
	ErrUserNotFound  = errors.New("USER_NOT_FOUND")
)
