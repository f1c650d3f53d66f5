package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Common validation errors
var (
	ErrInvalidDirection  = errors.New("direction must be 0 (none), 1 (up) or 2 (down)")
	ErrInvalidDifficulty = errors.New("difficulty must be easy, medium or hard")
	ErrInvalidMaxPlayers = errors.New("max players must be 4, 8, 16 or 32")
	ErrInvalidName       = errors.New("invalid name")
	ErrInvalidGameID     = errors.New("invalid game id")
	ErrStringTooLong     = errors.New("string exceeds maximum length")
	ErrStringTooShort    = errors.New("string below minimum length")
)

// Paddle directions on the wire.
const (
	DirectionNone = 0
	DirectionUp   = 1
	DirectionDown = 2
)

// AI difficulties on the wire.
var Difficulties = map[string]bool{
	"easy":   true,
	"medium": true,
	"hard":   true,
}

// TournamentSizes are the accepted bracket sizes.
var TournamentSizes = map[int]bool{4: true, 8: true, 16: true, 32: true}

// ValidateDirection checks a paddle input direction.
func ValidateDirection(direction int) error {
	if direction < DirectionNone || direction > DirectionDown {
		return ErrInvalidDirection
	}
	return nil
}

// ValidateDifficulty checks an AI difficulty string.
func ValidateDifficulty(difficulty string) error {
	if !Difficulties[strings.ToLower(difficulty)] {
		return ErrInvalidDifficulty
	}
	return nil
}

// ValidateMaxPlayers checks a tournament bracket size.
func ValidateMaxPlayers(maxPlayers int) error {
	if !TournamentSizes[maxPlayers] {
		return ErrInvalidMaxPlayers
	}
	return nil
}

// ValidateDisplayName checks a player or tournament display name.
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	n := utf8.RuneCountInString(name)
	if n < 2 {
		return fmt.Errorf("%w: name must be >= 2 characters", ErrStringTooShort)
	}
	if n > 30 {
		return fmt.Errorf("%w: name must be <= 30 characters", ErrStringTooLong)
	}
	return nil
}

// ValidateGameID checks a room id is in the generated range.
func ValidateGameID(id int64) error {
	if id < 1 || id > 1_000_000 {
		return ErrInvalidGameID
	}
	return nil
}
