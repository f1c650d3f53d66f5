package store

import (
	"errors"
	"fmt"
	"log"

	"pong-platform/backend/internal/models"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the durable persistence surface consumed by the core. It holds
// users, games and tournament shape; it is never consulted on the tick path.
type Store interface {
	GetUser(id int64) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	CreateUser(user *models.User) error
	UpdateUser(id int64, patch map[string]interface{}) error

	CreateGame(game *models.Game) error
	UpdateGame(id int64, patch map[string]interface{}) error
	FindGame(id int64) (*models.Game, error)

	CreateTournament(t *models.Tournament) error
	UpdateTournament(id int64, patch map[string]interface{}) error
	GetTournament(id int64) (*models.Tournament, error)
	QueryTournaments(statuses ...string) ([]models.Tournament, error)
	UserTournaments(userID int64) ([]models.Tournament, error)

	CreateTournamentPlayer(p *models.TournamentPlayer) error
	DeleteTournamentPlayer(tournamentID, userID int64) error
	ListTournamentPlayers(tournamentID int64) ([]models.TournamentPlayer, error)
	UpdateTournamentPlayer(tournamentID, userID int64, patch map[string]interface{}) error

	CreateTournamentMatch(m *models.TournamentMatch) error
	UpdateTournamentMatch(matchID string, patch map[string]interface{}) error
	ListTournamentMatches(tournamentID int64) ([]models.TournamentMatch, error)

	RankedUsers() ([]models.User, error)
	EnsureAIUser(passwordHash string) (*models.User, error)
}

// GormStore implements Store on top of a GORM connection.
type GormStore struct {
	db *gorm.DB
}

// New creates a Store backed by the given GORM connection.
func New(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetUser(id int64) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *GormStore) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *GormStore) CreateUser(user *models.User) error {
	return s.db.Create(user).Error
}

func (s *GormStore) UpdateUser(id int64, patch map[string]interface{}) error {
	return s.db.Model(&models.User{}).Where("id = ?", id).Updates(patch).Error
}

func (s *GormStore) CreateGame(game *models.Game) error {
	return s.db.Create(game).Error
}

func (s *GormStore) UpdateGame(id int64, patch map[string]interface{}) error {
	return s.db.Model(&models.Game{}).Where("id = ?", id).Updates(patch).Error
}

func (s *GormStore) FindGame(id int64) (*models.Game, error) {
	var game models.Game
	if err := s.db.First(&game, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &game, nil
}

func (s *GormStore) CreateTournament(t *models.Tournament) error {
	return s.db.Create(t).Error
}

func (s *GormStore) UpdateTournament(id int64, patch map[string]interface{}) error {
	return s.db.Model(&models.Tournament{}).Where("id = ?", id).Updates(patch).Error
}

func (s *GormStore) GetTournament(id int64) (*models.Tournament, error) {
	var t models.Tournament
	if err := s.db.First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *GormStore) QueryTournaments(statuses ...string) ([]models.Tournament, error) {
	var tournaments []models.Tournament
	q := s.db.Order("created_at DESC")
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if err := q.Find(&tournaments).Error; err != nil {
		return nil, err
	}
	return tournaments, nil
}

func (s *GormStore) UserTournaments(userID int64) ([]models.Tournament, error) {
	var tournaments []models.Tournament
	err := s.db.
		Joins("JOIN tournament_players tp ON tp.tournament_id = tournaments.id AND tp.deleted_at IS NULL").
		Where("tp.user_id = ?", userID).
		Order("tournaments.created_at DESC").
		Find(&tournaments).Error
	if err != nil {
		return nil, err
	}
	return tournaments, nil
}

func (s *GormStore) CreateTournamentPlayer(p *models.TournamentPlayer) error {
	return s.db.Create(p).Error
}

func (s *GormStore) DeleteTournamentPlayer(tournamentID, userID int64) error {
	return s.db.
		Where("tournament_id = ? AND user_id = ?", tournamentID, userID).
		Delete(&models.TournamentPlayer{}).Error
}

func (s *GormStore) ListTournamentPlayers(tournamentID int64) ([]models.TournamentPlayer, error) {
	var players []models.TournamentPlayer
	err := s.db.
		Where("tournament_id = ?", tournamentID).
		Order("registered_at ASC").
		Find(&players).Error
	if err != nil {
		return nil, err
	}
	return players, nil
}

func (s *GormStore) UpdateTournamentPlayer(tournamentID, userID int64, patch map[string]interface{}) error {
	return s.db.Model(&models.TournamentPlayer{}).
		Where("tournament_id = ? AND user_id = ?", tournamentID, userID).
		Updates(patch).Error
}

func (s *GormStore) CreateTournamentMatch(m *models.TournamentMatch) error {
	return s.db.Create(m).Error
}

func (s *GormStore) UpdateTournamentMatch(matchID string, patch map[string]interface{}) error {
	return s.db.Model(&models.TournamentMatch{}).
		Where("match_id = ?", matchID).
		Updates(patch).Error
}

func (s *GormStore) ListTournamentMatches(tournamentID int64) ([]models.TournamentMatch, error) {
	var matches []models.TournamentMatch
	err := s.db.
		Where("tournament_id = ?", tournamentID).
		Order("round ASC, match_number ASC").
		Find(&matches).Error
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// RankedUsers returns every user who has played at least one game, ordered by
// descending score. The AI account is excluded from the leaderboard.
func (s *GormStore) RankedUsers() ([]models.User, error) {
	var users []models.User
	err := s.db.
		Where("games_played > 0 AND email <> ?", models.AIUserEmail).
		Order("score DESC, games_won DESC, id ASC").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// EnsureAIUser finds or creates the reserved AI opponent account.
func (s *GormStore) EnsureAIUser(passwordHash string) (*models.User, error) {
	user, err := s.GetUserByEmail(models.AIUserEmail)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	ai := &models.User{
		Username:     "PongBot",
		Email:        models.AIUserEmail,
		PasswordHash: passwordHash,
		Score:        models.InitialScore,
		GameHistory:  models.EncodeHistory(nil),
	}
	if err := s.db.Create(ai).Error; err != nil {
		return nil, fmt.Errorf("failed to create AI user: %w", err)
	}
	log.Printf("[STORE] Created AI user %d (%s)", ai.ID, ai.Email)
	return ai, nil
}
