package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Game modes
const (
	ModePublic     = "PUBLIC"
	ModePrivate    = "PRIVATE"
	ModeLocal      = "LOCAL"
	ModeAI         = "AI"
	ModeTournament = "TOURNAMENT"
)

// Room / game statuses
const (
	StatusWaiting    = "WAITING"
	StatusStarting   = "STARTING"
	StatusInProgress = "IN_PROGRESS"
	StatusFinished   = "FINISHED"
	StatusCancelled  = "CANCELLED"
)

// Tournament statuses
const (
	TournamentRegistration = "REGISTRATION"
	TournamentStarting     = "STARTING"
	TournamentInProgress   = "IN_PROGRESS"
	TournamentFinished     = "FINISHED"
	TournamentCancelled    = "CANCELLED"
)

// Tournament match statuses
const (
	MatchPending    = "pending"
	MatchReady      = "ready"
	MatchInProgress = "in_progress"
	MatchCompleted  = "completed"
)

// InitialScore is the ELO score assigned to every new user.
const InitialScore = 1200

// AIUserEmail is the reserved email of the built-in AI opponent account.
// The AI user is a real persisted user but is excluded from ranking.
const AIUserEmail = "ai@pong.local"

// User represents a platform user with ranked stats.
type User struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"column:username;type:varchar(50);uniqueIndex;not null" json:"username"`
	Email        string    `gorm:"column:email;type:varchar(100);uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"column:password_hash;type:varchar(255);not null" json:"-"`
	Avatar       string    `gorm:"column:avatar;type:varchar(255)" json:"avatar"`
	Score        int       `gorm:"column:score;default:1200" json:"score"`
	Rank         int       `gorm:"column:user_rank;default:0" json:"rank"`
	GamesPlayed  int       `gorm:"column:games_played;default:0" json:"games_played"`
	GamesWon     int       `gorm:"column:games_won;default:0" json:"games_won"`
	GamesLost    int       `gorm:"column:games_lost;default:0" json:"games_lost"`
	WinRate      float64   `gorm:"column:win_rate;default:0" json:"win_rate"`
	PlayTime     int       `gorm:"column:play_time;default:0" json:"play_time"` // seconds
	GameHistory  string    `gorm:"column:game_history;type:json" json:"game_history"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}

// HistoryIDs decodes the game_history JSON array of game ids.
func (u *User) HistoryIDs() []int64 {
	if u.GameHistory == "" {
		return nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(u.GameHistory), &ids); err != nil {
		return nil
	}
	return ids
}

// EncodeHistory encodes a game id list into the stored JSON form.
func EncodeHistory(ids []int64) string {
	if ids == nil {
		ids = []int64{}
	}
	data, _ := json.Marshal(ids)
	return string(data)
}

// Game represents a pong game row. The primary key is the in-memory
// RoomId (1..10^6, collision-checked), not an auto-increment.
type Game struct {
	ID           int64          `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	Mode         string         `gorm:"column:mode;type:varchar(16);not null" json:"mode"`
	Status       string         `gorm:"column:status;type:varchar(16);default:WAITING" json:"status"`
	P1ID         int64          `gorm:"column:p1_id;not null;index:idx_game_p1" json:"p1_id"`
	P2ID         *int64         `gorm:"column:p2_id;index:idx_game_p2" json:"p2_id,omitempty"`
	P1Score      int            `gorm:"column:p1_score;default:0" json:"p1_score"`
	P2Score      int            `gorm:"column:p2_score;default:0" json:"p2_score"`
	WinnerID     *int64         `gorm:"column:winner_id" json:"winner_id,omitempty"`
	Forfeit      bool           `gorm:"column:forfeit;default:false" json:"forfeit"`
	Duration     int            `gorm:"column:duration;default:0" json:"duration"` // seconds
	TournamentID *int64         `gorm:"column:tournament_id;index:idx_game_tournament" json:"tournament_id,omitempty"`
	Round        *int           `gorm:"column:round" json:"round,omitempty"`
	MatchID      *string        `gorm:"column:match_id;type:varchar(32)" json:"match_id,omitempty"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	CompletedAt  *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	DeletedAt    gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

// TableName specifies the table name for Game model
func (Game) TableName() string {
	return "games"
}

// Tournament represents a single-elimination tournament.
type Tournament struct {
	ID           int64          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name         string         `gorm:"column:name;type:varchar(100);not null" json:"name"`
	CreatorID    int64          `gorm:"column:creator_id;not null;index:idx_creator" json:"creator_id"`
	BracketType  string         `gorm:"column:bracket_type;type:varchar(32);default:single_elimination" json:"bracket_type"`
	Status       string         `gorm:"column:status;type:varchar(16);default:REGISTRATION" json:"status"`
	MaxPlayers   int            `gorm:"column:max_players;not null" json:"max_players"`
	TotalRounds  int            `gorm:"column:total_rounds;not null" json:"total_rounds"`
	CurrentRound int            `gorm:"column:current_round;default:0" json:"current_round"`
	WinnerID     *int64         `gorm:"column:winner_id" json:"winner_id,omitempty"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	StartedAt    *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt  *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	DeletedAt    gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

// TableName specifies the table name for Tournament model
func (Tournament) TableName() string {
	return "tournaments"
}

// TournamentPlayer represents a registered player and their seed.
type TournamentPlayer struct {
	ID           int64          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TournamentID int64          `gorm:"column:tournament_id;not null;index:idx_tp_tournament;uniqueIndex:unique_tournament_player" json:"tournament_id"`
	UserID       int64          `gorm:"column:user_id;not null;uniqueIndex:unique_tournament_player" json:"user_id"`
	Seed         *int           `gorm:"column:seed" json:"seed,omitempty"`
	RegisteredAt time.Time      `gorm:"column:registered_at;autoCreateTime" json:"registered_at"`
	DeletedAt    gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

// TableName specifies the table name for TournamentPlayer model
func (TournamentPlayer) TableName() string {
	return "tournament_players"
}

// TournamentMatch represents one bracket slot. MatchID is "T{t}-R{r}-M{n}".
type TournamentMatch struct {
	ID           int64          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TournamentID int64          `gorm:"column:tournament_id;not null;index:idx_tm_tournament" json:"tournament_id"`
	MatchID      string         `gorm:"column:match_id;type:varchar(32);uniqueIndex;not null" json:"match_id"`
	Round        int            `gorm:"column:round;not null" json:"round"`
	MatchNumber  int            `gorm:"column:match_number;not null" json:"match_number"`
	P1ID         *int64         `gorm:"column:p1_id" json:"p1_id,omitempty"`
	P2ID         *int64         `gorm:"column:p2_id" json:"p2_id,omitempty"`
	WinnerID     *int64         `gorm:"column:winner_id" json:"winner_id,omitempty"`
	GameID       *int64         `gorm:"column:game_id;index:idx_tm_game" json:"game_id,omitempty"`
	Status       string         `gorm:"column:status;type:varchar(16);default:pending" json:"status"`
	DeletedAt    gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

// TableName specifies the table name for TournamentMatch model
func (TournamentMatch) TableName() string {
	return "tournament_matches"
}
