package ranking

import (
	"fmt"
	"log"
	"math"

	"pong-platform/backend/internal/game"
	"pong-platform/backend/internal/models"
	"pong-platform/backend/internal/store"
)

// KFactor is the base ELO adjustment per game.
const KFactor = 32

// Service applies game results to ratings and stats, and keeps the
// leaderboard cache warm.
type Service struct {
	store       store.Store
	leaderboard *Leaderboard
}

// New creates a ranking service. leaderboard may be nil when Redis is not
// configured.
func New(st store.Store, leaderboard *Leaderboard) *Service {
	return &Service{store: st, leaderboard: leaderboard}
}

// Delta computes the floored rating movement for a win. The same delta is
// added to the winner and subtracted from the loser, so every rated game is
// zero-sum.
func Delta(winnerRating, loserRating int, multiplier float64) int {
	expected := 1.0 / (1.0 + math.Pow(10, float64(loserRating-winnerRating)/400.0))
	delta := int(math.Floor(KFactor * (1 - expected) * multiplier))
	if delta < 1 {
		delta = 1
	}
	return delta
}

// ApplyResult updates both players after a finished game.
//
// Rated modes are PUBLIC and TOURNAMENT. AI games update the human's stats
// and PRIVATE games both players' stats, but neither moves ratings; LOCAL
// and abandoned games touch nothing.
func (s *Service) ApplyResult(res *game.Result) error {
	if res.Abandoned || res.Mode == models.ModeLocal {
		return nil
	}

	if res.Mode == models.ModeAI {
		human := res.P1
		if human.IsAI {
			human = res.P2
		}
		won := res.WinnerID == human.UserID
		if err := s.updateStats(human.UserID, won, 0, res); err != nil {
			return err
		}
		return s.recomputeRanks()
	}

	if res.Mode == models.ModePrivate {
		if err := s.updateStats(res.WinnerID, true, 0, res); err != nil {
			return err
		}
		if err := s.updateStats(res.LoserID, false, 0, res); err != nil {
			return err
		}
		return s.recomputeRanks()
	}

	multiplier := 1.0
	if res.Link != nil {
		multiplier = s.tournamentMultiplier(res.Link)
	}

	winner, err := s.store.GetUser(res.WinnerID)
	if err != nil {
		return fmt.Errorf("load winner %d: %w", res.WinnerID, err)
	}
	loser, err := s.store.GetUser(res.LoserID)
	if err != nil {
		return fmt.Errorf("load loser %d: %w", res.LoserID, err)
	}

	delta := Delta(winner.Score, loser.Score, multiplier)

	if err := s.updateStats(winner.ID, true, delta, res); err != nil {
		return err
	}
	if err := s.updateStats(loser.ID, false, -delta, res); err != nil {
		return err
	}

	log.Printf("[RANKING] Game %d: %d +%d / %d -%d (x%.2f)",
		res.GameID, winner.ID, delta, loser.ID, delta, multiplier)

	return s.recomputeRanks()
}

// tournamentMultiplier scales rating movement with bracket depth: later
// rounds are worth up to 1.5x.
func (s *Service) tournamentMultiplier(link *game.TournamentLink) float64 {
	t, err := s.store.GetTournament(link.TournamentID)
	if err != nil || t.TotalRounds == 0 {
		return 1.0
	}
	return 1.0 + (float64(link.Round)/float64(t.TotalRounds))*0.5
}

// updateStats folds one result into a user row: rating, counters, win rate,
// play time and game history.
func (s *Service) updateStats(userID int64, won bool, ratingDelta int, res *game.Result) error {
	user, err := s.store.GetUser(userID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", userID, err)
	}

	played := user.GamesPlayed + 1
	gamesWon := user.GamesWon
	gamesLost := user.GamesLost
	if won {
		gamesWon++
	} else {
		gamesLost++
	}

	score := user.Score + ratingDelta
	if score < 0 {
		score = 0
	}

	history := append(user.HistoryIDs(), res.GameID)

	patch := map[string]interface{}{
		"score":        score,
		"games_played": played,
		"games_won":    gamesWon,
		"games_lost":   gamesLost,
		"win_rate":     float64(gamesWon) / float64(played),
		"play_time":    user.PlayTime + int(res.Duration.Seconds()),
		"game_history": models.EncodeHistory(history),
	}
	if err := s.store.UpdateUser(userID, patch); err != nil {
		return fmt.Errorf("update user %d: %w", userID, err)
	}

	if s.leaderboard != nil {
		s.leaderboard.Set(userID, score)
	}
	return nil
}

// recomputeRanks reassigns dense ranks over everyone with at least one game.
func (s *Service) recomputeRanks() error {
	users, err := s.store.RankedUsers()
	if err != nil {
		return err
	}
	for i, u := range users {
		rank := i + 1
		if u.Rank == rank {
			continue
		}
		if err := s.store.UpdateUser(u.ID, map[string]interface{}{"user_rank": rank}); err != nil {
			return err
		}
	}
	return nil
}

// TopPlayers returns the ranked user list, refreshing the cache as a side
// effect.
func (s *Service) TopPlayers(limit int) ([]models.User, error) {
	users, err := s.store.RankedUsers()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	if s.leaderboard != nil {
		s.leaderboard.Fill(users)
	}
	return users, nil
}
