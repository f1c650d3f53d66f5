package tournament

import (
	"context"
	"log"
	"time"

	"pong-platform/backend/internal/game"
	"pong-platform/backend/internal/models"
)

// handleGameEnded receives finished tournament games from the in-process
// bus. The publish happens on the room's goroutine, so the heavy lifting
// moves off it immediately.
func (s *Service) handleGameEnded(data interface{}) {
	res, ok := data.(*game.Result)
	if !ok || res.Link == nil {
		return
	}
	go s.processResult(res)
}

// processResult records a match outcome, advances the winner through the
// bracket and drives round transitions. A per-tournament lock serializes
// concurrent results from the same round.
func (s *Service) processResult(res *game.Result) {
	tournamentID := res.Link.TournamentID

	release, err := s.lockTournament(context.Background(), tournamentID)
	if err != nil {
		log.Printf("[TOURNAMENT] Could not lock tournament %d: %v", tournamentID, err)
		return
	}
	defer release()

	t, err := s.getTournament(tournamentID)
	if err != nil {
		log.Printf("[TOURNAMENT] Result for unknown tournament %d: %v", tournamentID, err)
		return
	}
	if t.Status != models.TournamentInProgress {
		return
	}

	matches, err := s.store.ListTournamentMatches(tournamentID)
	if err != nil {
		log.Printf("[TOURNAMENT] Failed to load matches for %d: %v", tournamentID, err)
		return
	}

	match := findMatch(matches, res.Link.MatchID)
	if match == nil {
		log.Printf("[TOURNAMENT] Result for unknown match %s", res.Link.MatchID)
		return
	}
	if match.Status == models.MatchCompleted {
		// A duplicate result; the first one won.
		return
	}

	winnerID := res.WinnerID
	if err := s.store.UpdateTournamentMatch(match.MatchID, map[string]interface{}{
		"status":    models.MatchCompleted,
		"winner_id": winnerID,
		"game_id":   res.GameID,
	}); err != nil {
		log.Printf("[TOURNAMENT] Failed to complete match %s: %v", match.MatchID, err)
		return
	}
	match.Status = models.MatchCompleted
	match.WinnerID = &winnerID

	log.Printf("[TOURNAMENT] Match %s won by %d", match.MatchID, winnerID)

	if match.Round < t.TotalRounds {
		s.advanceWinner(t, matches, match, winnerID)
	}

	s.evict(tournamentID)
	s.broadcastBracket(tournamentID, "tournament:match-completed")

	s.checkRoundCompletion(t, matches)
}

// advanceWinner seats the winner into the next round's slot and flips that
// match to ready once both seats are taken.
func (s *Service) advanceWinner(t *models.Tournament, matches []models.TournamentMatch, match *models.TournamentMatch, winnerID int64) {
	nextN, asP1 := nextSlot(match.MatchNumber)
	next := findSlot(matches, match.Round+1, nextN)
	if next == nil {
		return
	}

	patch := map[string]interface{}{}
	if asP1 {
		next.P1ID = &winnerID
		patch["p1_id"] = winnerID
	} else {
		next.P2ID = &winnerID
		patch["p2_id"] = winnerID
	}
	if next.P1ID != nil && next.P2ID != nil && next.Status == models.MatchPending {
		next.Status = models.MatchReady
		patch["status"] = models.MatchReady
	}

	if err := s.store.UpdateTournamentMatch(next.MatchID, patch); err != nil {
		log.Printf("[TOURNAMENT] Failed to advance into %s: %v", next.MatchID, err)
	}
}

// checkRoundCompletion closes out the round when its last match completes:
// either the tournament has a champion, or the next round starts after a
// short break.
func (s *Service) checkRoundCompletion(t *models.Tournament, matches []models.TournamentMatch) {
	round := t.CurrentRound
	for _, m := range matches {
		if m.Round == round && m.Status != models.MatchCompleted {
			return
		}
	}

	if round >= t.TotalRounds {
		final := findSlot(matches, t.TotalRounds, 1)
		if final == nil || final.WinnerID == nil {
			return
		}
		s.finish(t, *final.WinnerID)
		return
	}

	next := round + 1
	if err := s.store.UpdateTournament(t.ID, map[string]interface{}{
		"current_round": next,
	}); err != nil {
		log.Printf("[TOURNAMENT] Failed to bump round for %d: %v", t.ID, err)
		return
	}

	log.Printf("[TOURNAMENT] Tournament %d round %d complete, round %d in %s",
		t.ID, round, next, NextRoundDelay)
	s.notifier.Broadcast("tournament:round-completed", map[string]interface{}{
		"tournamentId": t.ID,
		"round":        round,
	})

	tournamentID := t.ID
	time.AfterFunc(NextRoundDelay, func() {
		s.startRoundMatches(tournamentID, next)
	})
}

func (s *Service) finish(t *models.Tournament, winnerID int64) {
	completedAt := s.now()
	if err := s.store.UpdateTournament(t.ID, map[string]interface{}{
		"status":       models.TournamentFinished,
		"winner_id":    winnerID,
		"completed_at": completedAt,
	}); err != nil {
		log.Printf("[TOURNAMENT] Failed to finish tournament %d: %v", t.ID, err)
		return
	}

	s.evict(t.ID)
	s.notifier.Broadcast("tournament:completed", map[string]interface{}{
		"tournamentId": t.ID,
		"winnerId":     winnerID,
	})
	log.Printf("[TOURNAMENT] Tournament %d won by %d", t.ID, winnerID)
}

func findMatch(matches []models.TournamentMatch, matchID string) *models.TournamentMatch {
	for i := range matches {
		if matches[i].MatchID == matchID {
			return &matches[i]
		}
	}
	return nil
}

func findSlot(matches []models.TournamentMatch, round, matchNumber int) *models.TournamentMatch {
	for i := range matches {
		if matches[i].Round == round && matches[i].MatchNumber == matchNumber {
			return &matches[i]
		}
	}
	return nil
}
