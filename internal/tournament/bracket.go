package tournament

import (
	"fmt"

	"pong-platform/backend/internal/models"
)

// MatchKey formats the stable bracket slot id "T{t}-R{r}-M{n}".
func MatchKey(tournamentID int64, round, matchNumber int) string {
	return fmt.Sprintf("T%d-R%d-M%d", tournamentID, round, matchNumber)
}

// bracketSizeFor returns the smallest power of two that fits the player
// count, never below 2. An early start shrinks the bracket to this size.
func bracketSizeFor(playerCount int) int {
	size := 2
	for size < playerCount {
		size *= 2
	}
	return size
}

// roundsFor is log2 of the bracket size.
func roundsFor(bracketSize int) int {
	rounds := 0
	for n := bracketSize; n > 1; n /= 2 {
		rounds++
	}
	return rounds
}

// matchesInRound is the slot count for a round of the given bracket.
func matchesInRound(totalRounds, round int) int {
	return 1 << (totalRounds - round)
}

// nextSlot maps a match to the slot its winner feeds: next round's match
// number, and whether the winner lands in the p1 or p2 seat.
func nextSlot(matchNumber int) (nextMatch int, asP1 bool) {
	return (matchNumber + 1) / 2, matchNumber%2 == 1
}

// generateBracket builds the full match tree for a tournament. Players
// arrive in seed order; missing seats in round 1 become byes whose
// opponents advance immediately. Later-round slots start pending.
func generateBracket(t *models.Tournament, seeded []models.TournamentPlayer) []models.TournamentMatch {
	bracketSize := bracketSizeFor(len(seeded))
	totalRounds := roundsFor(bracketSize)

	// Seat seeds into round 1 in order; the tail stays empty.
	seats := make([]*int64, bracketSize)
	for i := range seeded {
		id := seeded[i].UserID
		seats[i] = &id
	}

	var matches []models.TournamentMatch
	for round := 1; round <= totalRounds; round++ {
		for n := 1; n <= matchesInRound(totalRounds, round); n++ {
			matches = append(matches, models.TournamentMatch{
				TournamentID: t.ID,
				MatchID:      MatchKey(t.ID, round, n),
				Round:        round,
				MatchNumber:  n,
				Status:       models.MatchPending,
			})
		}
	}

	byIndex := func(round, n int) *models.TournamentMatch {
		for i := range matches {
			if matches[i].Round == round && matches[i].MatchNumber == n {
				return &matches[i]
			}
		}
		return nil
	}

	for n := 1; n <= bracketSize/2; n++ {
		m := byIndex(1, n)
		m.P1ID = seats[(n-1)*2]
		m.P2ID = seats[(n-1)*2+1]
	}

	// Resolve byes, cascading auto-advances toward the final. An empty
	// seat counts as a bye only when no earlier match can still fill it.
	pendingFeeder := func(round, n int, p1Seat bool) bool {
		if round == 1 {
			return false
		}
		feederN := 2*n - 1
		if !p1Seat {
			feederN = 2 * n
		}
		feeder := byIndex(round-1, feederN)
		return feeder.Status == models.MatchReady || feeder.Status == models.MatchPending
	}

	for round := 1; round <= totalRounds; round++ {
		for n := 1; n <= matchesInRound(totalRounds, round); n++ {
			m := byIndex(round, n)
			p1Open := m.P1ID == nil && pendingFeeder(round, n, true)
			p2Open := m.P2ID == nil && pendingFeeder(round, n, false)

			var winner *int64
			switch {
			case m.P1ID != nil && m.P2ID != nil:
				m.Status = models.MatchReady
				continue
			case p1Open || p2Open:
				// Still waiting on a real result upstream.
				continue
			case m.P1ID != nil:
				winner = m.P1ID
			case m.P2ID != nil:
				winner = m.P2ID
			}

			// A bye, or a slot with two dead seats.
			if round == totalRounds {
				continue
			}
			m.WinnerID = winner
			m.Status = models.MatchCompleted
			if winner != nil {
				nextN, asP1 := nextSlot(n)
				next := byIndex(round+1, nextN)
				if asP1 {
					next.P1ID = winner
				} else {
					next.P2ID = winner
				}
			}
		}
	}

	return matches
}
