package store

import (
	"errors"
	"testing"

	"pong-platform/backend/internal/db"
	"pong-platform/backend/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:?mode=memory"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(gdb)
}

func addUser(t *testing.T, st *GormStore, name string, played, won int) *models.User {
	t.Helper()
	u := &models.User{
		Username:     name,
		Email:        name + "@test.local",
		PasswordHash: "x",
		Score:        models.InitialScore,
		GamesPlayed:  played,
		GamesWon:     won,
	}
	if err := st.CreateUser(u); err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func TestUserRoundTrip(t *testing.T) {
	st := newTestStore(t)
	u := addUser(t, st, "alice", 0, 0)

	byID, err := st.GetUser(u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if byID.Username != "alice" || byID.Score != models.InitialScore {
		t.Fatalf("unexpected user: %+v", byID)
	}

	byEmail, err := st.GetUserByEmail("alice@test.local")
	if err != nil || byEmail.ID != u.ID {
		t.Fatalf("GetUserByEmail: %v", err)
	}

	if err := st.UpdateUser(u.ID, map[string]interface{}{"score": 1250}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	updated, _ := st.GetUser(u.ID)
	if updated.Score != 1250 {
		t.Fatalf("score = %d, want 1250", updated.Score)
	}

	if _, err := st.GetUser(99999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGameRowKeepsExplicitID(t *testing.T) {
	st := newTestStore(t)
	u := addUser(t, st, "alice", 0, 0)

	g := &models.Game{ID: 123456, Mode: models.ModePublic, Status: models.StatusWaiting, P1ID: u.ID}
	if err := st.CreateGame(g); err != nil {
		t.Fatalf("CreateGame: %v", err)
	}

	row, err := st.FindGame(123456)
	if err != nil {
		t.Fatalf("FindGame: %v", err)
	}
	if row.ID != 123456 {
		t.Fatalf("id = %d, want the room id", row.ID)
	}

	if err := st.UpdateGame(123456, map[string]interface{}{
		"status":    models.StatusFinished,
		"winner_id": u.ID,
	}); err != nil {
		t.Fatalf("UpdateGame: %v", err)
	}
	row, _ = st.FindGame(123456)
	if row.Status != models.StatusFinished || row.WinnerID == nil {
		t.Fatal("update not applied")
	}
}

func TestRankedUsersFiltersAndOrders(t *testing.T) {
	st := newTestStore(t)

	veteran := addUser(t, st, "veteran", 10, 8)
	st.UpdateUser(veteran.ID, map[string]interface{}{"score": 1400})
	rookie := addUser(t, st, "rookie", 1, 0)
	st.UpdateUser(rookie.ID, map[string]interface{}{"score": 1184})
	addUser(t, st, "lurker", 0, 0)

	ai, err := st.EnsureAIUser("hash")
	if err != nil {
		t.Fatalf("EnsureAIUser: %v", err)
	}
	st.UpdateUser(ai.ID, map[string]interface{}{"score": 9000, "games_played": 50})

	ranked, err := st.RankedUsers()
	if err != nil {
		t.Fatalf("RankedUsers: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("got %d ranked users, want 2", len(ranked))
	}
	if ranked[0].Username != "veteran" || ranked[1].Username != "rookie" {
		t.Fatalf("order = %s, %s", ranked[0].Username, ranked[1].Username)
	}
}

func TestEnsureAIUserIsIdempotent(t *testing.T) {
	st := newTestStore(t)

	first, err := st.EnsureAIUser("hash")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := st.EnsureAIUser("other-hash")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.ID != second.ID {
		t.Fatal("AI user created twice")
	}
	if first.Email != models.AIUserEmail {
		t.Fatalf("email = %s, want %s", first.Email, models.AIUserEmail)
	}
}

func TestTournamentMatchAddressedByMatchID(t *testing.T) {
	st := newTestStore(t)

	tn := &models.Tournament{Name: "Cup", CreatorID: 1, MaxPlayers: 4, TotalRounds: 2}
	if err := st.CreateTournament(tn); err != nil {
		t.Fatalf("CreateTournament: %v", err)
	}

	m := &models.TournamentMatch{
		TournamentID: tn.ID,
		MatchID:      "T1-R1-M1",
		Round:        1,
		MatchNumber:  1,
		Status:       models.MatchReady,
	}
	if err := st.CreateTournamentMatch(m); err != nil {
		t.Fatalf("CreateTournamentMatch: %v", err)
	}

	if err := st.UpdateTournamentMatch("T1-R1-M1", map[string]interface{}{
		"status": models.MatchCompleted,
	}); err != nil {
		t.Fatalf("UpdateTournamentMatch: %v", err)
	}

	matches, err := st.ListTournamentMatches(tn.ID)
	if err != nil {
		t.Fatalf("ListTournamentMatches: %v", err)
	}
	if len(matches) != 1 || matches[0].Status != models.MatchCompleted {
		t.Fatal("match not updated by match id")
	}
}

func TestUserTournamentsOnlyTheirs(t *testing.T) {
	st := newTestStore(t)
	alice := addUser(t, st, "alice", 0, 0)
	bob := addUser(t, st, "bob", 0, 0)

	mine := &models.Tournament{Name: "Mine", CreatorID: alice.ID, MaxPlayers: 4, TotalRounds: 2}
	other := &models.Tournament{Name: "Other", CreatorID: bob.ID, MaxPlayers: 4, TotalRounds: 2}
	st.CreateTournament(mine)
	st.CreateTournament(other)
	st.CreateTournamentPlayer(&models.TournamentPlayer{TournamentID: mine.ID, UserID: alice.ID})
	st.CreateTournamentPlayer(&models.TournamentPlayer{TournamentID: other.ID, UserID: bob.ID})

	list, err := st.UserTournaments(alice.ID)
	if err != nil {
		t.Fatalf("UserTournaments: %v", err)
	}
	if len(list) != 1 || list[0].Name != "Mine" {
		t.Fatalf("got %d tournaments", len(list))
	}
}
