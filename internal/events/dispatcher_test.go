package events

import (
	"encoding/json"
	"testing"

	"pong-platform/backend/internal/db"
	"pong-platform/backend/internal/hub"
	"pong-platform/backend/internal/lifecycle"
	"pong-platform/backend/internal/models"
	"pong-platform/backend/internal/store"
	"pong-platform/backend/internal/tournament"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *gorm.DB, int64) {
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
	st := store.New(gdb)

	user := &models.User{Username: "alice", Email: "alice@test.local", PasswordHash: "x"}
	if err := st.CreateUser(user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	h := hub.New(nil, nil)
	games := lifecycle.New(st, h, nil, 0)
	tournaments := tournament.New(st, h, games, nil)

	return New(h, games, tournaments), gdb, user.ID
}

func TestTableCoversTheProtocol(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	expected := []string{
		"game:join-matchmaking",
		"game:create-private",
		"game:join-private",
		"game:create-local",
		"game:create-ai",
		"game:move",
		"game:leave",
		"game:forfeit",
		"game:rejoin",
		"game:spectate",
		"game:stop-spectate",
		"tournament:create",
		"tournament:join",
		"tournament:leave",
		"tournament:start",
		"tournament:cancel",
		"tournament:get",
		"tournament:get-bracket",
		"tournament:list-active",
		"tournament:my-tournaments",
	}
	for _, event := range expected {
		if _, ok := d.table[event]; !ok {
			t.Errorf("event %s missing from the table", event)
		}
	}
	if len(d.table) != len(expected) {
		t.Errorf("table has %d entries, want %d", len(d.table), len(expected))
	}
}

func TestUnknownEventDoesNotPanic(t *testing.T) {
	d, _, userID := newTestDispatcher(t)
	d.Handle(userID, hub.Message{Event: "game:launch-missiles"})
}

func TestMalformedPayloadRejected(t *testing.T) {
	d, _, userID := newTestDispatcher(t)
	d.Handle(userID, hub.Message{
		Event: "game:join-private",
		Data:  json.RawMessage(`{"gameId": "not-a-number"}`),
	})
	d.Handle(userID, hub.Message{
		Event: "game:move",
		Data:  json.RawMessage(`{"direction": 9}`),
	})
}

func TestTournamentCreateFlowsThrough(t *testing.T) {
	d, _, userID := newTestDispatcher(t)

	d.Handle(userID, hub.Message{
		Event: "tournament:create",
		Data:  json.RawMessage(`{"name": "Friday Cup", "maxPlayers": 4}`),
	})

	list, err := d.tournaments.ListActive()
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(list) != 1 || list[0].Name != "Friday Cup" {
		t.Fatalf("tournament not created via the table: %v", list)
	}
}

func TestMatchmakingFlowsThrough(t *testing.T) {
	d, gdb, userID := newTestDispatcher(t)

	d.Handle(userID, hub.Message{Event: "game:join-matchmaking"})

	// The queueing user got a persisted waiting game.
	var games []models.Game
	if err := gdb.Find(&games).Error; err != nil {
		t.Fatalf("list games: %v", err)
	}
	if len(games) != 1 || games[0].P1ID != userID || games[0].Status != models.StatusWaiting {
		t.Fatalf("unexpected games: %+v", games)
	}
}
