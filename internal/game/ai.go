package game

import (
	"math"
	"math/rand"
	"time"

	"pong-platform/backend/internal/models"
)

// AI pacing. The driver re-aims once per second and steers the paddle on a
// much finer interval, like a player holding and releasing a key.
const (
	aiDecideInterval = 1 * time.Second
	aiSteerInterval  = 50 * time.Millisecond
)

// aiProfile tunes how well the driver plays. Error is the magnitude of the
// aim offset (field units) sampled on every decision; deadband is how close
// the paddle must get before it stops chasing.
type aiProfile struct {
	Error    float64
	Deadband float64
}

var aiProfiles = map[string]aiProfile{
	"easy":   {Error: 35, Deadband: 8},
	"medium": {Error: 15, Deadband: 4},
	"hard":   {Error: 5, Deadband: 2},
}

// Driver plays one paddle of an AI room. It reads the published snapshot
// and feeds inputs through the same command path as a human.
type Driver struct {
	room    *Room
	userID  int64
	left    bool
	profile aiProfile
	rng     *rand.Rand
	target  float64
}

// StartAI launches a driver goroutine for whichever seat the AI user holds.
// Unknown difficulties fall back to medium. The driver exits on its own when
// the room leaves IN_PROGRESS.
func StartAI(room *Room, userID int64, difficulty string, seed int64) {
	profile, ok := aiProfiles[difficulty]
	if !ok {
		profile = aiProfiles["medium"]
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	p1, _, _ := room.Players()

	d := &Driver{
		room:    room,
		userID:  userID,
		left:    p1.IsAI && p1.UserID == userID,
		profile: profile,
		rng:     rand.New(rand.NewSource(seed)),
		target:  FieldSize / 2,
	}
	go d.run()
}

func (d *Driver) run() {
	decide := time.NewTicker(aiDecideInterval)
	defer decide.Stop()
	steer := time.NewTicker(aiSteerInterval)
	defer steer.Stop()

	d.aim(d.room.aiView())

	for {
		select {
		case <-d.room.Done():
			return
		case <-decide.C:
			view := d.room.aiView()
			if view.Status != models.StatusInProgress {
				return
			}
			d.aim(view)
		case <-steer.C:
			view := d.room.aiView()
			if view.Status != models.StatusInProgress {
				return
			}
			d.steer(view)
		}
	}
}

// aim predicts where the ball will cross the paddle plane and picks a new
// target, offset by the profile's aim error. A ball moving away parks the
// paddle at center.
func (d *Driver) aim(view stateView) {
	inbound := view.ballVX > 0
	if d.left {
		inbound = view.ballVX < 0
	}
	if !inbound {
		d.target = FieldSize / 2
		return
	}

	impact := predictImpactY(view.BallX, view.BallY, view.ballVX, view.ballVY, d.left)
	impact += (d.rng.Float64()*2 - 1) * d.profile.Error
	d.target = clamp(impact, 0, FieldSize)
}

// steer holds the paddle's direction toward the current target, releasing
// inside the deadband.
func (d *Driver) steer(view stateView) {
	pad := view.PaddleRight
	if d.left {
		pad = view.PaddleLeft
	}
	center := pad + PaddleHeight/2
	diff := d.target - center

	dir := DirNone
	if diff < -d.profile.Deadband {
		dir = DirUp
	} else if diff > d.profile.Deadband {
		dir = DirDown
	}

	d.room.ApplyInput(d.userID, dir, 0)
}

// predictImpactY projects the ball to the chosen paddle plane, folding the
// trajectory at the top and bottom walls.
func predictImpactY(x, y, vx, vy float64, left bool) float64 {
	var steps float64
	if left {
		if vx >= 0 {
			return FieldSize / 2
		}
		steps = (x - (LeftPaddleX + BallRadiusX)) / -vx
	} else {
		if vx <= 0 {
			return FieldSize / 2
		}
		steps = (RightPaddleX - BallRadiusX - x) / vx
	}
	if steps < 0 {
		steps = 0
	}
	raw := y + vy*steps

	// Reflect into the playable band.
	lo, hi := BallRadius, FieldSize-BallRadius
	span := hi - lo
	folded := math.Mod(raw-lo, 2*span)
	if folded < 0 {
		folded += 2 * span
	}
	if folded > span {
		folded = 2*span - folded
	}
	return lo + folded
}
