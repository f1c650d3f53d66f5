package game

import (
	"math"
	"time"
)

// Simulation timing
const (
	// TickInterval is the fixed simulation step (nominal 100 Hz). The
	// simulation advances exactly one step per invocation regardless of
	// real elapsed time.
	TickInterval = 10 * time.Millisecond

	// ReconnectWindow is how long a disconnected player keeps their seat
	// before the tick loop forfeits them.
	ReconnectWindow = 30 * time.Second

	// StartDelay separates the STARTING transition from the first tick.
	StartDelay = 3 * time.Second

	// DeleteDelay is how long a finished room lingers before removal.
	DeleteDelay = 30 * time.Second
)

// Field geometry. Coordinates live in a 100x100 unit square rendered at
// 16:9, so horizontal distances are scaled by the aspect ratio.
const (
	FieldSize   = 100.0
	BallRadius  = 1.0
	AspectRatio = 16.0 / 9.0

	PaddleHeight = 10.0
	PaddleWidth  = 1.0
	PaddleMaxY   = FieldSize - PaddleHeight // 90
	PaddleSpeed  = 1.0                      // units per tick

	LeftPaddleX  = 4.0  // inner face of the left paddle
	RightPaddleX = 96.0 // inner face of the right paddle
)

// BallRadiusX is the ball's horizontal half-width in field units.
var BallRadiusX = BallRadius * (9.0 / 16.0)

// Ball dynamics
const (
	InitialBallSpeed = 0.35
	MaxBallSpeed     = 1.2
	MinBallSpeed     = 0.1
	SpeedDecay       = 0.9995
	SpeedupFactor    = 1.08

	// PaddleMomentum feeds paddle velocity into ball speed on contact;
	// PaddleInfluence bends the outgoing vertical velocity.
	PaddleMomentum  = 0.4
	PaddleInfluence = 0.2

	// Tolerance widens the paddle's vertical span for collision checks.
	Tolerance = 3.0

	Spin          = 0.8
	VelocityNoise = 0.01
)

// BounceMaxAngle caps the paddle bounce angle; ServeMaxAngle caps serves.
var (
	BounceMaxAngle = math.Pi / 3
	ServeMaxAngle  = math.Pi / 6
)

// Scoring
const (
	WinScore  = 11
	MaxRoomID = 1_000_000
)

// Paddle directions.
type Direction int

const (
	DirNone Direction = iota
	DirUp
	DirDown
)
