package game

import (
	"log"
	"math"

	"pong-platform/backend/internal/models"
)

// tick advances the simulation by one fixed step. It runs only on the room's
// run goroutine.
func (r *Room) tick() {
	now := r.now()

	// Expired reconnect windows forfeit the absent player.
	if r.p1Disc && now.Sub(r.p1DiscAt) >= ReconnectWindow {
		r.p2Score = WinScore
		r.forfeit = true
		r.finish()
		return
	}
	if r.p2Disc && now.Sub(r.p2DiscAt) >= ReconnectWindow {
		r.p1Score = WinScore
		r.forfeit = true
		r.finish()
		return
	}

	// A room nobody holds anymore stops simulating. A disconnected player
	// inside their window still holds their seat.
	if r.abandoned() {
		r.finishAbandoned()
		return
	}

	r.movePaddles()
	r.stepBall()

	if r.Status() != models.StatusInProgress {
		return
	}

	r.publishSnapshot()
	r.emitToRoom("game-update", r.Snapshot())
}

// abandoned reports whether no human side is attached to the room.
func (r *Room) abandoned() bool {
	r.metaMu.RLock()
	p1, p2, hasP2 := r.p1, r.p2, r.hasP2
	r.metaMu.RUnlock()

	holds := func(p Player, disc bool) bool {
		if p.IsAI {
			return false
		}
		return disc || r.stillBound(p.UserID, r.id)
	}

	if holds(p1, r.p1Disc) {
		return false
	}
	if hasP2 && holds(p2, r.p2Disc) {
		return false
	}
	return true
}

// movePaddles applies the held directions, clamped to the field. A side
// whose player is disconnected stays put rather than drifting on its last
// held direction.
func (r *Room) movePaddles() {
	r.prevPadL, r.prevPadR = r.paddleL, r.paddleR

	if !r.p1Disc {
		switch r.dirL {
		case DirUp:
			r.paddleL -= PaddleSpeed
		case DirDown:
			r.paddleL += PaddleSpeed
		}
	}
	if !r.p2Disc {
		switch r.dirR {
		case DirUp:
			r.paddleR -= PaddleSpeed
		case DirDown:
			r.paddleR += PaddleSpeed
		}
	}

	r.paddleL = clamp(r.paddleL, 0, PaddleMaxY)
	r.paddleR = clamp(r.paddleR, 0, PaddleMaxY)
}

// stepBall decays, moves and collides the ball, then resolves scoring.
func (r *Room) stepBall() {
	r.ballVX *= SpeedDecay
	r.ballVY *= SpeedDecay

	// A ball that has bled off nearly all its speed gets re-served
	// instead of crawling forever.
	if math.Hypot(r.ballVX, r.ballVY) < MinBallSpeed {
		r.serve(0)
		return
	}

	r.prevBallX, r.prevBallY = r.ballX, r.ballY
	r.ballX += r.ballVX
	r.ballY += r.ballVY

	// Top and bottom walls.
	if r.ballY-BallRadius < 0 {
		r.ballY = BallRadius
		r.ballVY = -r.ballVY
	} else if r.ballY+BallRadius > FieldSize {
		r.ballY = FieldSize - BallRadius
		r.ballVY = -r.ballVY
	}

	r.collideLeft()
	r.collideRight()

	// Goals.
	if r.ballX < -BallRadiusX {
		r.score(2)
	} else if r.ballX > FieldSize+BallRadiusX {
		r.score(1)
	}
}

// collideLeft bounces the ball off the left paddle's inner face. The check
// is swept: it catches the ball even when one step carries it through the
// paddle plane.
func (r *Room) collideLeft() {
	if r.ballVX >= 0 {
		return
	}
	prevEdge := r.prevBallX - BallRadiusX
	curEdge := r.ballX - BallRadiusX
	if prevEdge < LeftPaddleX || curEdge >= LeftPaddleX {
		return
	}

	t := (prevEdge - LeftPaddleX) / (prevEdge - curEdge)
	yAtCross := r.prevBallY + (r.ballY-r.prevBallY)*t
	if yAtCross < r.paddleL-Tolerance || yAtCross > r.paddleL+PaddleHeight+Tolerance {
		return
	}

	padVel := r.paddleL - r.prevPadL
	r.bounce(1, yAtCross, r.paddleL, padVel)
	r.ballX = LeftPaddleX + BallRadiusX
}

// collideRight mirrors collideLeft for the right paddle.
func (r *Room) collideRight() {
	if r.ballVX <= 0 {
		return
	}
	prevEdge := r.prevBallX + BallRadiusX
	curEdge := r.ballX + BallRadiusX
	if prevEdge > RightPaddleX || curEdge <= RightPaddleX {
		return
	}

	t := (RightPaddleX - prevEdge) / (curEdge - prevEdge)
	yAtCross := r.prevBallY + (r.ballY-r.prevBallY)*t
	if yAtCross < r.paddleR-Tolerance || yAtCross > r.paddleR+PaddleHeight+Tolerance {
		return
	}

	padVel := r.paddleR - r.prevPadR
	r.bounce(-1, yAtCross, r.paddleR, padVel)
	r.ballX = RightPaddleX - BallRadiusX
}

// bounce computes the outgoing velocity after a paddle hit. dir is +1 off
// the left paddle, -1 off the right. Contact point steers the angle, paddle
// motion feeds speed and bends the vertical component.
func (r *Room) bounce(dir float64, yAtCross, padY, padVel float64) {
	relative := (yAtCross - (padY + PaddleHeight/2)) / (PaddleHeight / 2)
	relative = clamp(relative, -1, 1)
	angle := relative * Spin * BounceMaxAngle

	speed := math.Hypot(r.ballVX, r.ballVY)
	speed = speed*SpeedupFactor + math.Abs(padVel)*PaddleMomentum
	if speed > MaxBallSpeed {
		speed = MaxBallSpeed
	}
	if speed < InitialBallSpeed {
		speed = InitialBallSpeed
	}

	r.ballVX = dir * math.Cos(angle) * speed
	r.ballVY = math.Sin(angle)*speed + padVel*PaddleInfluence
	r.ballVY += (r.rng.Float64()*2 - 1) * VelocityNoise

	// Never let the horizontal component stall out into a vertical rally.
	if math.Abs(r.ballVX) < MinBallSpeed {
		r.ballVX = dir * InitialBallSpeed
	}
}

// score credits one side, ends the game at the winning score, or serves the
// next point.
func (r *Room) score(side int) {
	if side == 1 {
		r.p1Score++
	} else {
		r.p2Score++
	}

	if r.p1Score >= WinScore || r.p2Score >= WinScore {
		r.finish()
		return
	}

	r.serve(0)
}

// serve places the ball at center with a fresh velocity. dir picks the side
// the ball travels toward (+1 right, -1 left); zero means a coin flip.
func (r *Room) serve(dir float64) {
	if dir == 0 {
		if r.rng.Intn(2) == 0 {
			dir = 1
		} else {
			dir = -1
		}
	}

	angle := (r.rng.Float64()*2 - 1) * ServeMaxAngle
	r.ballX = FieldSize / 2
	r.ballY = FieldSize / 2
	r.prevBallX, r.prevBallY = r.ballX, r.ballY
	r.ballVX = dir * math.Cos(angle) * InitialBallSpeed
	r.ballVY = math.Sin(angle) * InitialBallSpeed
}

// finish moves the room to FINISHED, lets clients observe the terminal
// state, then hands the result to the lifecycle layer. Winner is the higher
// score; p1 takes a dead-even tie.
func (r *Room) finish() {
	r.metaMu.Lock()
	if r.status != models.StatusInProgress {
		r.metaMu.Unlock()
		return
	}
	r.status = models.StatusFinished
	p1, p2 := r.p1, r.p2
	startedAt := r.startedAt
	r.metaMu.Unlock()

	winner, loser := p1, p2
	if r.p2Score > r.p1Score {
		winner, loser = p2, p1
	}

	r.publishSnapshot()

	r.emitToRoom("game-ended", map[string]interface{}{
		"gameId":   r.id,
		"winnerId": winner.UserID,
		"p1Score":  r.p1Score,
		"p2Score":  r.p2Score,
		"forfeit":  r.forfeit,
	})

	log.Printf("[ROOM] Game %d finished %d-%d, winner %d", r.id, r.p1Score, r.p2Score, winner.UserID)

	if r.onEnd != nil {
		r.onEnd(&Result{
			GameID:    r.id,
			Mode:      r.mode,
			P1:        p1,
			P2:        p2,
			P1Score:   r.p1Score,
			P2Score:   r.p2Score,
			WinnerID:  winner.UserID,
			LoserID:   loser.UserID,
			Forfeit:   r.forfeit,
			StartedAt: startedAt,
			Duration:  r.now().Sub(startedAt),
			Link:      r.link,
		})
	}
}

// finishAbandoned ends a room both players walked away from. Nobody is
// listening, so no terminal event is emitted; the result is still recorded.
func (r *Room) finishAbandoned() {
	r.metaMu.Lock()
	if r.status != models.StatusInProgress {
		r.metaMu.Unlock()
		return
	}
	r.status = models.StatusFinished
	p1, p2 := r.p1, r.p2
	startedAt := r.startedAt
	r.metaMu.Unlock()

	winner, loser := p1, p2
	if r.p2Score > r.p1Score {
		winner, loser = p2, p1
	}

	r.publishSnapshot()

	log.Printf("[ROOM] Game %d abandoned at %d-%d", r.id, r.p1Score, r.p2Score)

	if r.onEnd != nil {
		r.onEnd(&Result{
			GameID:    r.id,
			Mode:      r.mode,
			P1:        p1,
			P2:        p2,
			P1Score:   r.p1Score,
			P2Score:   r.p2Score,
			WinnerID:  winner.UserID,
			LoserID:   loser.UserID,
			Abandoned: true,
			StartedAt: startedAt,
			Duration:  r.now().Sub(startedAt),
			Link:      r.link,
		})
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
