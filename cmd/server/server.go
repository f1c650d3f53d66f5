package main

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"pong-platform/backend/internal/auth"
	"pong-platform/backend/internal/db"
	"pong-platform/backend/internal/events"
	"pong-platform/backend/internal/hub"
	"pong-platform/backend/internal/lifecycle"
	"pong-platform/backend/internal/locks"
	"pong-platform/backend/internal/middleware"
	"pong-platform/backend/internal/ranking"
	"pong-platform/backend/internal/redis"
	"pong-platform/backend/internal/store"
	"pong-platform/backend/internal/tournament"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Server bundles every wired component and the HTTP router.
type Server struct {
	cfg         Config
	router      *gin.Engine
	hub         *hub.Hub
	ranking     *ranking.Service
	tournaments *tournament.Service
	redis       *redis.Client
}

// newServer wires the full platform: database, optional Redis, the hub, the
// game coordinator, ranking and tournaments.
func newServer(cfg Config) (*Server, error) {
	database, err := db.New(cfg.DB)
	if err != nil {
		return nil, err
	}
	st := store.New(database.DB)

	authService := auth.NewService(cfg.JWTSecret)

	// The AI opponent is a real user row so games and history can
	// reference it. Its password is random and never shared.
	passwordHash, err := authService.HashPassword(auth.RandomSecret())
	if err != nil {
		return nil, err
	}
	aiUser, err := st.EnsureAIUser(passwordHash)
	if err != nil {
		return nil, err
	}

	var redisClient *redis.Client
	var lockManager *locks.Manager
	var leaderboard *ranking.Leaderboard
	if cfg.RedisEnabled {
		redisClient, err = redis.New(cfg.Redis)
		if err != nil {
			log.Printf("[SERVER] Redis unavailable, running degraded: %v", err)
		} else {
			lockManager = locks.NewManager(redisClient.Client)
			leaderboard = ranking.NewLeaderboard(redisClient.Client)
		}
	}

	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig)
	h := hub.New(authService, limiter)

	rankingService := ranking.New(st, leaderboard)
	coordinator := lifecycle.New(st, h, rankingService, aiUser.ID)
	tournaments := tournament.New(st, h, coordinator, lockManager)
	tournaments.Subscribe()

	dispatcher := events.New(h, coordinator, tournaments)
	h.SetMessageHandler(dispatcher.Handle)
	h.SetDisconnectHandler(coordinator.HandleDisconnect)

	s := &Server{
		cfg:         cfg,
		hub:         h,
		ranking:     rankingService,
		tournaments: tournaments,
		redis:       redisClient,
	}
	s.router = s.buildRouter()
	return s, nil
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/ws", s.hub.HandleWebSocket)
	router.GET("/healthz", s.handleHealth)

	api := router.Group("/api")
	{
		api.GET("/leaderboard", s.handleLeaderboard)
		api.GET("/tournaments", s.handleTournaments)
		api.GET("/tournaments/:id", s.handleTournamentBracket)
	}

	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	status := gin.H{"status": "ok"}
	if s.redis != nil {
		if err := s.redis.HealthCheck(c.Request.Context()); err != nil {
			status["redis"] = "down"
		} else {
			status["redis"] = "ok"
		}
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleLeaderboard(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	users, err := s.ranking.TopPlayers(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load leaderboard"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": users})
}

func (s *Server) handleTournaments(c *gin.Context) {
	list, err := s.tournaments.ListActive()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load tournaments"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tournaments": list})
}

func (s *Server) handleTournamentBracket(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tournament id"})
		return
	}

	view, err := s.tournaments.Bracket(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tournament not found"})
		return
	}
	c.JSON(http.StatusOK, view)
}

// Run blocks serving HTTP until the process exits.
func (s *Server) Run() error {
	log.Printf("[SERVER] Listening on :%s", s.cfg.Port)
	return s.router.Run(":" + s.cfg.Port)
}
