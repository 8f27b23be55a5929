package server

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"trade-scanner/src/interfaces"
	"trade-scanner/src/logger"
	"trade-scanner/src/models"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// FanOutServer
//
// Accepts downstream websocket connections, tracks per-connection
// subscriptions, heartbeats and evicts idle clients, and broadcasts
// setup and connection-state events to every open client.
// -----------------------------------------------------------------------------

type FanOutServer struct {
	Config *models.MConfig
	Logger *logger.Logger
	engine *gin.Engine

	Upstream  interfaces.IStreamController
	Setups    interfaces.ISetupSource
	Store     interfaces.ISetupStore
	Snapshots interfaces.ISnapshotSource
	Health    func() models.MHealthState

	// WebSocket clients
	clients    map[*Client]struct{}
	broadcast  chan []byte // Pre-serialized frames, queued
	register   chan *Client
	unregister chan *Client

	// Last connection state for initial snapshots
	lastState  models.MConnectionState
	stateMutex sync.RWMutex
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewFanOutServer(
	cfg *models.MConfig,
	log *logger.Logger,
	upstream interfaces.IStreamController,
	setups interfaces.ISetupSource,
	store interfaces.ISetupStore,
	snapshots interfaces.ISnapshotSource,
	health func() models.MHealthState,
) *FanOutServer {
	// Set Gin mode
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &FanOutServer{
		Config:    cfg,
		Logger:    log,
		engine:    gin.Default(),
		Upstream:  upstream,
		Setups:    setups,
		Store:     store,
		Snapshots: snapshots,
		Health:    health,
		clients:   make(map[*Client]struct{}),
		// Buffered channel to prevent lock/blocking on bursts
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		lastState:  models.MConnectionState{Status: models.ConnInitializing},
	}

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if s.originAllowed(origin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------

func (s *FanOutServer) setupRoutes() {
	// REST API endpoints
	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/api/state", s.getState)
	s.engine.GET("/api/setups", s.getSetups)
	s.engine.POST("/api/setups/:id/dismiss", s.dismissSetup)
	s.engine.GET("/api/snapshot/:symbol", s.getSnapshot)

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *FanOutServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting fan-out server on %s", addr)

	go s.runHub()

	return s.engine.Run(addr)
}

// -----------------------------------------------------------------------------

// originAllowed validates a declared origin against the allow-list. An
// empty list accepts any origin.
func (s *FanOutServer) originAllowed(origin string) bool {
	if len(s.Config.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.Config.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *FanOutServer) getHealth(c *gin.Context) {
	s.stateMutex.RLock()
	connections := len(s.clients)
	state := s.lastState
	s.stateMutex.RUnlock()

	health := models.MHealthState{}
	if s.Health != nil {
		health = s.Health()
	}

	c.JSON(200, gin.H{
		"status":      state.Status,
		"connections": connections,
		"health":      health,
	})
}

// -----------------------------------------------------------------------------

func (s *FanOutServer) getState(c *gin.Context) {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()

	c.JSON(200, s.lastState)
}

// -----------------------------------------------------------------------------

func (s *FanOutServer) getSetups(c *gin.Context) {
	symbol := c.Query("symbol")

	if c.Query("history") != "" && s.Store != nil {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
		if err != nil || limit <= 0 {
			limit = 100
		}
		setups, err := s.Store.ListSetups(symbol, limit)
		if err != nil {
			c.JSON(500, gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"setups": setups})
		return
	}

	var active []models.MSetup
	for _, setup := range s.Setups.ActiveSetups() {
		if symbol == "" || setup.Symbol == symbol {
			active = append(active, setup)
		}
	}
	c.JSON(200, gin.H{"setups": active})
}

// -----------------------------------------------------------------------------

func (s *FanOutServer) getSnapshot(c *gin.Context) {
	if s.Snapshots == nil {
		c.JSON(503, gin.H{"error": "snapshot source not configured"})
		return
	}

	snapshot, err := s.Snapshots.FetchSnapshot(c.Param("symbol"))
	if err != nil {
		c.JSON(502, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, snapshot)
}

// -----------------------------------------------------------------------------

func (s *FanOutServer) dismissSetup(c *gin.Context) {
	id := c.Param("id")
	if !s.Setups.DismissSetup(id, time.Now().UnixMilli()) {
		c.JSON(404, gin.H{"error": fmt.Sprintf("no live setup with id %s", id)})
		return
	}
	c.JSON(200, gin.H{"dismissed": id})
}
