// Package main is the unified entry point for Agent Forge: one binary that
// wires the Event & Snapshot Store, Workspace Provisioner, Agent Manager,
// Polling Scheduler, Broadcast Hub, Terminal Bridge, and Connector Router
// together and exposes the small HTTP surface (a sub-agent accounting hook
// and a config hot-reload endpoint).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agentforge/agentforge/internal/agent"
	"github.com/agentforge/agentforge/internal/bridge"
	"github.com/agentforge/agentforge/internal/connector"
	"github.com/agentforge/agentforge/internal/gateway"
	"github.com/agentforge/agentforge/internal/hub"
	"github.com/agentforge/agentforge/internal/inference"
	"github.com/agentforge/agentforge/internal/platform/config"
	"github.com/agentforge/agentforge/internal/platform/logger"
	"github.com/agentforge/agentforge/internal/scheduler"
	"github.com/agentforge/agentforge/internal/store"
	"github.com/agentforge/agentforge/internal/term"
	"github.com/agentforge/agentforge/internal/workspace"
)

func main() {
	cfg, err := config.Load(os.Getenv("AGENTFORGE_CONFIG_DIR"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting agent forge")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventStore, err := store.Open(cfg.Database.Path)
	if err != nil {
		log.Error("failed to open event store", zap.Error(err))
		os.Exit(1)
	}
	defer eventStore.Close()

	var sandbox *workspace.DockerSandbox
	if cfg.Defaults.Sandbox == "docker" {
		sandbox, err = workspace.NewDockerSandbox("", log)
		if err != nil {
			log.Warn("docker sandbox unavailable, falling back to bare worktrees", zap.Error(err))
			sandbox = nil
		}
	}

	wsManager, err := workspace.New(cfg.Workspace, sandbox, log)
	if err != nil {
		log.Error("failed to initialize workspace manager", zap.Error(err))
		os.Exit(1)
	}

	multiplexer := term.New(log)
	engine := inference.New(inference.DefaultRuleset())
	broadcastHub := hub.New(log)
	terminalBridge := bridge.New(multiplexer, log)

	factories := map[string]connector.Factory{
		"telegram": connector.NewTelegramPlatform,
		"discord":  connector.NewDiscordPlatform,
	}

	agents := agent.New(agent.Deps{
		Config:      cfg,
		Multiplexer: multiplexer,
		Workspace:   wsManager,
		Store:       eventStore,
		Engine:      engine,
		Logger:      log,
		Hub:         broadcastHub,
	})

	router := connector.New(cfg, agents, factories, log)
	agents.SetNotifier(router)

	sched := scheduler.New(scheduler.Deps{
		Agents:   agents,
		Term:     multiplexer,
		Engine:   engine,
		Notifier: router,
		Store:    eventStore,
		Logger:   log,
		Interval: cfg.Defaults.PollInterval(),
	})

	if err := agents.Recover(ctx); err != nil {
		log.Warn("boot-time recovery scan failed", zap.Error(err))
	}

	if err := router.Start(ctx); err != nil {
		log.Warn("connector router failed to start, continuing without chat connectors", zap.Error(err))
	}

	if err := sched.Start(ctx); err != nil {
		log.Error("failed to start scheduler", zap.Error(err))
		os.Exit(1)
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	ginRouter := gin.New()
	ginRouter.Use(gin.Recovery())
	ginRouter.Use(corsMiddleware())

	ginRouter.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "agentforge"})
	})

	ginRouter.POST("/api/hooks/event", func(c *gin.Context) {
		handleHookEvent(c, agents, log)
	})

	ginRouter.POST("/api/config/reload", func(c *gin.Context) {
		handleConfigReload(c, cfg, router, agents, log)
	})

	ginRouter.GET("/ws/terminal/:session", gateway.NewTerminalHandler(terminalBridge, log))

	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, port),
		Handler:      ginRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("http server listening", zap.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down agent forge")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}

	// Shutdown order: scheduler first (stop producing transitions), then
	// connectors (stop producing inbound work), then the agents themselves,
	// and finally the store once nothing can write to it.
	if err := sched.Stop(); err != nil {
		log.Error("scheduler stop error", zap.Error(err))
	}
	if err := router.Stop(shutdownCtx); err != nil {
		log.Error("connector router stop error", zap.Error(err))
	}
	agents.StopAll(shutdownCtx)

	log.Info("agent forge stopped")
}

// corsMiddleware mirrors the permissive, locally-hosted-dashboard CORS
// policy the rest of this stack's HTTP surfaces use.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// hookEventRequest is the sub-agent accounting hook payload: a settings
// hook script posts here whenever a child/sub-agent process starts or
// finishes under a supervised agent.
type hookEventRequest struct {
	AgentID string `json:"agent_id" binding:"required"`
	Event   string `json:"event" binding:"required"` // SubagentStart | SubagentStop
}

func handleHookEvent(c *gin.Context, agents *agent.Manager, log *logger.Logger) {
	var req hookEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := agents.RecordSubAgentEvent(c.Request.Context(), req.AgentID, req.Event, ""); err != nil {
		log.Warn("failed to record sub-agent hook event", zap.String("agent_id", req.AgentID), zap.Error(err))
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

func handleConfigReload(c *gin.Context, cfg *config.Config, router *connector.Router, agents *agent.Manager, log *logger.Logger) {
	newCfg, err := config.Load(os.Getenv("AGENTFORGE_CONFIG_DIR"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := router.Reconcile(c.Request.Context(), newCfg); err != nil {
		log.Error("connector reconcile failed during reload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	agents.UpdateConfig(newCfg)
	*cfg = *newCfg
	log.Info("configuration reloaded")
	c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
}
