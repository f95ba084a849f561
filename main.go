// Command tabletop starts the tabletop session server.
//
// It supports two modes:
//  1. "server" (default) – runs the HTTP server exposing the REST API, the WebSocket endpoint and an /mcp endpoint
//  2. "stdio-mcp" – runs an MCP stdio server and spins up an internal HTTP API if none is available
//
// Flags select the config file, debug logging and optional ngrok tunneling
// for easy external access during development.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/tabletop/api"
	"github.com/wricardo/tabletop/game/config"
	"github.com/wricardo/tabletop/game/service"
	"github.com/wricardo/tabletop/game/session"
	"github.com/wricardo/tabletop/transport/mcp"
	"github.com/wricardo/tabletop/transport/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Tabletop Server"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: error loading .env file: %v\n", err)
	}

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

// newApp builds the command tree; "server" also runs when no command is given
func newApp() *cli.Command {
	return &cli.Command{
		Name:    "tabletop",
		Usage:   AppName,
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file (default: tabletop.yaml if present)",
				Sources: cli.EnvVars("TABLETOP_CONFIG"),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
			&cli.BoolFlag{
				Name:  "ngrok",
				Usage: "expose the server through an ngrok tunnel",
			},
		},
		Commands: []*cli.Command{
			{
				Name:    "server",
				Aliases: []string{"http"},
				Usage:   "run the HTTP server with REST API, WebSocket and MCP endpoint",
				Action:  runServer,
			},
			{
				Name:    "stdio-mcp",
				Aliases: []string{"mcp-stdio", "mcp"},
				Usage:   "run an MCP stdio server backed by the HTTP API",
				Action:  runStdioMCP,
			},
			{
				Name:   "validate",
				Usage:  "check the configuration and print the effective values",
				Action: runValidate,
			},
		},
		Action: runServer,
	}
}

// loadConfig reads the config file and applies command-line overrides
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if cmd.Bool("debug") {
		cfg.Logging.Level = "debug"
	}
	if cmd.Bool("ngrok") {
		cfg.Ngrok.Enabled = true
	}
	return cfg, nil
}

// runValidate loads the configuration the same way the server would and reports problems
func runValidate(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	w := cmd.Root().Writer
	fmt.Fprintf(w, "✅ configuration is valid\n")
	fmt.Fprintf(w, "  listen:          %s\n", cfg.Addr())
	fmt.Fprintf(w, "  patch interval:  %s\n", cfg.Room.PatchInterval)
	fmt.Fprintf(w, "  reconnect grace: %s\n", cfg.Room.ReconnectGrace)
	fmt.Fprintf(w, "  max clients:     %d\n", cfg.Room.MaxClients)
	fmt.Fprintf(w, "  default life:    %d\n", cfg.Room.DefaultLife)
	if cfg.Redis.Enabled {
		fmt.Fprintf(w, "  redis directory: %s (db %d)\n", cfg.Redis.Address, cfg.Redis.DB)
	} else {
		fmt.Fprintf(w, "  redis directory: disabled\n")
	}
	if cfg.Server.HealthAddress != "" {
		fmt.Fprintf(w, "  grpc health:     %s\n", cfg.Server.HealthAddress)
	}
	return nil
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

// services holds what both modes share
type services struct {
	cfg    *config.Config
	logger *zap.Logger
	rooms  *session.Manager
	game   service.GameService
	redis  *redis.Client
}

// initializeServices wires the room directory, the room manager and the game service
func initializeServices(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*services, error) {
	s := &services{cfg: cfg, logger: logger}

	var directory session.Directory
	if cfg.Redis.Enabled {
		rdb, err := session.DialRedis(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s.redis = rdb
		directory = session.NewRedisDirectory(rdb, cfg.Redis.ListingTTL)
		logger.Info("room directory backed by redis", zap.String("address", cfg.Redis.Address))
	}

	s.rooms = session.NewManager(cfg.SessionConfig(), directory, logger)
	s.game = service.NewGameService(s.rooms, logger)
	return s, nil
}

// Close disposes every room and releases connections
func (s *services) Close() {
	s.rooms.Close()
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
}

// newHandler assembles the REST API, the WebSocket endpoint and /mcp
func newHandler(s *services, hub *websocket.Hub, baseURL string) http.Handler {
	apiServer := api.NewServer(s.game, hub, s.logger)
	apiServer.Handle("/mcp", mcp.NewClient(baseURL, s.logger))
	return apiServer
}

// roomCleanupRoutine periodically disposes rooms nobody has used within maxAge
func roomCleanupRoutine(ctx context.Context, rooms *session.Manager, interval, maxAge time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := rooms.CleanupIdleRooms(maxAge); removed > 0 {
				logger.Info("cleaned up idle rooms", zap.Int("removed", removed))
			}
		}
	}
}

// startHealthServer serves grpc.health.v1 on addr
func startHealthServer(addr string, logger *zap.Logger) (*grpc.Server, *health.Server, net.Addr, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to listen for health checks: %w", err)
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	go func() {
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("health server error", zap.Error(err))
		}
	}()
	return grpcServer, healthServer, lis.Addr(), nil
}

// runServer starts the HTTP server, plus the health service and an ngrok
// tunnel when configured, and blocks until a shutdown signal arrives.
func runServer(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svcs, err := initializeServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svcs.Close()

	var grpcServer *grpc.Server
	var healthServer *health.Server
	if cfg.Server.HealthAddress != "" {
		var healthAddr net.Addr
		grpcServer, healthServer, healthAddr, err = startHealthServer(cfg.Server.HealthAddress, logger)
		if err != nil {
			return err
		}
		logger.Info("gRPC health service listening", zap.String("address", healthAddr.String()))
	}

	hub := websocket.NewHub(svcs.rooms, logger)
	go hub.Run(ctx)

	addr := cfg.Addr()
	handler := newHandler(svcs, hub, "http://"+addr)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var wg sync.WaitGroup
	serveErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("HTTP server listening",
			zap.String("address", addr),
			zap.String("websocket", fmt.Sprintf("ws://%s/ws?room=<room_id>&name=<player>", addr)),
			zap.String("mcp", fmt.Sprintf("http://%s/mcp", addr)))

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		roomCleanupRoutine(ctx, svcs.rooms, cfg.Server.CleanupInterval, cfg.Server.IdleRoomTimeout, logger)
	}()

	if cfg.Ngrok.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrok(ctx, cfg.Ngrok, handler, logger)
		}()
	}

	logger.Info("server started",
		zap.String("version", Version),
		zap.Int("max_clients", cfg.Room.MaxClients),
		zap.Duration("patch_interval", cfg.Room.PatchInterval),
		zap.Duration("reconnect_grace", cfg.Room.ReconnectGrace))

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-serveErr:
		logger.Error("HTTP server failed", zap.Error(runErr))
		stop()
	}

	if healthServer != nil {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	wg.Wait()
	logger.Info("server stopped")
	return runErr
}

// runNgrok serves handler through an ngrok tunnel until ctx ends
func runNgrok(ctx context.Context, cfg config.NgrokConfig, handler http.Handler, logger *zap.Logger) {
	if cfg.AuthToken == "" {
		logger.Warn("ngrok enabled but no auth token provided (set NGROK_AUTHTOKEN or ngrok.auth_token)")
		return
	}

	var tunnel ngrokConfig.Tunnel
	if cfg.Domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(cfg.Domain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(cfg.AuthToken))
	if err != nil {
		logger.Error("failed to start ngrok tunnel", zap.Error(err))
		return
	}

	url := tun.URL()
	logger.Info("ngrok tunnel established",
		zap.String("url", url),
		zap.String("websocket", url+"/ws?room=<room_id>&name=<player>"),
		zap.String("mcp", url+"/mcp"))

	tunnelServer := &http.Server{Handler: handler, ReadHeaderTimeout: 15 * time.Second}
	go func() {
		<-ctx.Done()
		tunnelServer.Close()
	}()
	if err := tunnelServer.Serve(tun); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("ngrok server error", zap.Error(err))
	}
	logger.Info("ngrok tunnel closed")
}

// externalAPIAvailable reports whether a tabletop server already answers at baseURL
func externalAPIAvailable(baseURL string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// runStdioMCP runs an MCP stdio server. It reuses the API of a server
// already running on the configured port; otherwise it starts an internal
// HTTP API on a random loopback port and targets that.
func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	baseURL := "http://" + cfg.Addr()
	if externalAPIAvailable(baseURL) {
		logger.Info("using external API server for MCP", zap.String("url", baseURL))
	} else {
		logger.Info("no external API server found, starting internal HTTP server")

		svcs, err := initializeServices(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer svcs.Close()

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}

		hubCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		hub := websocket.NewHub(svcs.rooms, logger)
		go hub.Run(hubCtx)

		baseURL = "http://" + listener.Addr().String()
		httpServer := &http.Server{
			Handler:           api.NewServer(svcs.game, hub, logger),
			ReadHeaderTimeout: 15 * time.Second,
		}
		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("internal HTTP server error", zap.Error(err))
			}
		}()
		defer httpServer.Close()

		logger.Info("internal HTTP server started", zap.String("url", baseURL))
	}

	mcpClient := mcp.NewClient(baseURL, logger)
	logger.Info("MCP stdio server ready")

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}
