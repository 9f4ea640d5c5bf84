package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/namechain-protocol/namechain/internal/api"
	"github.com/namechain-protocol/namechain/internal/keystore"
	"github.com/namechain-protocol/namechain/internal/ledger"
	"github.com/namechain-protocol/namechain/internal/miner"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("node exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	viper.SetConfigName("namechaind")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("node.port", 8080)
	viper.SetDefault("node.data_dir", "data")
	viper.SetDefault("node.cors_origins", []string{"*"})
	viper.SetDefault("node.rate_limit_rps", 20)
	viper.SetDefault("chain.name", "mainnet")
	viper.SetDefault("chain.version_flags", 1)
	viper.SetDefault("chain.difficulty", 16)
	viper.SetDefault("key.file", "")
	viper.SetDefault("key.passphrase", "")
	viper.SetDefault("miner.queue_size", 64)

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	dataDir := viper.GetString("node.data_dir")
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir %q: %w", dataDir, err)
	}

	// ── Node key ─────────────────────────────────────────────────────────────
	keyFile := viper.GetString("key.file")
	if keyFile == "" {
		keyFile = filepath.Join(dataDir, "node.key")
	}
	keys, err := keystore.LoadOrCreate(keyFile, viper.GetString("key.passphrase"))
	if err != nil {
		return fmt.Errorf("node key setup failed: %w", err)
	}
	logger.Info("node key ready",
		zap.String("file", keyFile),
		zap.String("pub_key", keys.Public().Short()),
	)

	// ── Ledger ───────────────────────────────────────────────────────────────
	startCtx := context.Background()
	ld, err := ledger.Open(startCtx, ledger.Config{
		Path:         filepath.Join(dataDir, "chain.db"),
		ChainName:    viper.GetString("chain.name"),
		VersionFlags: viper.GetUint32("chain.version_flags"),
	}, logger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer ld.Close() //nolint:errcheck

	if err := ld.Verify(startCtx); err != nil {
		logger.Warn("chain integrity check FAILED", zap.Error(err))
	} else {
		tipHash := ""
		if tip := ld.Tip(); tip != nil {
			tipHash = tip.Hash.Short()
		}
		logger.Info("chain verified",
			zap.String("chain_name", ld.ChainName()),
			zap.Uint64("height", ld.Height()),
			zap.String("tip", tipHash),
		)
	}
	miner.SetBlockHeight(ld.Height())

	// ── Miner ────────────────────────────────────────────────────────────────
	m := miner.New(ld, keys, miner.Config{
		Difficulty: viper.GetUint32("chain.difficulty"),
		QueueSize:  viper.GetInt("miner.queue_size"),
	}, logger)

	minerCtx, stopMiner := context.WithCancel(context.Background())
	defer stopMiner()
	go m.Run(minerCtx)
	logger.Info("miner running", zap.Uint32("difficulty", viper.GetUint32("chain.difficulty")))

	// ── HTTP Router ───────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	// CORS
	corsOrigins := viper.GetStringSlice("node.cors_origins")
	corsConfig := cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Request body size limit (1 MB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	// Per-IP rate limiting
	rps := viper.GetInt("node.rate_limit_rps")
	if rps > 0 {
		router.Use(api.RateLimiter(rps, rps*2))
	}

	router.Use(requestLogger(logger))
	router.Use(api.PrometheusMiddleware())

	// Health and metrics (public)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", api.MetricsHandler())

	// API v1
	v1 := router.Group("/api/v1")
	api.NewChainHandler(ld, logger).Register(v1)
	api.NewNamesHandler(ld, m, keys.Public(), logger).Register(v1)

	// ── HTTP Server ───────────────────────────────────────────────────────────
	httpPort := viper.GetInt("node.port")
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("node HTTP listening", zap.Int("port", httpPort))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	<-quit
	logger.Info("shutting down node...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	stopMiner()

	logger.Info("node stopped")
	return nil
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
