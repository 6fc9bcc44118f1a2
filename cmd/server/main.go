package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"lshdb-go/internal/api"
	"lshdb-go/internal/config"
	"lshdb-go/lsh"
	"lshdb-go/store"
)

func main() {
	appConfig, err := config.LoadConfig()
	if err != nil {
		slog.Error("Error loading config", "error", err)
		os.Exit(1)
	}

	setupLogging(appConfig.Server.LogLevel)
	setupGinMode(appConfig.Server.LogLevel)

	slog.Info("Initializing index",
		"family", appConfig.Index.Family,
		"k", appConfig.Index.K,
		"l", appConfig.Index.L,
		"dim", appConfig.Index.Dim,
		"backend", appConfig.Index.Backend,
	)
	index, err := buildIndex(&appConfig.Index)
	if err != nil {
		slog.Error("Error initializing index", "error", err)
		os.Exit(1)
	}
	defer index.Close()

	api.Initialize(index)

	router := gin.New()
	router.Use(api.RequestID(), gin.Recovery())
	setupRoutes(router, appConfig)

	addr := fmt.Sprintf(":%d", appConfig.Server.Port)
	slog.Info("Server listening", "address", addr)
	if err := router.Run(addr); err != nil {
		slog.Error("Error starting server", "error", err)
		os.Exit(1)
	}
}

// buildIndex assembles the backend and the index from the configuration.
func buildIndex(params *config.IndexParams) (*lsh.LSH[float32], error) {
	builder := lsh.New[float32](params.K, params.L, params.Dim).
		Seed(params.Seed).
		MultiProbe(params.MultiProbeBudget)
	if params.OnlyIndex {
		builder = builder.OnlyIndex()
	}

	switch params.Backend {
	case "", "memory":
		// the builder's default
	case "sqlite":
		backend, err := store.NewSQLTable[float32](params.DBPath, params.L, params.OnlyIndex)
		if err != nil {
			return nil, err
		}
		builder = builder.Backend(backend)
	case "sqlite_mem":
		backend, err := store.NewSQLTableMem[float32](params.L, params.OnlyIndex)
		if err != nil {
			return nil, err
		}
		builder = builder.Backend(backend)
	case "nutsdb":
		backend, err := store.NewNutsTable[float32](params.DBPath, params.OnlyIndex)
		if err != nil {
			return nil, err
		}
		builder = builder.Backend(backend)
	default:
		return nil, fmt.Errorf("unsupported backend %q", params.Backend)
	}

	switch params.Family {
	case "srp":
		return builder.SRP()
	case "l2":
		return builder.L2(params.R)
	case "mips":
		return builder.MIPS(params.R, params.U, params.M)
	case "minhash":
		return builder.MinHash()
	default:
		return nil, fmt.Errorf("unsupported family %q", params.Family)
	}
}

func setupLogging(logLevel string) {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

func setupGinMode(logLevel string) {
	switch strings.ToLower(logLevel) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}
}

func setupRoutes(router *gin.Engine, cfg *config.AppConfig) {
	router.POST(cfg.Server.StoreURLSuffix, api.HandleStore)
	router.POST(cfg.Server.QueryURLSuffix, api.HandleQuery)
	router.GET("/describe", api.HandleDescribe)
}
