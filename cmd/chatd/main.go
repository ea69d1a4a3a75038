package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"marketchat/internal/infra/broker/kafka"
	"marketchat/internal/infra/config"
	mongostore "marketchat/internal/infra/db/mongo"
	ginserver "marketchat/internal/infra/http/gin"
	"marketchat/internal/infra/obs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := getenv("APP_ENV", "dev")
	logger := obs.NewLogger(env)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}
	if cfg.MongoURI == "" {
		logger.Error("MONGO_URI is required")
		os.Exit(1)
	}

	mongoClient, err := mongostore.New(cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		logger.Error("mongo connect failed", "error", err)
		os.Exit(1)
	}
	store := mongostore.NewChatStore(mongoClient.DB)

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
	if err != nil {
		logger.Error("kafka producer failed", "error", err)
		os.Exit(1)
	}
	defer producer.Close()
	channel := kafka.NewChannel(producer, cfg.KafkaTopic)

	if err := loadProfileFixtures(ctx, store, getenv("PROFILE_FIXTURES", defaultProfileFixturesPath()), logger); err != nil {
		logger.Warn("profile fixtures load failed", "error", err)
	}

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Ready: func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return mongoClient.Ping(pingCtx)
		},
	}, ginserver.Handlers{
		Chat: ginserver.ChatHandler{Store: store, Events: channel, Logger: logger},
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("chat server starting", "addr", cfg.HTTPAddr, "topic", cfg.KafkaTopic)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("chat server stopped")
}

// loadProfileFixtures seeds public profiles for local development.
func loadProfileFixtures(ctx context.Context, store *mongostore.ChatStore, path string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("profile fixtures file not found, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("read fixtures: %w", err)
	}
	var fixtures []profileFixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return fmt.Errorf("decode fixtures: %w", err)
	}
	for _, fx := range fixtures {
		if fx.ID == "" {
			logger.Warn("profile fixture without id skipped")
			continue
		}
		profile := mongostore.Profile{ID: fx.ID, Name: fx.Name, AvatarURL: fx.AvatarURL}
		if err := store.SaveProfile(ctx, profile); err != nil {
			logger.Error("cannot store fixture profile", "user_id", fx.ID, "error", err)
			continue
		}
		logger.Info("profile fixture imported", "user_id", fx.ID)
	}
	return nil
}

type profileFixture struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

func defaultProfileFixturesPath() string {
	return filepath.Join("data", "profiles.json")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
