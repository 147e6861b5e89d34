package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"agent-lounge/internal/auth"
	"agent-lounge/internal/config"
	"agent-lounge/internal/hub"
	"agent-lounge/internal/lounge"
	"agent-lounge/internal/registry"
	"agent-lounge/internal/rooms"
	"agent-lounge/internal/server"
	"agent-lounge/internal/store"
	"agent-lounge/internal/throttle"
	"agent-lounge/internal/vote"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	} else {
		handler = slog.NewTextHandler(os.Stdout, nil)
	}
	log := slog.New(handler)
	slog.SetDefault(log)

	gin.SetMode(cfg.GinMode)

	var st store.Store
	if cfg.DataDir != "" {
		badgerStore, err := store.OpenBadger(cfg.DataDir, log)
		if err != nil {
			log.Error("open store", "dir", cfg.DataDir, "error", err)
			os.Exit(1)
		}
		defer func() { _ = badgerStore.Close() }()
		st = badgerStore
		log.Info("using durable store", "dir", cfg.DataDir)
	} else {
		st = store.NewMemory()
		log.Warn("DATA_DIR not set, state will not survive restarts")
	}

	reg := registry.New(registry.Config{
		Questions:     cfg.ChallengeQuestions,
		Threshold:     cfg.ChallengeThreshold,
		TimeBudget:    cfg.ChallengeTimeBudget,
		MaxNameLength: cfg.MaxDisplayNameLength,
	})
	dir := rooms.New(cfg.DefaultRoom)

	ctx := context.Background()
	if agents, err := st.LoadAllAgents(ctx); err != nil {
		log.Error("restore agents", "error", err)
	} else if len(agents) > 0 {
		reg.Restore(agents)
		log.Info("restored agents", "count", len(agents))
	}
	if roomList, err := st.LoadAllRooms(ctx); err != nil {
		log.Error("restore rooms", "error", err)
	} else {
		dir.Restore(roomList)
		if defaultRoom, ok := dir.Get(cfg.DefaultRoom); ok {
			found := false
			for _, r := range roomList {
				if r.Name == cfg.DefaultRoom {
					found = true
					break
				}
			}
			if !found {
				if err := st.SaveRoom(ctx, defaultRoom); err != nil {
					log.Error("seed default room", "error", err)
				}
			}
		}
		if len(roomList) > 0 {
			log.Info("restored rooms", "count", len(roomList))
		}
	}

	thr := throttle.New(throttle.Config{
		Cooldown:        cfg.ChatCooldown,
		DuplicateWindow: cfg.DuplicateWindow,
		MaxConsecutive:  cfg.MaxConsecutive,
	})
	votes := vote.New(vote.Config{
		Quorum:          cfg.VoteQuorum,
		Duration:        cfg.VoteDuration,
		TargetCooldown:  cfg.VoteTargetCooldown,
		Grace:           10 * time.Second,
		MaxReasonLength: cfg.MaxReasonLength,
	})

	l := lounge.New(lounge.Config{
		RecentLimit:       50,
		MaxMessageLength:  cfg.MaxMessageLength,
		MaxRoomNameLength: cfg.MaxRoomNameLength,
		KickBan:           cfg.KickBanDuration,
	}, log, reg, dir, thr, votes, hub.New(), st)

	tokenCfg := auth.TokenConfig{
		Secret: cfg.MasterSecret,
		Expiry: cfg.TokenExpiry,
		Issuer: "agent-lounge",
	}

	router := server.NewRouter(server.Deps{
		Lounge:            l,
		TokenConfig:       tokenCfg,
		AdminPasswordHash: cfg.AdminPasswordHash,
	})

	log.Info("listening", "addr", fmt.Sprintf(":%d", cfg.Port))
	if err := server.Run(cfg, router); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
