package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timchenkailiang/bilibili-live-bot/internal/bilibili"
	"github.com/timchenkailiang/bilibili-live-bot/internal/config"
	"github.com/timchenkailiang/bilibili-live-bot/internal/dedup"
	"github.com/timchenkailiang/bilibili-live-bot/internal/forward"
	"github.com/timchenkailiang/bilibili-live-bot/internal/stats"
	"github.com/timchenkailiang/bilibili-live-bot/pkg/blive"
	pkglog "github.com/timchenkailiang/bilibili-live-bot/pkg/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.RoomID == "" {
		log.Fatalf("room_id is required (set ROOM_ID or config/config.yaml)")
	}

	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "live-monitor",
	})

	log.Printf("Starting Live Monitor for room %s", cfg.RoomID)

	// Native protocol client
	client := blive.New(blive.Config{
		UID:       cfg.UID,
		SessData:  cfg.SessData,
		Heartbeat: cfg.Adapter.Heartbeat,
	})
	client.OnPopularity(func(pop uint32) {
		pkglog.L().Debug().Uint32(pkglog.FieldPopularity, pop).Msg("room popularity")
	})

	// Dedup store
	var deduper dedup.Deduper
	if cfg.Adapter.DedupWindow > 0 && cfg.Dedup.Driver == dedup.DriverRedis {
		rw, err := dedup.NewRedisWindow(dedup.RedisConfig{
			Address:  cfg.Dedup.Redis.Address,
			Password: cfg.Dedup.Redis.Password,
			DB:       cfg.Dedup.Redis.DB,
		}, cfg.Adapter.DedupWindow)
		if err != nil {
			log.Fatalf("Failed to connect dedup store: %v", err)
		}
		defer rw.Close()
		deduper = rw
		log.Printf("Connected to Redis at %s", cfg.Dedup.Redis.Address)
	}

	adapter := bilibili.New(client, deduper, bilibili.Config{
		DedupWindow: cfg.Adapter.DedupWindow,
		CoinRates:   cfg.Adapter.CoinRates,
	})

	// Consumers
	aggregator := stats.NewAggregator()
	adapter.AddHandler(aggregator)

	if cfg.Forward.Enabled {
		sink, err := forward.NewKafkaSink(cfg.Forward.Brokers, cfg.Forward.Topic, cfg.Forward.Partitions)
		if err != nil {
			log.Fatalf("Failed to initialize Kafka sink: %v", err)
		}
		defer sink.Close()
		adapter.AddHandler(forward.New(sink))
		log.Printf("Forwarding events to Kafka at %s (topic: %s)", cfg.Forward.Brokers, cfg.Forward.Topic)
	}

	// Start health HTTP server
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      pkglog.HTTPMiddleware(pkglog.L())(mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		log.Printf("Health server listening on %s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Health server error: %v", err)
		}
	}()

	// Connect and run the monitor in background
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := adapter.Connect(ctx, cfg.RoomID); err != nil {
		log.Fatalf("Failed to connect to room %s: %v", cfg.RoomID, err)
	}

	monitorDone := make(chan error, 1)
	go func() {
		monitorDone <- adapter.Start(ctx)
	}()

	// Periodic session summary
	statsTicker := time.NewTicker(cfg.StatsInterval)
	defer statsTicker.Stop()
	go func() {
		for range statsTicker.C {
			s := aggregator.Summary()
			pkglog.L().Info().
				Int("users", s.Users).
				Int("chats", s.Chats).
				Int("gifts", s.Gifts).
				Str("gift_value_cny", s.GiftValueCNY.String()).
				Str("super_chat_value_cny", s.SuperChatValueCNY.String()).
				Bool("connected", adapter.IsConnected()).
				Msg("session summary")
		}
	}()

	// Wait for interrupt signal or fatal monitor error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Println("Received shutdown signal")
		adapter.Stop()
		select {
		case <-monitorDone:
		case <-time.After(10 * time.Second):
			log.Println("Monitor shutdown timed out")
		}
	case err := <-monitorDone:
		if err != nil {
			log.Printf("Monitor exited with error: %v", err)
		}
	}

	log.Println("Shutting down Live Monitor...")

	s := aggregator.Summary()
	log.Printf("Session totals: users=%d chats=%d gifts=%d gift_value_cny=%s super_chat_value_cny=%s",
		s.Users, s.Chats, s.Gifts, s.GiftValueCNY, s.SuperChatValueCNY)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Health server forced to shutdown: %v", err)
	}

	log.Println("Live Monitor stopped")
}
