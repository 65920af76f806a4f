// chatd is the anonymous pairing daemon: it matches users into one-on-one
// chats, relays their messages, and enforces report-driven bans. State is
// snapshotted to disk and restored on start.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pairline/pairline/internal/bot"
	"github.com/pairline/pairline/internal/config"
	"github.com/pairline/pairline/internal/directory"
	"github.com/pairline/pairline/internal/gateway"
	"github.com/pairline/pairline/internal/history"
	"github.com/pairline/pairline/internal/match"
	"github.com/pairline/pairline/internal/messaging"
	"github.com/pairline/pairline/internal/metrics"
	"github.com/pairline/pairline/internal/moderation"
	"github.com/pairline/pairline/internal/ratelimit"
	"github.com/pairline/pairline/internal/relay"
	"github.com/pairline/pairline/internal/reportlog"
	"github.com/pairline/pairline/internal/state"
)

// reportArchive adapts the Postgres report store to the dispatcher's
// Archive capability.
type reportArchive struct {
	store *reportlog.Store
}

func (a *reportArchive) Archive(ctx context.Context, reporterID, reportedID, chatID string, tail []history.Message) error {
	return a.store.Create(ctx, &reportlog.Report{
		ReporterID: reporterID,
		ReportedID: reportedID,
		ChatID:     chatID,
		Messages:   tail,
	})
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("chatd: %v", err)
	}

	store, err := state.NewStore(cfg.StateFile)
	if err != nil {
		log.Fatalf("chatd: state store: %v", err)
	}

	policy := directory.RequireGender
	if cfg.RequireFullProfile {
		policy = directory.RequireFullProfile
	}
	dir := directory.NewStore(policy)
	coord := match.NewCoordinator(dir, match.Config{
		RequeueSkipped: cfg.RequeueSkipped,
	})

	snap := store.Load()
	dir.Restore(snap.Users)
	coord.Restore(snap.Queues, snap.Active, snap.LastPartner)

	mod := moderation.NewService(dir, coord, cfg.BanThreshold, cfg.BanDuration)
	tail := history.NewBuffer()

	var limiter *ratelimit.Limiter
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.Printf("chatd: redis ping: %v (rate limiting will fail open)", err)
		}
		limiter = ratelimit.NewLimiter(client)
		defer client.Close()
	}

	var archive bot.Archive
	if cfg.DatabaseURL != "" {
		reports, err := reportlog.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("chatd: report archive: %v", err)
		}
		defer reports.Close()
		archive = &reportArchive{store: reports}
	}

	log.Printf("chatd starting")
	log.Printf("  listen_addr:   %s", cfg.ListenAddr)
	log.Printf("  transport:     %s", cfg.Transport)
	log.Printf("  state_file:    %s", cfg.StateFile)
	log.Printf("  ban_policy:    %d reports -> %s", cfg.BanThreshold, cfg.BanDuration)
	log.Printf("  restored:      %d users, %d queued, %d sessions",
		len(snap.Users), coord.QueueLen(), coord.SessionCount())

	// The transport and the dispatcher reference each other: frames feed
	// HandleText, replies go back out through the transport. Declare the
	// dispatcher first so the handler closures can capture it.
	var d *bot.Dispatcher
	handle := func(userID, text string) { d.HandleText(userID, text) }

	deps := bot.Deps{
		Directory: dir,
		Coord:     coord,
		Mod:       mod,
		Limiter:   limiter,
		Archive:   archive,
		Tail:      tail,
		Store:     store,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	switch cfg.Transport {
	case config.TransportNATS:
		natsCfg := messaging.DefaultConfig()
		natsCfg.URL = cfg.NATSURL
		client, err := messaging.Connect(natsCfg)
		if err != nil {
			log.Fatalf("chatd: %v", err)
		}

		deps.Messenger = client
		deps.Relay = relay.NewForwarder(coord, moderation.NewFilter(), client, tail)
		d = bot.New(deps)

		if err := client.Listen(handle); err != nil {
			log.Fatalf("chatd: %v", err)
		}

		// NATS carries the chat traffic; HTTP only serves health and metrics.
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
		mux.Handle("/metrics", metrics.Handler())
		httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("chatd: http server: %v", err)
			}
		}()

		sig := <-sigCh
		log.Printf("chatd: received %v, shutting down", sig)
		client.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctx)
		d.Flush()

	case config.TransportWS:
		gwCfg := gateway.DefaultConfig()
		gwCfg.ListenAddr = cfg.ListenAddr
		gwCfg.WriteTimeout = cfg.WriteTimeout
		server := gateway.NewServer(gwCfg, handle)

		deps.Messenger = server
		deps.Relay = relay.NewForwarder(coord, moderation.NewFilter(), server, tail)
		d = bot.New(deps)

		server.SetOnDisconnect(func(userID string) { d.HandleDisconnect(userID) })

		go func() {
			sig := <-sigCh
			log.Printf("chatd: received %v, shutting down", sig)
			if err := server.Shutdown(); err != nil {
				log.Printf("chatd: shutdown: %v", err)
			}
			d.Flush()
			os.Exit(0)
		}()

		if err := server.Start(); err != nil {
			log.Fatalf("chatd: %v", err)
		}
	}
}
