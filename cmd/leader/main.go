// Command leader runs the camera-sync leader role (C2-C4, C9): it tracks
// client membership over heartbeats, negotiates per-client clock offsets
// via SNTP-style bursts, and broadcasts trigger/phase/exposure commands.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/camerasync/internal/capturelog"
	"github.com/banshee-data/camerasync/internal/clock"
	"github.com/banshee-data/camerasync/internal/config"
	"github.com/banshee-data/camerasync/internal/controller"
	"github.com/banshee-data/camerasync/internal/rpc"
	"github.com/banshee-data/camerasync/internal/sntp"
	"github.com/banshee-data/camerasync/internal/timedomain"
	"github.com/banshee-data/camerasync/internal/version"
)

var (
	configPath  = flag.String("config", "", "path to a sync config JSON file (defaults to built-in defaults)")
	listen      = flag.String("listen", ":8080", "admin HTTP listen address")
	dbPath      = flag.String("db", "capturelog.db", "path to the capture log sqlite file")
	showVersion = flag.Bool("version", false, "print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		log.Printf("leader %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg := config.EmptySyncConfig()
	if *configPath != "" {
		loaded, err := config.LoadSyncConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}

	logDB, err := capturelog.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open capture log: %v", err)
	}
	defer logDB.Close()

	ticker := clock.Shared()
	socket, err := (rpc.RealSocketFactory{}).ListenUDP("udp4", &net.UDPAddr{Port: cfg.GetRPCPort()})
	if err != nil {
		log.Fatalf("failed to bind rpc socket on port %d: %v", cfg.GetRPCPort(), err)
	}

	burstCfg := sntp.BurstConfig{
		K: cfg.GetBurstK(),
		S: cfg.GetBurstSpacing(),
		D: cfg.GetBurstDeadline(),
		R: cfg.GetBurstRetries(),
	}

	leader := controller.NewLeader(socket, ticker, cfg.GetExpireInterval(), burstCfg, 4)
	logDB.SubscribeMembership(leader.Registry)
	leader.OnCaptureAck(func(sender *net.UDPAddr, ack controller.CaptureAckPayload) {
		if err := logDB.RecordCapture(ack.UserTag, ack.LeaderTS, ack.Dropped); err != nil {
			log.Printf("failed to record capture: %v", err)
		}
	})
	leader.OnOffsetInstalled(func(clientID string, offset timedomain.Offset) {
		if err := logDB.RecordOffset(clientID, offset.OffsetNs, offset.ErrorBoundNs); err != nil {
			log.Printf("failed to record offset: %v", err)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := leader.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("leader transport stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	logDB.AttachAdminRoutes(mux)
	server := &http.Server{Addr: *listen, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("admin http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down leader...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("admin http server shutdown error: %v", err)
	}
	if err := leader.Close(); err != nil {
		log.Printf("leader shutdown error: %v", err)
	}
	log.Println("leader shutdown complete")
}
