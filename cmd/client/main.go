// Command client runs the camera-sync client role (C2-C3, C5-C9): it
// heartbeats to the leader, converts its local clock into leader time,
// aligns its capture phase, matches metadata to images, and persists
// triggered bundles.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/banshee-data/camerasync/internal/capture"
	"github.com/banshee-data/camerasync/internal/clock"
	"github.com/banshee-data/camerasync/internal/config"
	"github.com/banshee-data/camerasync/internal/controller"
	"github.com/banshee-data/camerasync/internal/phasealign"
	"github.com/banshee-data/camerasync/internal/rpc"
	"github.com/banshee-data/camerasync/internal/version"
)

var (
	clientID      = flag.String("id", "", "this device's client id (required)")
	configPath    = flag.String("config", "", "path to a sync config JSON file (defaults to built-in defaults)")
	captureDir    = flag.String("capture-dir", "captures", "directory to persist triggered bundles under")
	streamsFlag   = flag.String("streams", "0", "comma-separated stream indices this device captures, e.g. 0,1")
	maxOutstandFl = flag.String("max-outstanding", "4", "comma-separated max outstanding images per stream, aligned with -streams")
	showVersion   = flag.Bool("version", false, "print version and exit")
)

func parseCSVInts(s string) []int {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			log.Fatalf("invalid integer %q: %v", p, err)
		}
		out = append(out, n)
	}
	return out
}

func main() {
	flag.Parse()
	if *showVersion {
		log.Printf("client %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)
		return
	}
	if *clientID == "" {
		log.Fatal("-id is required")
	}

	cfg := config.EmptySyncConfig()
	if *configPath != "" {
		loaded, err := config.LoadSyncConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}

	streams := parseCSVInts(*streamsFlag)
	maxOutstanding := parseCSVInts(*maxOutstandFl)
	if len(maxOutstanding) != len(streams) {
		log.Fatalf("-max-outstanding must list one value per -streams entry (got %d streams, %d limits)", len(streams), len(maxOutstanding))
	}

	ticker := clock.Shared()
	socket, err := (rpc.RealSocketFactory{}).ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		log.Fatalf("failed to bind rpc socket: %v", err)
	}

	var cam capture.Camera = capture.LogCamera{}

	phaseCfg := phasealign.Config{
		FramePeriodNs:       cfg.GetFramePeriodNs(),
		GoalPhaseNs:         cfg.GetGoalPhaseNs(),
		ToleranceNs:         cfg.GetToleranceNs(),
		SettleFrames:        cfg.GetSettleFrames(),
		StepGain:            cfg.GetStepGain(),
		MinInjectExposureNs: cfg.GetMinInjectExposureNs(),
		MaxInjectExposureNs: cfg.GetMaxInjectExposureNs(),
	}

	// trigger.New needs a Persistence up front, but FilePersistence's
	// release callback closes over the Synchronizer that NewClient builds
	// internally — so construct with a nil persist and wire it after.
	client := controller.NewClient(*clientID, socket, cfg.GetRPCPort(), ticker, cfg.GetHeartbeatInterval(), cam, nil, maxOutstanding, phaseCfg, 4)
	client.Trigger.SetPersistence(capture.NewFilePersistence(*captureDir, client.Sync.Release))
	client.Trigger.SetRelease(client.Sync.Release)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client.RunHeartbeat()
	go func() {
		if err := client.Transport.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("client transport stopped: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down client...")
	if err := client.Close(); err != nil {
		log.Printf("client shutdown error: %v", err)
	}
	log.Println("client shutdown complete")
}
