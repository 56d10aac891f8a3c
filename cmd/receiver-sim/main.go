// Command receiver-sim runs a hosted, software-only instance of the Link
// receiver MAC (internal/mac.Receiver) against the simulated radio medium
// and flash in internal/hal/sim, so the dongle-side core can be exercised
// and watched without real silicon. Grounded on cmd/radar/radar.go's
// flag-parsing / signal.NotifyContext / background-HTTP-server shape, cut
// down to this module's single-threaded core loop (spec §5): the MAC step
// runs synchronously on the main goroutine, with only the admin debug
// server and optional hostlink upstream polling alongside it.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/openvrtrack/trackerlink/internal/config"
	"github.com/openvrtrack/trackerlink/internal/fusion"
	"github.com/openvrtrack/trackerlink/internal/hal/sim"
	"github.com/openvrtrack/trackerlink/internal/hostlink"
	"github.com/openvrtrack/trackerlink/internal/mac"
	"github.com/openvrtrack/trackerlink/internal/monitoring"
	"github.com/openvrtrack/trackerlink/internal/pairing"
	"github.com/openvrtrack/trackerlink/internal/persist"
	"github.com/openvrtrack/trackerlink/internal/telemetry"
	"github.com/openvrtrack/trackerlink/internal/version"

	"github.com/google/uuid"
)

func main() {
	showVersion := flag.Bool("version", false, "print version information and exit")
	quiet := flag.Bool("quiet", false, "suppress core diagnostic logging (mac/pairing/fusion)")
	configPath := flag.String("config", "", "tuning config JSON (defaults to config/link.defaults.json)")
	telemetryDB := flag.String("telemetry-db", "receiver-telemetry.db", "SQLite path for telemetry snapshots")
	adminAddr := flag.String("admin-addr", ":8090", "listen address for the /debug admin routes")
	hostlinkPort := flag.String("hostlink-port", "", "serial port for the upstream host link (disabled if empty)")
	receiverMacHex := flag.String("receiver-mac", "", "hex-encoded 6-byte receiver MAC (random if empty)")
	flashSize := flag.Uint("flash-size", 64*1024, "simulated flash image size in bytes")
	startPairing := flag.Bool("pair", false, "enter pairing mode immediately on startup")
	tickMs := flag.Int("tick-ms", 1, "main loop poll period in milliseconds")
	flag.Parse()

	if *showVersion {
		fmt.Printf("receiver-sim %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	// internal/monitoring is the shared sink every core package's own
	// per-package Logf defaults to log.Printf through; routing them all
	// through it here gives -quiet a single place to silence the core
	// without touching internal/telemetry's own fmt.Errorf-wrapped
	// failures, which always surface.
	if *quiet {
		monitoring.SetLogger(nil)
	}
	mac.SetLogger(monitoring.Logf)
	pairing.SetLogger(monitoring.Logf)
	fusion.SetLogger(monitoring.Logf)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("receiver-sim: failed to load config: %v", err)
	}

	receiverMac, err := parseOrRandomMac(*receiverMacHex)
	if err != nil {
		log.Fatalf("receiver-sim: bad -receiver-mac: %v", err)
	}

	store, err := telemetry.NewStore(*telemetryDB)
	if err != nil {
		log.Fatalf("receiver-sim: failed to open telemetry store: %v", err)
	}
	defer store.Close()

	var hlPort *hostlink.Port
	if *hostlinkPort != "" {
		hlPort, err = hostlink.Open(*hostlinkPort)
		if err != nil {
			log.Fatalf("receiver-sim: failed to open hostlink port %s: %v", *hostlinkPort, err)
		}
		defer hlPort.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	store.AttachAdminRoutes(mux)
	srv := &http.Server{Addr: *adminAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("receiver-sim: admin server exited: %v", err)
		}
	}()
	defer srv.Close()

	clock := sim.NewClock()
	medium := sim.NewMedium()
	radio := sim.NewRadioPHY(medium, clock, -40)
	flash := sim.NewFlash(uint32(*flashSize))
	rstore := persist.NewReceiverStore(flash, cfg.GetNMax())

	timing := mac.DefaultTiming()
	receiver := mac.NewReceiver(radio, clock, rstore, timing, receiverMac, cfg.GetPairingChannel(), cfg.GetNMissMax())

	if receiver.NetworkKey() == 0 {
		var keyBuf [4]byte
		if err := (sim.HardwareEntropy{}).ReadEntropy(keyBuf[:]); err != nil {
			log.Fatalf("receiver-sim: failed to generate network key: %v", err)
		}
		key := uint32(keyBuf[0])<<24 | uint32(keyBuf[1])<<16 | uint32(keyBuf[2])<<8 | uint32(keyBuf[3])
		if err := receiver.SetNetworkKey(key); err != nil {
			log.Fatalf("receiver-sim: failed to persist network key: %v", err)
		}
		log.Printf("receiver-sim: generated new network key 0x%08X", key)
	}

	if *startPairing {
		receiver.EnterPairing(time.Now())
		log.Printf("receiver-sim: entered pairing mode on channel %d", cfg.GetPairingChannel())
	}

	log.Printf("receiver-sim: running, mac=%s admin=%s", hex.EncodeToString(receiverMac[:]), *adminAddr)
	runLoop(ctx, receiver, store, hlPort, time.Duration(*tickMs)*time.Millisecond)
	log.Printf("receiver-sim: shutting down")
}

func runLoop(ctx context.Context, receiver *mac.Receiver, store *telemetry.Store, hlPort *hostlink.Port, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	snapshotTicker := time.NewTicker(5 * time.Second)
	defer snapshotTicker.Stop()

	watcher := newPairingWatcher(receiver)

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			receiver.Step(now)
			watcher.poll(store, now)
			if hlPort != nil {
				if err := hlPort.Poll(func(hostlink.FrameType, []byte) {}); err != nil {
					log.Printf("receiver-sim: hostlink poll: %v", err)
				}
			}
		case now := <-snapshotTicker.C:
			recordSnapshots(receiver, store, now)
		}
	}
}

// pairingWatcher records a telemetry.PairingEvent whenever the receiver
// leaves RxPairing, tagging the event with a fresh correlation UUID the
// same way internal/pairing tags its own sessions (spec domain addition;
// internal/pairing's session UUID has no public accessor, so this mints
// its own id for the receiver side of the exchange rather than reaching
// into the pairing engine's internals).
type pairingWatcher struct {
	receiver   *mac.Receiver
	wasPairing bool
	activeWas  int
}

func newPairingWatcher(receiver *mac.Receiver) *pairingWatcher {
	return &pairingWatcher{receiver: receiver}
}

func (w *pairingWatcher) poll(store *telemetry.Store, now time.Time) {
	isPairing := w.receiver.State() == mac.RxPairing
	if w.wasPairing && !isPairing {
		outcome := "timeout"
		if countActive(w.receiver) > w.activeWas {
			outcome = "complete"
		}
		event := telemetry.PairingEvent{
			TakenUnixMs: now.UnixMilli(),
			SessionUUID: uuid.New().String(),
			Role:        "receiver",
			Outcome:     outcome,
		}
		if err := store.RecordPairingEvent(event); err != nil {
			log.Printf("receiver-sim: failed to record pairing event: %v", err)
		}
	}
	if isPairing && !w.wasPairing {
		w.activeWas = countActive(w.receiver)
	}
	w.wasPairing = isPairing
}

func countActive(receiver *mac.Receiver) int {
	n := 0
	for slot := 0; slot < mac.DefaultNMax; slot++ {
		if receiver.Runtime(slot).Active {
			n++
		}
	}
	return n
}

func recordSnapshots(receiver *mac.Receiver, store *telemetry.Store, now time.Time) {
	for slot := 0; slot < mac.DefaultNMax; slot++ {
		rt := receiver.Runtime(slot)
		if !rt.Active {
			continue
		}
		snap := telemetry.TrackerSnapshot{
			Slot:        slot,
			TakenUnixMs: now.UnixMilli(),
			Active:      rt.Active,
			RSSI:        rt.RSSI,
			Battery:     rt.Battery,
			Flags:       rt.Flags,
			Sequence:    rt.Sequence,
			PacketLoss:  rt.PacketLoss,
			CRCErrors:   rt.CRCErrors,
			LastSeenMs:  rt.LastSeenMs,
		}
		if err := store.RecordSnapshot(snap); err != nil {
			log.Printf("receiver-sim: failed to record snapshot for slot %d: %v", slot, err)
		}
	}
}

func loadConfig(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.MustLoadDefaultConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

func parseOrRandomMac(s string) ([6]byte, error) {
	if s == "" {
		return sim.RandomMacAddressReader().ReadMacAddress()
	}
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 6 {
		return [6]byte{}, fmt.Errorf("expected 12 hex chars, got %q", s)
	}
	var mac [6]byte
	copy(mac[:], b)
	return mac, nil
}
