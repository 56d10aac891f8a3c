// Command tracker-sim runs a hosted, software-only instance of the Link
// tracker MAC (internal/mac.Tracker) driven by a simulated IMU
// (internal/hal/sim.IMU) through the fusion pipeline
// (internal/fusion.Pipeline), against the same simulated radio medium a
// receiver-sim instance listens on. Grounded on cmd/radar/radar.go's
// flag/signal-handling shape, cut down to this module's single-threaded
// core loop (spec §5).
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/openvrtrack/trackerlink/internal/config"
	"github.com/openvrtrack/trackerlink/internal/fusion"
	"github.com/openvrtrack/trackerlink/internal/hal/sim"
	"github.com/openvrtrack/trackerlink/internal/mac"
	"github.com/openvrtrack/trackerlink/internal/monitoring"
	"github.com/openvrtrack/trackerlink/internal/pairing"
	"github.com/openvrtrack/trackerlink/internal/persist"
	"github.com/openvrtrack/trackerlink/internal/version"
)

// fusionSource adapts *fusion.Pipeline (which produces fusion.Sample) to
// mac.SampleSource (which wants mac.Sample). The two types are
// structurally identical by design (see fusion.Sample's doc comment) but
// distinct named types, so internal/mac and internal/fusion never import
// each other; this is the one place the conversion happens.
type fusionSource struct {
	pipeline *fusion.Pipeline
}

func (f fusionSource) Sample() mac.Sample {
	s := f.pipeline.Sample()
	return mac.Sample{Quat: s.Quat, Accel: s.Accel, Battery: s.Battery, Flags: s.Flags}
}

// calibrationSeconds is how long (in seconds) the simulated IMU is sampled
// while stationary at startup to seed the Kalman measurement-variance floor (spec §4.6 step
// 5's "measured during stationary calibration" input; the spec leaves the
// calibration window length unspecified, so this picks one second at the
// configured sample rate).
const calibrationSeconds = 1.0

func main() {
	showVersion := flag.Bool("version", false, "print version information and exit")
	quiet := flag.Bool("quiet", false, "suppress core diagnostic logging (mac/pairing/fusion)")
	configPath := flag.String("config", "", "tuning config JSON (defaults to config/link.defaults.json)")
	ownMacHex := flag.String("mac", "", "hex-encoded 6-byte tracker MAC (random if empty)")
	flashSize := flag.Uint("flash-size", 16*1024, "simulated flash image size in bytes")
	startPairing := flag.Bool("pair", false, "enter pairing mode immediately on startup")
	imuSeed := flag.Int64("imu-seed", 1, "deterministic seed for the simulated IMU's noise generator")
	tickMs := flag.Int("tick-ms", 1, "main loop poll period in milliseconds")
	battery := flag.Int("battery", 100, "reported battery percentage (0-255)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tracker-sim %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if *quiet {
		monitoring.SetLogger(nil)
	}
	mac.SetLogger(monitoring.Logf)
	pairing.SetLogger(monitoring.Logf)
	fusion.SetLogger(monitoring.Logf)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("tracker-sim: failed to load config: %v", err)
	}

	ownMac, err := parseOrRandomMac(*ownMacHex)
	if err != nil {
		log.Fatalf("tracker-sim: bad -mac: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := sim.NewClock()
	medium := sim.NewMedium()
	radio := sim.NewRadioPHY(medium, clock, -45)
	flash := sim.NewFlash(uint32(*flashSize))
	tstore := persist.NewTrackerStore(flash, cfg.GetFusionSnapshotInterval())

	timing := mac.DefaultTiming()
	tracker := mac.NewTracker(radio, clock, tstore, timing, ownMac, 0, 1, 0, cfg.GetNMissMax())

	imu := sim.NewIMU(*imuSeed)
	if err := imu.Configure(cfg.GetSampleRateHz()); err != nil {
		log.Fatalf("tracker-sim: failed to configure IMU: %v", err)
	}

	pipeline := fusion.NewPipeline(fusion.Config{
		SampleRateHz:        cfg.GetSampleRateHz(),
		ProcessVariance:     1e-6,
		MeasurementVariance: 1e-4,
		TauAccSec:           cfg.GetAHRSBetaTauAccS(),
		TauMagSec:           cfg.GetAHRSBetaTauMagS(),
	})
	pipeline.SetNoiseFloor(calibrateNoiseFloor(imu, cfg.GetSampleRateHz()))
	pipeline.SetBatteryAndFlags(byte(*battery), 0)

	if *startPairing {
		tracker.StartPairing(time.Now(), cfg.GetPairingChannel())
		log.Printf("tracker-sim: entered pairing mode on channel %d", cfg.GetPairingChannel())
	}

	log.Printf("tracker-sim: running, mac=%s", hex.EncodeToString(ownMac[:]))
	runLoop(ctx, tracker, pipeline, imu, time.Duration(*tickMs)*time.Millisecond)
	log.Printf("tracker-sim: shutting down")
}

// calibrateNoiseFloor samples imu while stationary and returns the
// per-axis gyro variance, consumed by fusion.Pipeline.SetNoiseFloor.
func calibrateNoiseFloor(imu *sim.IMU, sampleRateHz int) [3]float64 {
	n := int(calibrationSeconds * float64(sampleRateHz))
	if n < 1 {
		n = 1
	}
	var sum, sumSq [3]float64
	count := 0
	for i := 0; i < n; i++ {
		s, err := imu.Sample()
		if err != nil {
			continue
		}
		count++
		for axis := 0; axis < 3; axis++ {
			v := float64(s.GyroRad[axis])
			sum[axis] += v
			sumSq[axis] += v * v
		}
	}
	var variance [3]float64
	if count > 0 {
		for axis := 0; axis < 3; axis++ {
			mean := sum[axis] / float64(count)
			variance[axis] = sumSq[axis]/float64(count) - mean*mean
			if variance[axis] <= 0 {
				variance[axis] = 1e-8
			}
		}
	}
	return variance
}

func runLoop(ctx context.Context, tracker *mac.Tracker, pipeline *fusion.Pipeline, imu *sim.IMU, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	source := fusionSource{pipeline: pipeline}
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if imu.DataReady() {
				if s, err := imu.Sample(); err == nil {
					pipeline.Update(now, s, nil)
				}
			}
			tracker.Step(now, source)
			if cmd := tracker.LastCmd(); cmd != mac.CmdNone {
				log.Printf("tracker-sim: received command %v from receiver", cmd)
			}
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
