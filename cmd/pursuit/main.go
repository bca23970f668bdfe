// Command pursuit runs the target-pursuit stack: state estimation, replanning
// toward the tracked target, optional bump detection, and the HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/pursuit/internal/actuator"
	"github.com/banshee-data/pursuit/internal/api"
	"github.com/banshee-data/pursuit/internal/bump"
	"github.com/banshee-data/pursuit/internal/bus"
	"github.com/banshee-data/pursuit/internal/config"
	"github.com/banshee-data/pursuit/internal/coordinator"
	"github.com/banshee-data/pursuit/internal/estimator"
	"github.com/banshee-data/pursuit/internal/planner"
	"github.com/banshee-data/pursuit/internal/telemetry"
	"github.com/banshee-data/pursuit/internal/timeutil"
	"github.com/banshee-data/pursuit/internal/version"
	"github.com/banshee-data/pursuit/internal/vision"
)

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Tuning config JSON file")
	busBackend  = flag.String("bus", "", "Bus backend: local or mqtt (overrides config)")
	broker      = flag.String("broker", "", "MQTT broker URL (overrides config)")
	port        = flag.String("port", "/dev/ttyACM0", "ODrive serial port (ignored with -sim)")
	simMode     = flag.Bool("sim", false, "Drive a simulated base instead of the ODrive")
	listen      = flag.String("listen", ":8080", "Listen address")
	dbPath      = flag.String("db", "pursuit.db", "Telemetry database path; empty disables telemetry")
	bumpTest    = flag.Bool("bump", false, "Run the bump detector instead of pursuit")
	approach    = flag.Bool("approach", false, "Drive forward until the depth camera sees an object, instead of pursuit")
	plotDir     = flag.String("plot-dir", "", "Write bump trace plots here on exit")
	note        = flag.String("note", "", "Note stored with the telemetry run")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// Main
func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	tuning, err := config.LoadTuningConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	applyFlagOverrides(tuning)
	log.Printf("starting %s", version.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, tuning); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("pursuit: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

// applyFlagOverrides copies explicitly set bus flags into the tuning config.
func applyFlagOverrides(tuning *config.TuningConfig) {
	if *busBackend != "" {
		tuning.BusBackend = busBackend
	}
	if *broker != "" {
		tuning.MQTTBroker = broker
	}
}

func openBus(tuning *config.TuningConfig) (bus.Bus, error) {
	switch backend := tuning.GetBusBackend(); backend {
	case config.BusLocal:
		return bus.NewLocalBus(tuning.GetBusBufferSize(), nil), nil
	case config.BusMQTT:
		return bus.DialMQTT(bus.MQTTConfig{
			Broker:         tuning.GetMQTTBroker(),
			ConnectTimeout: tuning.GetMQTTConnectTimeout(),
			Buffer:         tuning.GetBusBufferSize(),
		})
	default:
		return nil, fmt.Errorf("unknown bus backend %q", backend)
	}
}

// drive is the motor controller plus whatever closes it.
type drive struct {
	actuator.Actuator
	sim   *actuator.Sim
	close func() error
}

func openDrive(tuning *config.TuningConfig, clock timeutil.Clock) (*drive, error) {
	cfg := actuator.ConfigFromTuning(tuning)
	if *simMode {
		sim := actuator.NewSim(cfg, clock)
		return &drive{Actuator: sim, sim: sim, close: func() error { return nil }}, nil
	}
	od, err := actuator.OpenODrive(*port, actuator.PortOptionsFromTuning(tuning), cfg)
	if err != nil {
		return nil, err
	}
	return &drive{Actuator: od, close: od.Close}, nil
}

func run(ctx context.Context, tuning *config.TuningConfig) error {
	clock := timeutil.RealClock{}

	b, err := openBus(tuning)
	if err != nil {
		return fmt.Errorf("open bus: %w", err)
	}
	defer b.Close()

	drv, err := openDrive(tuning, clock)
	if err != nil {
		return fmt.Errorf("open drive: %w", err)
	}
	defer drv.close()

	var (
		store *telemetry.Store
		rec   *telemetry.Recorder
	)
	if *dbPath != "" {
		store, err = telemetry.Open(*dbPath)
		if err != nil {
			return fmt.Errorf("open telemetry: %w", err)
		}
		defer store.Close()
		rec, err = store.StartRun(clock.Now(), *note)
		if err != nil {
			return fmt.Errorf("start run: %w", err)
		}
		log.Printf("recording run %s to %s", rec.RunID(), store.Path())
		defer func() {
			if err := rec.Finish(clock.Now()); err != nil {
				log.Printf("failed to finish run: %v", err)
			}
		}()
	}

	g, ctx := errgroup.WithContext(ctx)
	srv := &api.Server{Bus: b, Telemetry: store, MaxSpeed: 1}

	// State estimation publishes the selected pose on the odometry topic.
	var imu estimator.IMU
	if drv.sim != nil {
		imu = estimator.SimIMU{Sim: drv.sim}
	} else {
		busIMU := estimator.NewBusIMU(tuning.GetIMUStaleAfter(), clock)
		g.Go(func() error { return busIMU.Run(ctx, b) })
		imu = busIMU
	}
	est := estimator.New(estimator.ConfigFromTuning(tuning), drv, imu, clock)
	if rec != nil {
		est.OnSnapshot(func(s estimator.Snapshot) {
			if _, err := rec.RecordSnapshot(s); err != nil {
				log.Printf("failed to record pose: %v", err)
			}
		})
	}
	g.Go(func() error { return est.Run(ctx, b) })
	srv.Estimator = est

	src, err := vision.NewSource(tuning.GetVisionSource(), tuning.GetTargetStaleAfter(), clock)
	if err != nil {
		return err
	}
	g.Go(func() error { return src.Run(ctx, b) })
	srv.Vision = src

	var det *bump.Detector
	if *bumpTest {
		det = bump.New(bump.ConfigFromTuning(tuning), drv, tuning.GetWheelDiameterMM(), clock)
		det.OnBump(func(e bump.Event) {
			log.Printf("bump at %s: error rate %.3f, reversing to %.2f m/s", e.At.Format(time.RFC3339Nano), e.ErrorRate, e.Reversed)
			if rec != nil {
				if err := rec.RecordBump(e); err != nil {
					log.Printf("failed to record bump: %v", err)
				}
			}
		})
		g.Go(func() error { return det.Run(ctx) })
		srv.Bump = det
	} else if *approach {
		cfg := vision.ApproachConfigFromTuning(tuning)
		g.Go(func() error {
			d, err := vision.ApproachUntilClose(ctx, drv, src, cfg, clock)
			if err != nil {
				return fmt.Errorf("approach: %w", err)
			}
			log.Printf("approach finished at %.2fm", d)
			return nil
		})
	} else {
		in := coordinator.NewInputs()
		g.Go(func() error { return in.Run(ctx, b) })
		coord := coordinator.New(
			coordinator.ConfigFromTuning(tuning),
			planner.New(planner.ConfigFromTuning(tuning)),
			in, coordinator.BusPublisher{Bus: b}, clock,
		)
		if rec != nil {
			coord.OnPlan(func(p planner.Plan, at time.Time) {
				if err := rec.RecordPlan(p, at); err != nil {
					log.Printf("failed to record plan: %v", err)
				}
			})
		}
		g.Go(func() error { return coord.Run(ctx) })
		srv.Coordinator = coord
		srv.Grid = in.Grid
	}

	mux := srv.ServeMux()
	bus.AttachAdminRoutes(mux, b)
	if store != nil {
		if err := store.AttachAdminRoutes(mux); err != nil {
			return fmt.Errorf("attach telemetry admin: %w", err)
		}
	}
	server := &http.Server{
		Addr:              *listen,
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Println("shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			return server.Close()
		}
		return nil
	})

	err = g.Wait()

	if det != nil && *plotDir != "" {
		if err := os.MkdirAll(*plotDir, 0o755); err != nil {
			log.Printf("failed to create plot dir: %v", err)
		} else if files, err := bump.PlotTrace(*plotDir, det.Trace()); err != nil {
			log.Printf("failed to plot bump trace: %v", err)
		} else {
			log.Printf("wrote %d plots to %s", len(files), *plotDir)
		}
	}
	return err
}
