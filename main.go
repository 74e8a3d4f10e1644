package main

import (
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/kassenov/sumo/domain"
	"github.com/kassenov/sumo/internal/simtime"
	"github.com/kassenov/sumo/ipc"
	"github.com/kassenov/sumo/meso"
	"github.com/kassenov/sumo/scenario"
	"github.com/kassenov/sumo/scheduler"
	"github.com/kassenov/sumo/telemetry"
)

func main() {
	scenarioPath := flag.String("scenario", "", "path to a scenario JSON file")
	until := flag.Float64("until", 3600, "stop the simulation after this many simulated seconds")
	telemetryAddr := flag.String("telemetry-addr", "", "address to serve /api/segments, /ws and /metrics on (empty disables telemetry)")
	controlAddr := flag.String("control-addr", "", "address to serve the vaporize/set-speed/save-checkpoint control plane on (empty disables it)")
	seed := flag.Int64("seed", 1, "seed for the overtaking RNG")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if *scenarioPath == "" {
		log.Fatal("-scenario is required")
	}

	f, err := os.Open(*scenarioPath)
	if err != nil {
		log.WithError(err).Fatal("opening scenario file")
	}
	defer f.Close()

	network := meso.NewNetwork()
	ctx := meso.NewContext(*seed, meso.Config{})
	loop := scheduler.New(network, ctx)

	scn, err := scenario.Load(f, network, loop)
	if err != nil {
		log.WithError(err).Fatal("loading scenario")
	}
	ctx.Config = scn.Config
	log.WithFields(logrus.Fields{
		"edges":      len(scn.Edges),
		"departures": len(scn.Departures),
	}).Info("scenario loaded")

	var collector *telemetry.Collector
	if *telemetryAddr != "" {
		collector, err = telemetry.NewCollector(prometheus.DefaultRegisterer)
		if err != nil {
			log.WithError(err).Fatal("registering telemetry collector")
		}
	}
	telemetryServer := telemetry.NewServer(network, collector, log)

	stop := make(chan struct{})
	if *telemetryAddr != "" {
		httpServer := &http.Server{Addr: *telemetryAddr, Handler: telemetryServer.Mux()}
		go func() {
			log.WithField("addr", *telemetryAddr).Info("telemetry server listening")
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Warn("telemetry server stopped")
			}
		}()
		go telemetryServer.BroadcastLoop(time.Second, stop)
		defer httpServer.Close()
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	departures := make([]scenario.Departure, len(scn.Departures))
	copy(departures, scn.Departures)
	sort.Slice(departures, func(i, j int) bool { return departures[i].DepartTick < departures[j].DepartTick })

	horizon := simtime.FromSeconds(*until)
	drive := scheduler.Drive(loop, ctx)
	depart := func(dep scenario.Departure) {
		veh := domain.New(dep.VehicleID, meso.VehicleType{
			Length:   dep.Length,
			MinGap:   dep.MinGap,
			MaxSpeed: dep.MaxSpeed,
		}, dep.Route, 1)
		if len(dep.Route) == 0 {
			return
		}
		seg := network.SegmentForEdge(dep.Route[0])
		if seg == nil {
			log.WithField("vehicle", dep.VehicleID).Warn("no segment for departure edge, skipping")
			return
		}
		ctx.Tick = dep.DepartTick
		ok, err := seg.Initialise(ctx, veh, dep.DepartTick)
		if err != nil {
			log.WithError(err).WithField("vehicle", dep.VehicleID).Warn("could not initialise departure")
			return
		}
		if !ok {
			log.WithField("vehicle", dep.VehicleID).Warn("segment had no space at depart time")
		}
	}

	if *controlAddr != "" {
		dispatcher := ipc.NewDispatcher(network, loop.GetCurrentTimeStep, nil)
		listener := ipc.NewListener(dispatcher, log)
		ln, err := net.Listen("tcp", *controlAddr)
		if err != nil {
			log.WithError(err).Fatal("listening on control address")
		}
		defer ln.Close()
		go func() {
			log.WithField("addr", *controlAddr).Info("control plane listening")
			if err := listener.Serve(ln); err != nil {
				log.WithError(err).Warn("control plane listener stopped")
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, dep := range departures {
			if dep.DepartTick > horizon {
				break
			}
			loop.Run(dep.DepartTick, drive)
			depart(dep)
		}
		loop.Run(horizon, drive)
	}()

	select {
	case <-done:
		log.Info("simulation reached horizon, exiting")
	case <-signals:
		log.Info("shutdown signal received, exiting")
	}
	close(stop)
}
