package main

import (
	"flag"
	"time"

	"go.uber.org/zap"

	"avoidance-planner/avoidance"
	"avoidance-planner/config"
	"avoidance-planner/live"
)

func main() {
	var configPath string
	var poseAddr string
	var outputAddr string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to YAML config.")
	flag.StringVar(&poseAddr, "pose-addr", "", "Override live.pose_addr (host:port).")
	flag.StringVar(&outputAddr, "output-addr", "", "Override output.udp_addr (host:port).")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	cfg, err := config.Load(configPath)
	if err != nil {
		sugar.Fatalw("load config", "path", configPath, "err", err)
	}
	if poseAddr != "" {
		cfg.Live.PoseAddr = poseAddr
	}
	if outputAddr != "" {
		cfg.Output.UDPAddr = outputAddr
	}

	if !cfg.Log.Enabled {
		sugar = zap.NewNop().Sugar()
	}

	store := live.NewStore(len(cfg.Live.CloudAddrs))
	runner, err := live.Start(live.ListenConfig{
		PoseAddr:   cfg.Live.PoseAddr,
		CloudAddrs: cfg.Live.CloudAddrs,
		ReadBuffer: cfg.Live.ReadBuffer,
	}, store, sugar)
	if err != nil {
		sugar.Fatalw("start live listeners", "err", err)
	}
	defer func() { _ = runner.Close() }()

	watchdog := live.NewWatchdog(
		time.Duration(cfg.Planner.TimeoutCritical*float64(time.Second)),
		time.Duration(cfg.Planner.TimeoutTermination*float64(time.Second)),
		sugar,
	)
	stopWatchdog := make(chan struct{})
	go watchdog.Run(100*time.Millisecond, stopWatchdog)
	defer close(stopWatchdog)

	planner := avoidance.New(cfg, sugar)

	metrics, err := live.StartMetrics(live.MetricsConfig{
		Enabled: cfg.Metrics.Enabled,
		Addr:    cfg.Metrics.Addr,
	}, sugar)
	if err != nil {
		sugar.Fatalw("start metrics", "err", err)
	}

	sender, err := live.NewOutputSender(cfg.Output.UDPAddr)
	if err != nil {
		sugar.Fatalw("start output sender", "err", err)
	}
	defer func() { _ = sender.Close() }()

	for {
		in, ok := store.WaitForCycle()
		if !ok {
			sugar.Infow("avoidance: shutdown requested")
			return
		}

		now := time.Now()
		if h := watchdog.Health(now); h == live.HealthCritical {
			sugar.Warnw("avoidance: watchdog critical, forcing hover")
			sender.Send(avoidance.HoverOutput(now))
			continue
		}

		out, err := planner.RunCycle(in, now)
		if err != nil {
			sugar.Debugw("avoidance: cycle skipped", "err", err)
			continue
		}
		watchdog.NotifyCycleComplete(now)
		metrics.UpdateCycle(out.WaypointType.String(), out.ObstacleAhead, out.CruiseSpeed, len(out.PathNodePositions))
		sender.Send(out)
	}
}
