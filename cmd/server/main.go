package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/observatory-dash/backend/internal/config"
	"github.com/observatory-dash/backend/internal/logger"
	"github.com/observatory-dash/backend/internal/metrics"
	"github.com/observatory-dash/backend/internal/mock"
	"github.com/observatory-dash/backend/internal/natspub"
	"github.com/observatory-dash/backend/internal/observatory"
	"github.com/observatory-dash/backend/internal/sysinfo"
	"github.com/observatory-dash/backend/internal/ws"
)

var version = "dev"

type Globals struct {
	Config  string `short:"c" help:"Configuration file path" default:"config.yaml" type:"path"`
	Verbose bool   `short:"v" help:"Enable debug logging"`
}

type CLI struct {
	Globals

	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Serve ServeCmd `cmd:"" default:"withargs" help:"Follow the controller and serve the dashboard"`
	Mock  MockCmd  `cmd:"" help:"Serve the dashboard from a simulated imaging night"`
	Token TokenCmd `cmd:"" help:"Print a random dashboard auth token"`
}

type ServeCmd struct {
	Port int `short:"p" help:"Override server port"`
}

func (c *ServeCmd) Run(g *Globals) error {
	return run(g, runOptions{port: c.Port})
}

type MockCmd struct {
	Port     int           `short:"p" help:"Override server port"`
	Interval time.Duration `help:"Delay between simulated controller events" default:"500ms"`
}

func (c *MockCmd) Run(g *Globals) error {
	return run(g, runOptions{port: c.Port, mock: true, interval: c.Interval})
}

type TokenCmd struct{}

func (TokenCmd) Run() error {
	token, err := config.GenerateToken()
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

type runOptions struct {
	port     int
	mock     bool
	interval time.Duration
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("observatory-server"),
		kong.Description("Unified observatory state service for the NINA controller."),
		kong.Vars{"version": version},
		kong.Bind(&cli.Globals),
	)
	kctx.FatalIfErrorf(kctx.Run())
}

func run(g *Globals, opts runOptions) error {
	cfg, err := config.LoadOrDefault(g.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.port > 0 {
		cfg.Server.Port = opts.port
	}
	if g.Verbose {
		cfg.Log.Debug = true
	}
	if err := logger.Init(cfg.Log); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log := logger.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rec *metrics.Recorder
	if cfg.Metrics.Enabled {
		rec = metrics.NewRecorder(nil)
	}

	built, err := observatory.Build(cfg, rec, observatory.BuildOptions{Offline: opts.mock}, logger.GetLogger())
	if err != nil {
		return err
	}
	defer built.Stop()

	broadcaster := ws.NewBroadcaster(built, ws.BroadcastOptions{
		SendBuffer: cfg.Broadcast.ClientBuffer,
		MaxClients: cfg.Broadcast.MaxClients,
		Heartbeat:  cfg.Broadcast.HeartbeatInterval,
	}, logger.WithComponent("broadcast"))
	broadcaster.SetRecorder(rec)
	defer broadcaster.Stop()
	built.Subscribe(broadcaster.Publish)

	if cfg.NATS.Enabled {
		pub, err := natspub.Connect(cfg.NATS, logger.WithComponent("nats"))
		if err != nil {
			log.Warn().Err(err).Msg("nats publishing disabled")
		} else {
			pub.SetRecorder(rec)
			built.Subscribe(pub.Publish)
			defer func() {
				if err := pub.Close(); err != nil {
					log.Warn().Err(err).Msg("nats drain failed")
				}
			}()
		}
	}

	sampler := sysinfo.NewSampler(cfg.System.DiskPath, cfg.System.PollInterval, logger.WithComponent("sysinfo"))
	go sampler.Run(ctx)

	server := ws.NewServer(built, broadcaster, cfg.Server.AllowedOrigins, cfg.Server.AuthToken, logger.WithComponent("server"))
	server.SetSampler(sampler)
	if rec != nil {
		server.SetMetrics(cfg.Metrics.Path, rec.Handler())
	}

	if err := built.Start(ctx); err != nil {
		return fmt.Errorf("start observatory system: %w", err)
	}

	if opts.mock {
		loc, _ := cfg.Location()
		log.Info().Dur("interval", opts.interval).Msg("starting in mock mode")
		mock.NewGenerator(built, opts.interval, loc, logger.WithComponent("mock")).Start(ctx)
	} else {
		log.Info().
			Str("events", cfg.Controller.EventsURL()).
			Str("history", cfg.Controller.HistoryURL()).
			Msg("following controller")
	}

	go watchReload(ctx, g.Config, cfg)

	return ws.Serve(ctx, cfg.Server.Host, cfg.Server.Port, server.Handler(), logger.WithComponent("server"))
}

// watchReload re-reads the config file on SIGHUP. Only logging settings
// take effect live; other differences are reported.
func watchReload(ctx context.Context, path string, current *config.Config) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	log := logger.WithComponent("config")
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
		}

		next, err := config.Load(path)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("config reload failed")
			continue
		}
		changes := config.Diff(current, next)
		if len(changes) == 0 {
			log.Info().Msg("config reloaded, no changes")
			continue
		}
		for _, c := range changes {
			log.Info().Str("change", c).Msg("config changed")
		}
		if current.Log != next.Log {
			if err := logger.Init(next.Log); err != nil {
				log.Error().Err(err).Msg("invalid log settings, keeping previous")
				continue
			}
			log = logger.WithComponent("config")
		}
		current = next
	}
}
