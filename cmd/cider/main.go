package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/glebovdev/cider-cli/internal/api"
	"github.com/glebovdev/cider-cli/internal/cache"
	"github.com/glebovdev/cider-cli/internal/catalog"
	"github.com/glebovdev/cider-cli/internal/config"
	"github.com/glebovdev/cider-cli/internal/service"
	"github.com/glebovdev/cider-cli/internal/socket"
	"github.com/glebovdev/cider-cli/internal/ui"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	app       = kingpin.New("cider", config.AppDescription)
	debugFlag = app.Flag("debug", "Enable debug logging").Bool()
	urlFlag   = app.Flag("url", "Cider RPC address (overrides config and "+config.EnvURL+")").String()
	homeFlag  = app.Flag("home", "Start view").
			Enum(config.HomeRecommendations, config.HomeRecent, config.HomePlaylists, config.HomeSearch)
)

func setupLogging(debug bool) {
	if !debug {
		// Avoid TUI corruption by only logging errors to /dev/null
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		if logFile, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0644); err == nil {
			log.Logger = log.Output(logFile)
		}
		return
	}

	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	cacheDir, err := cache.GetCacheDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not get cache dir: %v\n", err)
		cacheDir = os.TempDir()
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log dir: %v\n", err)
	}
	logPath := filepath.Join(cacheDir, "debug.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log file: %v\n", err)
		logFile = os.Stderr
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: logFile, TimeFormat: "15:04:05"})
	fmt.Printf("Debug log: %s\n", logPath)
	log.Info().Msgf("Starting %s v%s (debug mode)", config.AppName, config.AppVersion)
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	app.Version(fmt.Sprintf("%s v%s", config.AppName, config.AppVersion))
	app.HelpFlag.Short('h')
	kingpin.MustParse(app.Parse(os.Args[1:]))

	setupLogging(*debugFlag)

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Invalid config, using defaults")
	}
	cfg.Override(*urlFlag, *homeFlag)
	if configPath, err := config.GetConfigPath(); err == nil {
		log.Debug().Msgf("Config: %s", configPath)
	}

	artwork, err := cache.NewCache()
	if err != nil {
		log.Warn().Err(err).Msg("Artwork cache disabled")
	}

	engine := api.NewCiderClient(cfg.Engine.URL, cfg.Engine.Token)
	catalogClient := catalog.NewClient(engine, cfg.Engine.Storefront)

	svc := service.NewPlaybackService(engine, catalogClient, service.Options{
		Debounce:       cfg.Timing.Debounce(),
		StationPoll:    cfg.Timing.StationPoll(),
		StationTimeout: cfg.Timing.StationTimeout(),
		StatusClear:    cfg.Timing.StatusClear(),
		Throttle:       cfg.Timing.Throttle(),
		FallbackPoll:   cfg.Timing.FallbackPoll(),
		EndThreshold:   cfg.Timing.EndThreshold,
		AutoPlay:       cfg.AutoPlay,
		OnAutoPlayChange: func(enabled bool) {
			cfg.AutoPlay = enabled
			if err := cfg.Save(); err != nil {
				log.Error().Err(err).Msg("Failed to save config")
			}
		},
		Artwork: artwork,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := socket.NewClient(cfg.Engine.URL, svc.HandleEvent, socket.Options{Token: cfg.Engine.Token})
	if err != nil {
		log.Warn().Err(err).Msg("Push events disabled, relying on polling")
	} else {
		events.OnConnect(svc.RefreshNowPlaying)
		go func() {
			if err := events.Run(ctx); err != nil {
				log.Warn().Err(err).Msg("Event stream stopped, relying on polling")
			}
		}()
	}

	svc.Start(ctx)

	cider := ui.NewUI(svc, catalogClient, cfg)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal, cleaning up...")
		cider.Shutdown()
	}()

	uiDone := make(chan error, 1)
	// Run UI in a goroutine so we can handle signals properly
	go func() {
		uiDone <- cider.Run()
	}()

	err = <-uiDone
	cancel()
	svc.Close()

	if err != nil {
		log.Error().Err(err).Msg("Error running UI")
		os.Exit(1)
	}
	log.Info().Msgf("%s stopped", config.AppName)
}
