// Package main provides the initiative service: one participant's view of the
// shared round timer and turn tracker, driven from an operator console.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/action-initiative/internal/config"
	"github.com/cory-johannsen/action-initiative/internal/console"
	"github.com/cory-johannsen/action-initiative/internal/game/action"
	"github.com/cory-johannsen/action-initiative/internal/game/combat"
	"github.com/cory-johannsen/action-initiative/internal/game/content"
	"github.com/cory-johannsen/action-initiative/internal/game/dice"
	"github.com/cory-johannsen/action-initiative/internal/game/round"
	"github.com/cory-johannsen/action-initiative/internal/game/scene"
	"github.com/cory-johannsen/action-initiative/internal/game/targeting"
	"github.com/cory-johannsen/action-initiative/internal/observability"
	"github.com/cory-johannsen/action-initiative/internal/presentation/feed"
	"github.com/cory-johannsen/action-initiative/internal/render"
	"github.com/cory-johannsen/action-initiative/internal/server"
	"github.com/cory-johannsen/action-initiative/internal/settings"
	"github.com/cory-johannsen/action-initiative/internal/timersync"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	encounterPath := flag.String("encounter", "", "encounter script YAML; empty = an empty encounter")
	noConsole := flag.Bool("no-console", false, "run without the operator console on stdin")
	color := flag.Bool("color", true, "colorize console output")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	baseLogger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer baseLogger.Sync()
	defer observability.CaptureLibraryLogs(baseLogger)()
	logger := observability.ForParticipant(baseLogger, cfg.Participant)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Encounter
	engine := combat.NewEngine()
	enc, actions, defaultDuration, dexTiebreaker, err := loadEncounter(*encounterPath, cfg)
	if err != nil {
		logger.Fatal("loading encounter", zap.String("path", *encounterPath), zap.Error(err))
	}
	if err := engine.Start(enc); err != nil {
		logger.Fatal("starting encounter", zap.Error(err))
	}
	logger = observability.ForEncounter(logger, enc.ID)
	logger.Info("encounter loaded",
		zap.Int("combatants", len(enc.Turns())),
		zap.Int("actions", len(actions)),
	)

	lifecycle := server.NewLifecycle(logger)

	// Storage
	storage, err := openStorage(ctx, cfg, lifecycle, logger)
	if err != nil {
		logger.Fatal("opening storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer storage.close()
	store := settings.NewStore(storage.settings, logger, defaultDuration)

	// Render sinks
	sinks := render.Multi{render.NewLogSink(logger)}
	var renderFeed *feed.Feed
	if cfg.Feed.Enabled {
		renderFeed = feed.New(engine, logger)
		sinks = append(sinks, renderFeed)
	}
	var sink render.Sink = sinks

	// Transport and controller election
	link, err := newTimerBus(cfg, lifecycle, logger)
	if err != nil {
		logger.Fatal("creating timer bus", zap.String("mode", cfg.Bus.Mode), zap.Error(err))
	}

	timer := timersync.New(store, link.broadcaster, link.isController, link.sessions.Paused, sink,
		timersync.SystemClock{}, timersync.Options{
			TickInterval: cfg.Timer.TickInterval,
			SettleDelay:  cfg.Timer.SettleDelay,
			ResumeDelay:  cfg.Timer.ResumeDelay,
		}, logger)
	defer timer.Close()
	link.attach(lifecycle, timer.Signals(link.sessions))

	if err := timer.Resync(ctx); err != nil {
		logger.Warn("timer resync failed", zap.Error(err))
	}

	roller := dice.NewLoggedRoller(dice.NewCryptoSource(), logger)
	con := console.New(console.Deps{
		Participant:  cfg.Participant.ID,
		Encounters:   engine,
		Sessions:     link.sessions,
		Timer:        timer,
		Round:        round.NewController(link.isController, timer, sink, cfg.Timer.AutoStartOnRound, logger),
		Classifier:   action.NewClassifier(roller, storage.chat, sink, action.NewGate(), dexTiebreaker, logger),
		Targets:      targeting.NewTracker(enc.Scene, link.sessions.IsOwner, sink, logger),
		Store:        store,
		Actions:      actions,
		IsController: link.isController,
		Color:        *color,
	}, logger)

	if renderFeed != nil {
		httpServer := &http.Server{
			Addr:              cfg.Feed.Addr(),
			Handler:           renderFeed.Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		lifecycle.Add("feed", &server.FuncService{
			StartFn: func(_ context.Context) error {
				logger.Info("render feed listening", zap.String("addr", cfg.Feed.Addr()))
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("serving feed on %s: %w", cfg.Feed.Addr(), err)
				}
				return nil
			},
			StopFn: func(ctx context.Context) {
				if err := httpServer.Shutdown(ctx); err != nil {
					logger.Warn("feed shutdown", zap.Error(err))
				}
				renderFeed.Close()
			},
		})
	}

	if !*noConsole {
		lifecycle.Add("console", &server.FuncService{
			StartFn: func(ctx context.Context) error {
				done := make(chan error, 1)
				go func() {
					done <- con.Run(ctx, os.Stdin, os.Stdout)
					// Leaving the console ends the process.
					cancel()
				}()
				select {
				case err := <-done:
					return err
				case <-ctx.Done():
					return nil
				}
			},
		})
	}

	logger.Info("initiative service ready",
		zap.String("bus_mode", cfg.Bus.Mode),
		zap.String("storage", cfg.Storage.Driver),
		zap.Bool("feed", cfg.Feed.Enabled),
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Error("lifecycle error", zap.Error(err))
		os.Exit(1)
	}
}

// loadEncounter builds the encounter from the script at path, or an empty
// encounter when path is empty.
//
// Postcondition: the returned default duration is the script's timer duration
// when set, else the configured default.
func loadEncounter(path string, cfg config.Config) (*combat.Encounter, map[string]action.Action, int64, bool, error) {
	defaultDuration := int64(cfg.Timer.DefaultDuration)
	if path == "" {
		return combat.NewEncounter("default", scene.New()), nil, defaultDuration, cfg.Ruleset.DexTiebreaker, nil
	}
	script, err := content.LoadScriptFromFile(path)
	if err != nil {
		return nil, nil, 0, false, err
	}
	_, enc, err := script.Build()
	if err != nil {
		return nil, nil, 0, false, err
	}
	if script.TimerDuration > 0 {
		defaultDuration = script.TimerDuration
	}
	return enc, script.Actions, defaultDuration, cfg.Ruleset.DexTiebreaker || script.DexTiebreaker, nil
}
