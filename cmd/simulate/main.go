// Package main replays an encounter script through the initiative components
// with in-memory backends and prints the tracker after every step.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/action-initiative/internal/config"
	"github.com/cory-johannsen/action-initiative/internal/game/content"
	"github.com/cory-johannsen/action-initiative/internal/observability"
	"github.com/cory-johannsen/action-initiative/internal/presentation/text"
	"github.com/cory-johannsen/action-initiative/internal/replay"
)

func main() {
	start := time.Now()

	scriptPath := flag.String("script", "content/encounters/goblin-ambush.yaml", "path to the encounter script")
	noAutoStart := flag.Bool("no-autostart", false, "leave the timer stopped at round start")
	color := flag.Bool("color", false, "colorize the tracker")
	logLevel := flag.String("log-level", "warn", "log level: debug, info, warn, error")
	flag.Parse()

	logger, err := observability.NewLogger(config.LoggingConfig{Level: *logLevel, Format: "console"})
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	script, err := content.LoadScriptFromFile(*scriptPath)
	if err != nil {
		logger.Fatal("loading script", zap.String("path", *scriptPath), zap.Error(err))
	}

	opts := replay.DefaultOptions()
	opts.AutoStart = !*noAutoStart
	runner, err := replay.New(script, opts, logger)
	if err != nil {
		logger.Fatal("preparing replay", zap.Error(err))
	}

	frames, err := runner.Run(context.Background())
	printFrames(os.Stdout, frames, *color)
	if err != nil {
		logger.Fatal("replay failed", zap.Error(err))
	}

	fmt.Fprintf(os.Stdout, "%d step(s), %d chat message(s) [%s]\n",
		len(frames), len(runner.Messages()), time.Since(start))
}

func printFrames(w io.Writer, frames []replay.Frame, color bool) {
	for _, f := range frames {
		header := fmt.Sprintf("#%02d %s", f.Index+1, f.Step)
		if f.Note != "" {
			header += " -> " + f.Note
		}
		if color {
			header = text.Colorize(text.Yellow, header)
		}
		fmt.Fprintln(w, header)

		timer := timersFor(f)
		fmt.Fprint(w, text.RenderTracker(f.Round, timer, f.Turns, text.Options{Color: color}))

		state := "running"
		if f.Paused {
			state = "paused"
		}
		controller := f.Controller
		if controller == "" {
			controller = "none"
		}
		fmt.Fprintf(w, "  controller=%s session=%s\n\n", controller, state)
	}
}

// timersFor joins every participant's timer text in id order.
func timersFor(f replay.Frame) string {
	ids := make([]string, 0, len(f.Timers))
	for id := range f.Timers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += " "
		}
		out += id + "=" + f.Timers[id]
	}
	if out == "" {
		return "no participants"
	}
	return out
}
