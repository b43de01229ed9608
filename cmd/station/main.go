package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/rxtech-lab/argo-station/internal/logger"
	"github.com/rxtech-lab/argo-station/internal/station"
)

// stationAction builds the config from flags, starts the pipeline, and runs
// the dashboard until quit or signal.
func stationAction(ctx context.Context, cmd *cli.Command) error {
	config, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	log, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	st, err := station.NewStation(*config, log)
	if err != nil {
		return err
	}

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	program := tea.NewProgram(
		NewModel(st.Bridge(), config.Redraw()),
		tea.WithAltScreen(),
	)

	stationDone := make(chan error, 1)

	go func() {
		err := st.Run(runCtx, station.Callbacks{})
		stationDone <- err

		// Pipeline death takes the dashboard down with it.
		program.Send(StationStoppedMsg{Err: err})
	}()

	_, runErr := program.Run()

	cancel()

	if err := <-stationDone; err != nil {
		return err
	}

	return runErr
}

// buildConfig merges the config file (when given) with flag overrides.
func buildConfig(cmd *cli.Command) (*station.Config, error) {
	var config *station.Config

	if path := cmd.String("config"); path != "" {
		loaded, err := station.LoadConfig(path)
		if err != nil {
			return nil, err
		}

		config = loaded
	} else {
		config = &station.Config{}
	}

	if url := cmd.String("url"); url != "" {
		config.URL = url
	}

	if ids := cmd.StringSlice("symbols"); len(ids) > 0 {
		config.Subscriptions = ids
	}

	if redraw := cmd.Duration("redraw"); redraw > 0 {
		config.RedrawInterval = redraw.String()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func main() {
	cmd := &cli.Command{
		Name:  "station",
		Usage: "Live dashboard over a streaming backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Aliases: []string{"u"},
				Usage:   "Backend websocket URL (ws:// or wss://)",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
			},
			&cli.StringSliceFlag{
				Name:    "symbols",
				Aliases: []string{"s"},
				Usage:   "Entity ids to subscribe on connect",
			},
			&cli.DurationFlag{
				Name:    "redraw",
				Aliases: []string{"r"},
				Usage:   "Dashboard redraw cadence",
				Value:   250 * time.Millisecond,
			},
		},
		Action: stationAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatalf("station failed: %v", err)
	}
}
