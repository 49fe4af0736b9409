// Command burl builds incremental mesh artifacts from Lisp node
// scripts.
//
//	burl build <script.burl>    drive the node tree to fully built
//	burl watch <script.burl>    rebuild whenever a source file changes
//	burl preview <script.burl>  evaluate in-process and print stats
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/chazu/burl/pkg/build"
	"github.com/chazu/burl/pkg/config"
	"github.com/chazu/burl/pkg/engine"
	"github.com/chazu/burl/pkg/preview"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd := os.Args[1]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fs.String("config", "burl.toml", "path to the config file")
	buildDir := fs.String("build-dir", "", "override the build root directory")
	outFile := fs.String("o", "", "preview: write the preview mesh to this STL file")
	verbose := fs.Bool("v", false, "enable debug logging")
	fs.Parse(os.Args[2:])

	logger := initLogger(*verbose)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}
	if *buildDir != "" {
		cfg.BuildRoot = *buildDir
	}

	script := fs.Arg(0)
	if script == "" {
		usage()
		os.Exit(2)
	}

	switch cmd {
	case "build":
		runBuild(cfg, logger, script)
	case "watch":
		runWatch(cfg, logger, script)
	case "preview":
		runPreview(cfg, logger, script, *outFile)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: burl {build|watch|preview} [flags] <script.burl>")
}

func initLogger(verbose bool) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).With().Timestamp().Str("app", "burl").Logger()
	if verbose {
		return logger.Level(zerolog.DebugLevel)
	}
	return logger.Level(zerolog.InfoLevel)
}

func runBuild(cfg config.Config, logger zerolog.Logger, script string) {
	n, err := engine.LoadNode(script, cfg.BuildRoot, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("load")
	}
	d := build.New(cfg, logger)
	if err := d.BuildAll(n); err != nil {
		logger.Fatal().Err(err).Msg("build")
	}
}

func runWatch(cfg config.Config, logger zerolog.Logger, script string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := build.New(cfg, logger)
	if err := d.Watch(ctx, script); err != nil {
		logger.Fatal().Err(err).Msg("watch")
	}
}

func runPreview(cfg config.Config, logger zerolog.Logger, script, outFile string) {
	n, err := engine.LoadNode(script, cfg.BuildRoot, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("load")
	}
	if _, err := n.Assemble(""); err != nil {
		logger.Fatal().Err(err).Msg("assemble")
	}

	stats, err := preview.Evaluate(n.Model(), cfg.PreviewCells)
	if err != nil {
		logger.Fatal().Err(err).Msg("preview")
	}
	logger.Info().
		Str("node", n.Name()).
		Floats64("min", stats.Min[:]).
		Floats64("max", stats.Max[:]).
		Int("triangles", stats.Triangles).
		Float64("volume", stats.Volume).
		Msg("preview")

	if outFile != "" {
		m, err := preview.Mesh(n.Model(), cfg.PreviewCells)
		if err != nil {
			logger.Fatal().Err(err).Msg("preview mesh")
		}
		if err := m.SaveBinary(outFile); err != nil {
			logger.Fatal().Err(err).Msg("save")
		}
		logger.Info().Str("file", outFile).Msg("preview mesh written")
	}
}
