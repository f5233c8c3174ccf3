// Command segue renders musical transitions between worship songs, keeps a
// catalog of analysed songs and serves a render queue with live preview.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/logging"

	"github.com/satindergrewal/segue/internal/config"
	seguelog "github.com/satindergrewal/segue/internal/logging"
)

// app is what every subcommand shares.
type app struct {
	cfg     config.Config
	factory logging.LoggerFactory
	log     logging.LeveledLogger
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	cfg := config.Load()
	factory := seguelog.NewFactory(cfg.LogLevel)
	a := &app{cfg: cfg, factory: factory, log: factory.NewLogger("segue")}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "render":
		err = a.render(ctx, args)
	case "set":
		err = a.set(ctx, args)
	case "songs":
		err = a.songs(ctx, args)
	case "transitions":
		err = a.transitions(args)
	case "serve":
		err = a.serve(ctx, args)
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "segue %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Usage: segue <command> [flags]

Commands:
  render        build one transition from two audio files and their analyses
  set           render every transition of a setlist of catalog songs
  songs         add, list, show or remove catalog songs
  transitions   list rendered transitions
  serve         run the HTTP API, render queue and live preview

Run "segue <command> -h" for the flags of a command. Defaults come from
SEGUE_* environment variables.
`)
}
