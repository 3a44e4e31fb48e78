package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/predictbot/config"
)

const usage = `usage: predictd [flags] [command]

commands:
  serve              run the keeper and the HTTP API (default)
  init               initialize the market with the configured owner
  genesis-start      open the first round
  genesis-lock       lock the first round and open the second
  advance            settle, lock and open the next round
  pause | unpause
  pause-automation | resume-automation
  status             print the latest rounds and exit
  transfer-ownership <addr>
  accept-ownership <addr>
  claim-treasury
  bet <addr> <epoch> <up|down> <stake> [paid]
  claim <addr> <epoch>...
  deposit <addr> <amount>   credit a wallet from outside the market
  fund <amount>             credit the market reserve
  balance [addr]            print the market balance, or a wallet's

flags:
`

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file (.yaml or .toml)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print status as a full table (default: compact 1-line)")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	command := "serve"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := build(ctx, cfg, *table)
	if err != nil {
		slog.Error("failed to build market", "err", err)
		os.Exit(1)
	}
	defer a.close()

	slog.Info("predictd starting",
		"config", *configPath,
		"command", command,
		"pool", cfg.Market.PoolID,
		"storage", cfg.Storage.Driver,
		"interval", cfg.Interval(),
	)

	if command == "serve" {
		err = serve(ctx, a)
	} else {
		err = runCommand(ctx, a, command, flag.Args()[1:])
	}
	if err != nil {
		slog.Error("predictd exited with error", "command", command, "err", err)
		os.Exit(1)
	}

	slog.Info("predictd stopped cleanly")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
