package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"histsync/config"
	"histsync/internal/runner"
	"histsync/logger"

	"github.com/spf13/pflag"
)

func main() {
	os.Exit(run())
}

func run() int {
	// viper config
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return runner.ExitOK
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		return runner.ExitFailure
	}

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create logger:", err)
		return runner.ExitFailure
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := runner.Run(ctx, cfg, log)
	return runner.Finish(log, report, err, cfg.Migration.StrictVerify)
}
