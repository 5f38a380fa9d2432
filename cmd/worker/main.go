// Command worker evaluates steps for the socketio backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/specialistvlad/burstbeam/internal/ctxlog"
	"github.com/specialistvlad/burstbeam/modules/local"
	"github.com/specialistvlad/burstbeam/modules/socketio"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flagSet := flag.NewFlagSet("burstbeam-worker", flag.ContinueOnError)
	addr := flagSet.String("addr", ":8090", "Address to listen on.")
	workers := flagSet.Int("workers", 4, "Number of steps evaluated at once.")
	attempts := flagSet.Int("max-attempts", 1, "Evaluations of a failing step before its failure is reported.")
	retryDelay := flagSet.Duration("retry-delay", 100*time.Millisecond, "Pause between attempts.")
	logLevel := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		return fmt.Errorf("invalid log-level: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})).With("component", "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = ctxlog.WithLogger(ctx, logger)

	return socketio.Serve(ctx, *addr, local.Config{
		Workers:     *workers,
		MaxAttempts: *attempts,
		RetryDelay:  *retryDelay,
	})
}
