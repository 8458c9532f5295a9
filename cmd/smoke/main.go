// Command smoke sweeps a running gateway deployment: liveness, the model
// catalog, and one generation per configured model, reporting a pass/fail
// matrix. It burns real upstream quota, so point it at a deployment whose
// pool can afford the sweep.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	logger, err := glog.NewConsoleWithName("grok-api-smoke", glog.LevelInfo)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %+v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("smoke run failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("all checks passed")
}
