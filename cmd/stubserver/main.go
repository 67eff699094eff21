package main

import (
	"flag"
	"fmt"
	"os"

	sharedLogger "story-client/internal/logger"
	"story-client/internal/stubapi"

	"go.uber.org/zap"
)

func main() {
	var (
		addr          = flag.String("addr", ":8080", "listen address")
		completeAfter = flag.Int("complete-after", 3, "status fetches before a job completes")
		logLevel      = flag.String("log-level", "debug", "log level")
	)
	flag.Parse()

	logger, err := sharedLogger.New(sharedLogger.Config{
		Level:    *logLevel,
		Encoding: "console",
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	server := stubapi.New(stubapi.Options{CompleteAfter: *completeAfter}, logger)
	router := server.Router()

	zap.L().Info("Stub story API listening", zap.String("addr", *addr))
	if err := router.Run(*addr); err != nil {
		zap.L().Fatal("Stub server stopped", zap.Error(err))
	}
}
