package main

import (
	"os"

	"habitStreakAPI/internal/cli"
	"habitStreakAPI/internal/logger"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
