package main

import (
	"os"

	"github.com/eternnoir/whispscribe/cmd/whispscribe/cmd"
	"github.com/eternnoir/whispscribe/pkg/logger"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logger.Error().Err(err).Msg("Application execution failed")
		os.Exit(1)
	}
}
