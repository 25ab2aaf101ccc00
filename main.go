package main

import (
	"log/slog"
	"os"

	"github.com/msomdec/microlearn/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		slog.Error("microlearn failed", "error", err)
		os.Exit(1)
	}
}
