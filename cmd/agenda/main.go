package main

import (
	"os"

	"agenda/internal/cli"
	appLog "agenda/internal/log"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		appLog.Error("agenda failed", err)
		os.Exit(1)
	}
}
