package main

import (
	"os"

	bridgeservice "github.com/omnibridge/bridge-service"
	"github.com/urfave/cli/v2"
)

func versionCmd(*cli.Context) error {
	bridgeservice.PrintVersion(os.Stdout)
	return nil
}
