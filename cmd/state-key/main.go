// Package main prints a new OAuth state signing secret.
package main

import (
	"flag"
	"os"

	"github.com/louisbranch/oauthbroker/internal/platform/config"
	"github.com/louisbranch/oauthbroker/internal/tools/statekey"
)

func main() {
	cfg, err := statekey.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	if err := statekey.Run(cfg, os.Stdout, nil); err != nil {
		config.Exitf("generate secret: %v", err)
	}
}
