package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pawbridge/paw-middleware/pkg/app"
	"github.com/pawbridge/paw-middleware/pkg/app/bridge"
	"github.com/pawbridge/paw-middleware/pkg/config"
)

var configPath = flag.String("config", "config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var runner app.Runner = bridge.NewServer(cfg)
	if err := runner.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Bridge exited with error: %v\n", err)
		os.Exit(1)
	}
}
