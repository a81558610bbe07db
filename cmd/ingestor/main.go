package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/james-langridge/mars-vista-api-sub000/pkg/app"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/app/ingestor"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var runner app.Runner = ingestor.NewServer(cfg)
	if err := runner.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Ingestor exited: %v\n", err)
		os.Exit(1)
	}
}
