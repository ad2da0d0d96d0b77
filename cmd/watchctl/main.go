package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/wristlink/internal/config"
	"github.com/danmuck/wristlink/internal/logging"
	"github.com/danmuck/wristlink/internal/watch"
)

func main() {
	path := flag.String("config", "", "path to a wristlink TOML config (defaults when empty)")
	device := flag.String("device", "", "override the device identifier")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg, err := loadServiceConfig(*path, *device)
	if err != nil {
		fmt.Fprintf(os.Stderr, "watchctl: %v\n", err)
		os.Exit(1)
	}
	svc := watch.NewServiceWithConfig(cfg)
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "watchctl: %v\n", err)
		os.Exit(1)
	}
}

func loadServiceConfig(path, device string) (watch.ServiceConfig, error) {
	cfg := watch.DefaultServiceConfig()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return watch.ServiceConfig{}, err
		}
		cfg = loaded
	}
	if device != "" {
		cfg.DeviceID = device
	}
	return cfg, nil
}
