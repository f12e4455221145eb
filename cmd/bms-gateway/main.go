// Command bms-gateway runs the Pylontech/SMA CAN-bus BMS gateway
// daemon: it reads a TOML configuration, wires up the input/output CAN
// sessions, the aggregator and the MQTT telemetry publisher, and runs
// until SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ulukas/bms-gateway/internal/config"
	"github.com/ulukas/bms-gateway/internal/dispatch"
)

var verbose bool

func main() {
	os.Exit(run())
}

func run() int {
	initFlag := flag.Bool("init", false, "write a default configuration file and exit")
	flag.BoolVar(&verbose, "verbose", false, "raise log verbosity")
	configPath := flag.String("config", "", "path to configuration file (default: ~/.bms_gateway/bms_config.toml)")
	flag.Parse()

	path := *configPath
	if path == "" {
		defaultPath, err := config.DefaultPath()
		if err != nil {
			log.Printf("bms-gateway: resolving default config path: %v", err)
			return 3
		}
		path = defaultPath
	}

	if *initFlag {
		if err := config.InitTemplate(path); err != nil {
			log.Printf("bms-gateway: --init failed: %v", err)
			return 2
		}
		fmt.Printf("wrote default configuration to %s\n", path)
		return 0
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Printf("bms-gateway: %v", err)
		return 2
	}

	if !cfg.GatewayActivated {
		log.Println("bms-gateway: GATEWAY-ACTIVATED is false, nothing to do")
		return 0
	}

	if verbose {
		log.Printf("bms-gateway: loaded configuration from %s (%d inputs, %d outputs)", path, len(cfg.BMSesIn), len(cfg.BMSesOut))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	core := dispatch.NewCore(cfg)
	if err := core.Run(ctx); err != nil {
		log.Printf("bms-gateway: %v", err)
		return 3
	}
	return 0
}
