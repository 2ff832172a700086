package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/technosupport/airfield-guard/internal/config"
	"github.com/technosupport/airfield-guard/internal/lifecycle"
	"github.com/technosupport/airfield-guard/internal/platform/paths"
	"github.com/technosupport/airfield-guard/internal/platform/windows"
)

const (
	serviceName  = "AirfieldGuard-MainServer"
	eventIDStart = 100
	eventIDStop  = 101
	eventIDError = 102
)

func main() {
	configPath := flag.String("config", "", "path to config YAML (default: <data root>/config/default.yaml)")
	areasPath := flag.String("areas", "", "path to areas YAML (default: <data root>/config/areas.yaml)")
	flag.Parse()

	isService := windows.IsWindowsService()
	elog := windows.NewEventLogger(serviceName)
	defer elog.Close()

	if isService {
		elog.Info(eventIDStart, "Starting as Windows Service")
	}

	if err := paths.EnsureDirs(); err != nil {
		elog.Error(eventIDError, fmt.Sprintf("Platform init error: %v", err))
		log.Fatalf("platform init error: %v", err)
	}

	cfgPath := paths.ResolveConfigPath(*configPath)
	cfg := config.Load(cfgPath)

	areas := *areasPath
	if areas == "" {
		areas = filepath.Join(filepath.Dir(cfgPath), "areas.yaml")
	}

	sup, err := lifecycle.New(cfg, areas)
	if err != nil {
		elog.Error(eventIDError, fmt.Sprintf("Supervisor init error: %v", err))
		log.Fatalf("supervisor init error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopChan := make(chan struct{})
	if isService {
		go func() {
			if err := windows.RunAsService(serviceName, stopChan); err != nil {
				elog.Error(eventIDError, fmt.Sprintf("Service run error: %v", err))
			}
		}()
		go func() {
			<-stopChan
			elog.Info(eventIDStop, "Service stop requested")
			stop()
		}()
	}

	log.Printf("starting %s", serviceName)
	if err := sup.Run(ctx); err != nil {
		elog.Error(eventIDError, fmt.Sprintf("Run error: %v", err))
		log.Fatalf("run error: %v", err)
	}
	elog.Info(eventIDStop, "Server stopped gracefully")
}
