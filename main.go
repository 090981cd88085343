package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"car_scrooper/config"
	"car_scrooper/httputil"
	"car_scrooper/logging"
	"car_scrooper/models"
	"car_scrooper/notify"
	"car_scrooper/scheduler"
	"car_scrooper/scraper"
	"car_scrooper/services"
	"car_scrooper/storage"
	"car_scrooper/vpn"
	"car_scrooper/workers"
)

var (
	monitorNow = flag.Bool("monitor", false, "Run one monitor pass and exit")
	checkNow   = flag.Bool("check", false, "Run one change-detection pass and exit")
	dropsNow   = flag.Bool("drops", false, "Send the significant-drops report and exit")
	filterName = flag.String("filter", "", "Restrict -monitor to one filter")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	logFile, err := logging.Setup("monitor.log")
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting car_scrooper...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Loaded %d filters", len(cfg.Filters))
	for _, name := range cfg.FilterNames() {
		f := cfg.Filters[name]
		tag := ""
		if f.Priority {
			tag = " [priority]"
		}
		log.Printf("  - %s%s", name, tag)
	}

	clients := httputil.NewClients(&cfg.Proxy)
	if cfg.Proxy.URL != "" {
		log.Printf("Proxy: %s", cfg.Proxy.URL)
	}

	ctx := context.Background()

	pgStore, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pgStore.Close()
	if err := pgStore.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate Postgres schema: %v", err)
	}
	log.Printf("Connected to Postgres: %s", maskConnectionString(cfg.DatabaseURL))

	sqliteStore, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}
	defer sqliteStore.Close()
	log.Printf("SQLite database: %s", cfg.DBPath)

	source := scraper.NewBazarakiSource(&cfg.Changes)
	defer source.Close()

	notifier := notify.NewTelegram(&cfg.Telegram, clients.API)

	monitorService := services.NewMonitorService(pgStore, source, notifier, cfg, sqliteStore)
	changesService := services.NewChangesService(pgStore, source, notifier, &cfg.Changes, sqliteStore)
	analysisService := services.NewAnalysisService(pgStore, notifier, &cfg.Analysis)

	if cfg.VPN.AutoConnect || cfg.VPN.ActivationCode != "" {
		guard := vpn.NewExpressVPN(&cfg.VPN)
		monitorService.SetGuard(guard)
		changesService.SetGuard(guard)
		log.Println("VPN guard enabled")
	}

	log.Println("Services initialized")

	// One-shot modes
	switch {
	case *monitorNow:
		if *filterName != "" {
			added, err := monitorService.RunFilter(ctx, *filterName)
			if err != nil {
				log.Fatalf("Monitor pass failed: %v", err)
			}
			log.Printf("Monitor pass complete: %d new", added)
			return
		}
		if err := monitorService.RunAll(ctx); err != nil {
			log.Fatalf("Monitor pass failed: %v", err)
		}
		log.Println("Monitor pass complete")
		return
	case *checkNow:
		summary, err := changesService.CheckAllCars(ctx)
		if err != nil {
			log.Fatalf("Check pass failed: %v", err)
		}
		log.Printf("Check pass complete: %d checked, %d changed", summary.Checked, summary.Changed)
		return
	case *dropsNow:
		if err := analysisService.WeeklyDropsAlert(ctx); err != nil {
			log.Fatalf("Drops report failed: %v", err)
		}
		log.Println("Drops report sent")
		return
	}

	// Daemon mode
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opLog := func(level models.LogLevel, source, message string) {
		if err := sqliteStore.Log(nil, level, message, source); err != nil {
			log.Printf("Failed to write op log: %v", err)
		}
	}

	monitorWorker := workers.NewMonitorWorker(monitorService, &cfg.Monitor)
	monitorWorker.SetLogger(opLog)
	go monitorWorker.Run(ctx)
	log.Printf("Monitor worker started (every %s ± %s, quiet %02d:00-%02d:00)",
		cfg.Monitor.Interval, cfg.Monitor.Jitter/2, cfg.Monitor.NightPauseFrom, cfg.Monitor.NightPauseTo)

	changesWorker := workers.NewChangesWorker(changesService)
	changesWorker.SetLogger(opLog)
	// The cron trigger drives the daily pass; the ticker is a backstop in
	// case the process started after the scheduled time.
	go changesWorker.Run(ctx, 24*time.Hour)
	log.Printf("Changes worker started (cron %s)", cfg.Changes.Cron)

	sched := scheduler.New(cfg, sqliteStore, monitorService, changesService, analysisService)
	sched.SetWorkers(monitorWorker, changesWorker)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	sched.Stop()
	cancel()
	log.Println("Goodbye!")
}

// maskConnectionString masks password in connection string for logging
func maskConnectionString(connStr string) string {
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	colonIdx := -1
	atIdx := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			atIdx = i
			break
		}
	}

	if colonIdx > 0 && atIdx > colonIdx {
		return connStr[:colonIdx+1] + "****" + connStr[atIdx:]
	}
	return connStr
}
