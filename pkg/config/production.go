package config

import (
	"os"
	"strconv"
	"time"
)

func loadProductionConfig(cfg *Config) {
	cfg.DatabaseFilePath = "/config/data.sqlite"
	if path := os.Getenv("DATABASE_FILE_PATH"); path != "" {
		cfg.DatabaseFilePath = path
	}

	workers, err := strconv.Atoi(os.Getenv("SCAN_WORKERS"))
	if err == nil && workers > 0 {
		cfg.ScanWorkers = workers
	}

	timeout, err := time.ParseDuration(os.Getenv("SCAN_FILE_TIMEOUT"))
	if err == nil && timeout > 0 {
		cfg.ScanFileTimeout = timeout
	}
}
