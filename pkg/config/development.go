package config

import (
	"os"
	"strconv"
)

func loadDevelopmentConfig(cfg *Config) {
	cfg.DatabaseDebug = true
	cfg.DatabaseFilePath = "./tmp/data.sqlite"

	workers, err := strconv.Atoi(os.Getenv("SCAN_WORKERS"))
	if err == nil && workers > 0 {
		cfg.ScanWorkers = workers
	}
}
