package config

import "time"

func loadTestConfig(cfg *Config) {
	cfg.DatabaseFilePath = ":memory:"
	cfg.ScanSnapshotEveryFiles = 1
	cfg.ScanSnapshotInterval = 10 * time.Millisecond
	cfg.ScanWorkers = 2
}
