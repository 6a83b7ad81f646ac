package config

import (
	"os"
	"runtime"
	"time"

	"github.com/pkg/errors"
)

type Config struct {
	DatabaseBusyTimeout       time.Duration
	DatabaseConnectRetryCount int
	DatabaseConnectRetryDelay time.Duration
	DatabaseDebug             bool
	DatabaseFilePath          string
	Hostname                  string
	ScanErrorSampleLimit      int
	ScanFileTimeout           time.Duration
	ScanSnapshotEveryFiles    int
	ScanSnapshotInterval      time.Duration
	ScanWorkers               int
}

const environmentENV = "ENVIRONMENT"

func New() (*Config, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	cfg := &Config{
		DatabaseBusyTimeout:       5 * time.Second,
		DatabaseConnectRetryCount: 5,
		DatabaseConnectRetryDelay: 2 * time.Second,
		Hostname:                  hostname,
		ScanErrorSampleLimit:      20,
		ScanFileTimeout:           2 * time.Minute,
		ScanSnapshotEveryFiles:    25,
		ScanSnapshotInterval:      2 * time.Second,
		ScanWorkers:               runtime.NumCPU(),
	}

	switch os.Getenv(environmentENV) {
	case "development", "":
		loadDevelopmentConfig(cfg)
	case "test":
		loadTestConfig(cfg)
	case "production":
		loadProductionConfig(cfg)
	}

	return cfg, nil
}
