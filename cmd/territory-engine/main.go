// Command territory-engine runs a single build of the Territory Assignment
// Core end to end (spec §5 "Processing pipeline"): read the configuration,
// open the Store and advisory lock, then execute one Engine.Run and exit.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jordigilh/territory-assignment-core/internal/config"
	"github.com/jordigilh/territory-assignment-core/internal/observability/logging"
	"github.com/jordigilh/territory-assignment-core/internal/observability/metrics"
	"github.com/jordigilh/territory-assignment-core/pkg/engine"
	"github.com/jordigilh/territory-assignment-core/pkg/lock"
	"github.com/jordigilh/territory-assignment-core/pkg/policy"
	"github.com/jordigilh/territory-assignment-core/pkg/store"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the per-build configuration document")
	buildID := flag.String("build", "", "build id to run")
	flag.Parse()

	if *buildID == "" {
		exitf("-build is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		exitf("load config: %v", err)
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		exitf("build logger: %v", err)
	}

	s, err := store.Open(cfg.Store)
	if err != nil {
		log.Error(err, "open store")
		os.Exit(1)
	}
	defer s.Close()

	buildLock := buildLockFor(cfg)

	var policyEval *policy.Evaluator
	if cfg.AssignmentMode == "Custom" && cfg.CustomPolicyPath != "" {
		regoModule, err := os.ReadFile(cfg.CustomPolicyPath)
		if err != nil {
			exitf("read custom policy: %v", err)
		}
		policyEval, err = policy.Load(context.Background(), string(regoModule))
		if err != nil {
			exitf("load custom policy: %v", err)
		}
	}

	reg := metrics.New(prometheus.DefaultRegisterer)
	eng := engine.New(s, buildLock, reg, log)

	result, err := eng.Run(context.Background(), *buildID, cfg, policyEval)
	if err != nil {
		log.Error(err, "run failed", "build_id", *buildID)
		os.Exit(1)
	}

	log.Info("run complete",
		"build_id", *buildID,
		"proposals", len(result.Proposals),
		"conflicts", len(result.Conflicts),
		"donations_applied", result.DonationsApplied,
	)
}

func buildLockFor(cfg *config.Config) lock.BuildLock {
	if cfg.Lock.RedisAddr == "" {
		return lock.NewLocalBuildLock()
	}
	ttl, err := time.ParseDuration(cfg.Lock.LeaseTTL)
	if err != nil {
		ttl = 5 * time.Minute
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Lock.RedisAddr})
	return lock.NewRedisBuildLock(client, ttl)
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
