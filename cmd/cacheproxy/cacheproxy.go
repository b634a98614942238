package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/benjaminschubert/cacheproxy/internal/cache"
	"github.com/benjaminschubert/cacheproxy/internal/config"
	"github.com/benjaminschubert/cacheproxy/internal/database"
	"github.com/benjaminschubert/cacheproxy/internal/logging"
	"github.com/benjaminschubert/cacheproxy/internal/metrics"
	"github.com/benjaminschubert/cacheproxy/internal/server"
	"github.com/benjaminschubert/cacheproxy/internal/upstream"
)

func getVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	return info.Main.Version
}

// loadConfig returns the configuration to use, and whether the default one
// was used because no file was found.
func loadConfig(lookupEnv func(string) (string, bool)) (*config.Config, bool, error) {
	configPath, configPathSet := lookupEnv("CACHEPROXY_CONFIG_PATH")
	if !configPathSet {
		configPath = "./cacheproxy.yaml"
	}

	conf, err := config.Parse(configPath, lookupEnv)
	if err != nil {
		if !configPathSet && errors.Is(err, fs.ErrNotExist) {
			return config.Default(lookupEnv), true, nil
		}
		return nil, false, err
	}

	return conf, false, nil
}

func main() {
	panicLogger, err := logging.CreateLogger(zerolog.WarnLevel, "json")
	if err != nil {
		panic("BUG: invalid default logger")
	}

	conf, configNotExist, err := loadConfig(os.LookupEnv)
	if err != nil {
		panicLogger.Fatal().Err(err).Msg("Unable to start server: invalid configuration")
	}

	logLevel, err := zerolog.ParseLevel(conf.Log.Level)
	if err != nil {
		panicLogger.Fatal().Err(err).Msg("Unable to start server: invalid configuration")
	}
	logger, err := logging.CreateLogger(logLevel, conf.Log.Format)
	if err != nil {
		panicLogger.Fatal().Err(err).Msg("Unable to initialize logger")
	}

	logger.Info().Str("version", getVersion()).Msg("Starting cacheproxy")
	if configNotExist {
		logger.Info().
			Msg("cacheproxy.yaml not found and CACHEPROXY_CONFIG_PATH not set: Using default configuration")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var m *metrics.Metrics
	c := cache.New(&logger, func(count int) { m.RecordEvictions(count) })
	m, err = metrics.New(registry, c.Len)
	if err != nil {
		logger.Fatal().Err(err).Msg("unable to start server: can't register metrics")
	}

	if conf.Cache.SnapshotPath != "" {
		db, err := database.NewDatabase[cache.StoredResponse](conf.Cache.SnapshotPath, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("unable to start server: can't open the cache snapshot")
		}
		defer saveSnapshot(c, db, &logger)

		restored, err := c.Restore(context.Background(), db)
		if err != nil {
			logger.Error().Err(err).Msg("Unable to restore the cache snapshot, starting partially filled")
		}
		logger.Info().Int("entries", restored).Msg("Cache snapshot restored")
	}

	if conf.Cache.SweepInterval > 0 {
		c.StartSweeper(conf.Cache.SweepInterval)
	} else {
		logger.Warn().Msg("Background sweeper disabled, entries are only evicted on manual sweeps")
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error().Err(err).Msg("Couldn't stop the sweeper properly")
		}
	}()

	forwarder := upstream.New(conf.Origin, upstream.Options{
		Timeout:    conf.Upstream.Timeout,
		Attempts:   conf.Upstream.Attempts,
		RetryDelay: conf.Upstream.RetryDelay,
	}, m)

	srv, err := server.New(conf, c, forwarder, m, &logger, registry)
	if err != nil {
		logger.Fatal().Err(err).Msg("unable to start server")
	}
	if err := srv.ListenAndServe(); err != nil {
		logger.Error().Err(err).Msg("An error occurred while shutting down the server")
	}

	logger.Info().Msg("Server shut down")
}

func saveSnapshot(c *cache.Cache, db *cache.SnapshotDatabase, logger *zerolog.Logger) {
	logger.Info().Msg("Saving the cache snapshot")

	saved, err := c.Snapshot(context.Background(), db)
	if err != nil {
		logger.Error().Err(err).Msg("Couldn't save the cache snapshot")
	} else {
		logger.Info().Int("entries", saved).Msg("Cache snapshot saved")
	}

	if err := db.Close(); err != nil {
		logger.Error().Err(err).Msg("Couldn't close the cache snapshot properly")
	}
}
