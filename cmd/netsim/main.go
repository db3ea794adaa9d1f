// Command netsim loads or builds a network, sends a batch of messages
// through it and reports what happened to them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/iti/netsim"
	"github.com/iti/netsim/graphdb"
	"github.com/iti/netsim/logging"
	"github.com/iti/netsim/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"
)

func main() {
	configPath := flag.String("config", "", "optional config file (yaml, json, toml or env)")
	flag.Parse()

	cfg, err := loadConfig(viper.New(), *configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, prometheus.NewRegistry(), os.Stdout, logger); err != nil {
		logger.Error(ctx, "netsim failed", logging.Err(err))
		os.Exit(1)
	}
}

// run performs one batch.  When a metrics address is configured the metrics
// stay available until ctx is cancelled.
func run(ctx context.Context, cfg config, reg *prometheus.Registry, out io.Writer, logger logging.Logger) error {
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		return err
	}

	opts := []netsim.Option{
		netsim.WithSettings(netsim.Settings{JitterMin: cfg.JitterMin, JitterMax: cfg.JitterMax}),
		netsim.WithObserver(collector),
		netsim.WithLogger(logger),
	}
	if cfg.Seed != 0 {
		opts = append(opts, netsim.WithSource(netsim.NewSeededSource(cfg.Seed)))
	}
	sim, err := netsim.CreateSimulator(opts...)
	if err != nil {
		return err
	}
	if err := sim.SetPacing(cfg.PacingSeconds); err != nil {
		return err
	}

	if err := loadTopology(ctx, sim, cfg.Topology, logger); err != nil {
		return err
	}
	collector.ObserveTopology(sim.Topology())

	if cfg.Neo4jURI != "" {
		if err := mirror(ctx, cfg, sim.Export(), logger); err != nil {
			return err
		}
	}

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		srv = serveMetrics(ctx, cfg.MetricsAddr, collector, logger)
	}

	if err := sendBatch(ctx, sim, cfg); err != nil {
		return err
	}
	fmt.Fprintln(out, sim.PacketLog().Stats())

	if cfg.TopologyOut != "" {
		doc := sim.Export()
		if err := doc.WriteToFile(cfg.TopologyOut); err != nil {
			return err
		}
	}
	if cfg.LogOut != "" {
		if err := sim.PacketLog().WriteToFile(cfg.LogOut); err != nil {
			return err
		}
	}

	if srv != nil {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
	return nil
}

// loadTopology imports the named document, or builds the sample network when no name is given
func loadTopology(ctx context.Context, sim *netsim.Simulator, filename string, logger logging.Logger) error {
	if filename == "" {
		return netsim.BuildSampleNetwork(sim.Topology())
	}

	ext := filepath.Ext(filename)
	useYAML := ext == ".yaml" || ext == ".yml" || ext == ".YAML"
	doc, err := netsim.ReadTopoDoc(filename, useYAML, nil)
	if err != nil {
		return err
	}
	report := sim.Import(*doc)
	for _, skipped := range report.Skipped {
		logger.Warn(ctx, "import entry skipped",
			logging.Err(skipped),
			logging.String("kind", netsim.Classify(skipped)))
	}
	if report.SettingsErr != nil {
		logger.Warn(ctx, "import settings rejected", logging.Err(report.SettingsErr))
	}
	logger.Info(ctx, "topology imported",
		logging.String("file", filename),
		logging.Int("devices", report.DevicesAdded),
		logging.Int("links", report.LinksAdded),
		logging.Bool("complete", report.Complete()))
	return nil
}

// sendBatch sends cfg.Count messages, at most cfg.Rate per second when a rate is set
func sendBatch(ctx context.Context, sim *netsim.Simulator, cfg config) error {
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	limiter := rate.NewLimiter(limit, 1)

	for idx := 0; idx < cfg.Count; idx++ {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		payload := fmt.Sprintf("%s #%d", cfg.Payload, idx+1)
		if _, err := sim.Send(cfg.Sender, cfg.Receiver, payload); err != nil {
			return fmt.Errorf("send %d: %w", idx+1, err)
		}
	}
	return nil
}

func mirror(ctx context.Context, cfg config, doc netsim.TopoDoc, logger logging.Logger) error {
	mr, err := graphdb.Open(ctx, graphdb.Config{
		URI:      cfg.Neo4jURI,
		User:     cfg.Neo4jUser,
		Password: cfg.Neo4jPassword,
		Database: cfg.Neo4jDatabase,
	}, logger)
	if err != nil {
		return err
	}
	defer mr.Close(ctx)
	return mr.Sync(ctx, doc)
}

func serveMetrics(ctx context.Context, addr string, collector *metrics.Collector, logger logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info(ctx, "serving metrics", logging.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "metrics server failed", logging.Err(err))
		}
	}()
	return srv
}
