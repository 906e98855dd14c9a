package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/catalystforge/subtitle-worker/api"
	"github.com/catalystforge/subtitle-worker/config"
	"github.com/catalystforge/subtitle-worker/jobstate"
	"github.com/catalystforge/subtitle-worker/log"
	"github.com/catalystforge/subtitle-worker/metrics"
	"github.com/catalystforge/subtitle-worker/store"
)

const snapshotRepublishInterval = 2 * time.Second

func main() {
	port := flag.Int("port", 4949, "Port to listen on")
	promPort := flag.Int("prom-port", 9091, "Port to serve Prometheus metrics on")
	flag.Parse()

	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		log.LogNoRequestID("invalid configuration, exiting", "err", err)
		os.Exit(1)
	}

	s, err := store.New(cfg.RedisURL)
	if err != nil {
		log.LogNoRequestID("failed to connect to coordination store, exiting", "err", err)
		os.Exit(1)
	}
	defer s.Close()

	state := jobstate.NewWriter(s)
	router := api.NewRouter(s, state, cfg.APIToken)

	go func() {
		if err := metrics.ListenAndServe(*promPort); err != nil {
			log.LogNoRequestID("prometheus metrics server exited", "err", err)
		}
	}()

	go republishDashboardSnapshot(context.Background(), s)

	listen := fmt.Sprintf("0.0.0.0:%d", *port)
	log.LogNoRequestID("starting subtitle worker api server", "version", config.Version, "listen", listen)
	if err := http.ListenAndServe(listen, router); err != nil {
		log.LogNoRequestID("api server exited", "err", err)
		os.Exit(1)
	}
}

// republishDashboardSnapshot polls the fleet snapshot and republishes it
// onto the Prometheus queue-depth gauges every snapshotRepublishInterval,
// so an operator dashboard can scrape either the JSON endpoint or
// Prometheus from the same underlying read.
func republishDashboardSnapshot(ctx context.Context, s *store.Client) {
	ticker := time.NewTicker(snapshotRepublishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot, err := api.ReadSnapshot(ctx, s)
			if err != nil {
				log.LogNoRequestID("failed to read dashboard snapshot", "err", err)
				continue
			}
			metrics.Metrics.Worker.QueueDepth.WithLabelValues(config.KeyQueueHigh).Set(float64(snapshot.HighQueueLen))
			metrics.Metrics.Worker.QueueDepth.WithLabelValues(config.KeyQueueLow).Set(float64(snapshot.LowQueueLen))
			metrics.Metrics.Worker.QueueDepth.WithLabelValues(config.KeyQueueDLQ).Set(float64(snapshot.DLQLen))
		}
	}
}
