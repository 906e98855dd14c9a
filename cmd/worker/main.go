package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/catalystforge/subtitle-worker/blob"
	"github.com/catalystforge/subtitle-worker/config"
	"github.com/catalystforge/subtitle-worker/jobstate"
	"github.com/catalystforge/subtitle-worker/log"
	"github.com/catalystforge/subtitle-worker/metrics"
	"github.com/catalystforge/subtitle-worker/pipeline"
	"github.com/catalystforge/subtitle-worker/retry"
	"github.com/catalystforge/subtitle-worker/semaphore"
	"github.com/catalystforge/subtitle-worker/store"
	"github.com/catalystforge/subtitle-worker/transcribe"
	"github.com/catalystforge/subtitle-worker/transcribe/assemblyai"
	"github.com/catalystforge/subtitle-worker/transcribe/mock"
	"github.com/catalystforge/subtitle-worker/worker"
)

const bootstrapLockTTL = 30 * time.Second

func main() {
	promPort := flag.Int("prom-port", 9090, "Port to serve Prometheus metrics on")
	scratchRoot := flag.String("scratch-dir", "/tmp/subtitle-worker", "Local scratch directory for in-flight job files")
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

	blobClient, err := blob.New(cfg.AWSRegion, cfg.S3Bucket, cfg.AWSAccessKeyID, cfg.AWSSecretKey)
	if err != nil {
		log.LogNoRequestID("failed to construct blob store client, exiting", "err", err)
		os.Exit(1)
	}

	state := jobstate.NewWriter(s)

	var transcriber transcribe.Client
	switch cfg.TranscriptionProvider {
	case config.TranscriptionProviderAssemblyAI:
		transcriber = assemblyai.New(
			cfg.AssemblyAIAPIKey,
			blobClient,
			time.Duration(cfg.TranscriptionPollMs)*time.Millisecond,
			time.Duration(cfg.PresignedURLExpirySec)*time.Second,
		)
	default:
		transcriber = mock.New()
	}

	globalSlots := semaphore.NewLimiter(s, config.KeySemaphoreGlobal)
	aiSlots := semaphore.NewLimiter(s, config.KeySemaphoreAI)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := semaphore.TryInitOnce(ctx, s, globalSlots, "bootstrap:semaphore-init:global", cfg.MaxGlobalConcurrency, bootstrapLockTTL); err != nil {
		cancel()
		log.LogNoRequestID("failed to bootstrap global semaphore, exiting", "err", err)
		os.Exit(1)
	}
	if err := semaphore.TryInitOnce(ctx, s, aiSlots, "bootstrap:semaphore-init:ai", cfg.MaxAIConcurrency, bootstrapLockTTL); err != nil {
		cancel()
		log.LogNoRequestID("failed to bootstrap AI semaphore, exiting", "err", err)
		os.Exit(1)
	}
	cancel()

	retryCtl := retry.NewController(s, state, cfg.MaxRetries, cfg.InitialBackoffMs)
	executor := pipeline.NewExecutor(s, state, blobClient, transcriber, aiSlots, retryCtl, *scratchRoot)

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		if err := metrics.ListenAndServe(*promPort); err != nil {
			log.LogNoRequestID("prometheus metrics server exited", "err", err)
		}
	}()

	log.LogNoRequestID(
		"starting subtitle worker fleet",
		"version", config.Version,
		"concurrency", cfg.WorkerConcurrency,
		"transcriptionProvider", cfg.TranscriptionProvider,
	)

	var wg sync.WaitGroup
	for i := 0; i < cfg.WorkerConcurrency; i++ {
		loop := worker.NewLoop(globalSlots, executor, s)
		wg.Add(1)
		go func() {
			defer wg.Done()
			loop.Run(runCtx)
		}()
	}

	wg.Wait()
	log.LogNoRequestID("subtitle worker fleet shut down")
}
