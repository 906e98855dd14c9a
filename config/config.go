package config

import (
	"fmt"
	"os"
	"strconv"
)

var Version string

// Used so that we can generate fixed timestamps in tests
var Clock TimestampGenerator = RealTimestampGenerator{}

const (
	TranscriptionProviderAssemblyAI = "assemblyai"
	TranscriptionProviderMock       = "mock"
)

// Tuning defaults (design defaults in the external interfaces contract).
const (
	DefaultMaxRetries            = 3
	DefaultInitialBackoffMs      = 2000
	DefaultMaxGlobalConcurrency  = 5
	DefaultMaxAIConcurrency      = 2
	DefaultWorkerConcurrency     = 1
	DefaultTranscriptionPollMs   = 3000
	DefaultPresignedURLExpirySec = 60
)

// Redis key layout, fixed by the external interfaces contract.
const (
	KeyQueueHigh       = "queue:high"
	KeyQueueLow        = "queue:low"
	KeyQueueDLQ        = "queue:dlq"
	KeyJobsProcessing  = "jobs:processing"
	KeySemaphoreGlobal = "semaphore:global"
	KeySemaphoreAI     = "semaphore:ai"
)

func JobKey(id string) string {
	return "job:" + id
}

func errRequired(name string) error {
	return fmt.Errorf("missing required environment variable %s", name)
}

func errInvalid(name, val string) error {
	return fmt.Errorf("invalid value %q for environment variable %s", val, name)
}

// FromEnv loads Cli from the process environment, applying the tuning
// defaults for anything left unset. It does not validate required fields —
// call Cli.Validate() once the caller has had a chance to override flags.
func FromEnv() Cli {
	return Cli{
		RedisURL:       os.Getenv("REDIS_URL"),
		AWSRegion:      os.Getenv("AWS_REGION"),
		AWSAccessKeyID: os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretKey:   os.Getenv("AWS_SECRET_ACCESS_KEY"),
		S3Bucket:       os.Getenv("S3_BUCKET_NAME"),

		TranscriptionProvider: envOrDefault("TRANSCRIPTION_PROVIDER", TranscriptionProviderMock),
		AssemblyAIAPIKey:      os.Getenv("ASSEMBLYAI_API_KEY"),

		APIToken: os.Getenv("WORKER_API_TOKEN"),

		MaxRetries:            envIntOrDefault("MAX_RETRIES", DefaultMaxRetries),
		InitialBackoffMs:      envIntOrDefault("INITIAL_BACKOFF_MS", DefaultInitialBackoffMs),
		MaxGlobalConcurrency:  envIntOrDefault("MAX_GLOBAL_CONCURRENCY", DefaultMaxGlobalConcurrency),
		MaxAIConcurrency:      envIntOrDefault("MAX_AI_CONCURRENCY", DefaultMaxAIConcurrency),
		WorkerConcurrency:     envIntOrDefault("WORKER_CONCURRENCY", DefaultWorkerConcurrency),
		TranscriptionPollMs:   envIntOrDefault("TRANSCRIPTION_POLL_MS", DefaultTranscriptionPollMs),
		PresignedURLExpirySec: envIntOrDefault("PRESIGNED_URL_EXPIRY_SEC", DefaultPresignedURLExpirySec),
	}
}

func envOrDefault(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
