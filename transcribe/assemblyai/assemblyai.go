// Package assemblyai is the real transcription provider: it presigns a
// read URL for the audio blob, submits it to AssemblyAI, and polls
// until the transcript is ready.
package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/catalystforge/subtitle-worker/log"
	"github.com/catalystforge/subtitle-worker/metrics"
	"github.com/catalystforge/subtitle-worker/transcribe"

	"github.com/hashicorp/go-retryablehttp"
)

var baseURL = "https://api.assemblyai.com/v2"

// Presigner mints a short-lived read URL for an audio blob key. Backed
// by blob.Client in production.
type Presigner interface {
	PresignGet(key string, ttl time.Duration) (string, error)
}

// Clock abstracts time so tests can fast-forward the poll loop instead
// of sleeping in real time.
type Clock interface {
	NewTicker(d time.Duration) *time.Ticker
}

type realClock struct{}

func (realClock) NewTicker(d time.Duration) *time.Ticker { return time.NewTicker(d) }

// Provider is the AssemblyAI-backed transcribe.Client.
type Provider struct {
	apiKey        string
	presigner     Presigner
	httpClient    *http.Client
	pollInterval  time.Duration
	presignExpiry time.Duration
	clock         Clock
}

func New(apiKey string, presigner Presigner, pollInterval, presignExpiry time.Duration) *Provider {
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = log.NewRetryableHTTPLogger()
	retryClient.CheckRetry = metrics.HttpRetryHook

	return &Provider{
		apiKey:        apiKey,
		presigner:     presigner,
		httpClient:    retryClient.StandardClient(),
		pollInterval:  pollInterval,
		presignExpiry: presignExpiry,
		clock:         realClock{},
	}
}

type submitRequest struct {
	AudioURL string `json:"audio_url"`
}

type transcriptResponse struct {
	ID              string      `json:"id"`
	Status          string      `json:"status"`
	Error           string      `json:"error"`
	AudioDurationMs int64       `json:"audio_duration_ms"` // milliseconds
	Utterances      []utterance `json:"utterances"`
}

type utterance struct {
	Text  string `json:"text"`
	Start int64  `json:"start"`
	End   int64  `json:"end"`
}

var _ transcribe.Client = (*Provider)(nil)

func (p *Provider) Transcribe(ctx context.Context, audioKey string) ([]transcribe.Segment, error) {
	audioURL, err := p.presigner.PresignGet(audioKey, p.presignExpiry)
	if err != nil {
		return nil, fmt.Errorf("presigning audio URL for %q: %w", audioKey, err)
	}

	id, err := p.submit(ctx, audioURL)
	if err != nil {
		return nil, fmt.Errorf("submitting transcription job: %w", err)
	}

	return p.poll(ctx, id)
}

func (p *Provider) submit(ctx context.Context, audioURL string) (string, error) {
	body, err := json.Marshal(submitRequest{AudioURL: audioURL})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/transcript", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	p.setHeaders(req)

	res, err := metrics.MonitorRequest(metrics.Metrics.TranscriptionClient, p.httpClient, req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		return "", fmt.Errorf("submit returned status %d", res.StatusCode)
	}

	var parsed transcriptResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding submit response: %w", err)
	}
	return parsed.ID, nil
}

func (p *Provider) poll(ctx context.Context, id string) ([]transcribe.Segment, error) {
	ticker := p.clock.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			parsed, err := p.fetch(ctx, id)
			if err != nil {
				return nil, err
			}
			switch parsed.Status {
			case "completed":
				return toSegments(parsed), nil
			case "error":
				return nil, fmt.Errorf("transcription terminal error: %s", parsed.Error)
			}
			// queued / processing: keep polling.
		}
	}
}

func (p *Provider) fetch(ctx context.Context, id string) (*transcriptResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/transcript/%s", baseURL, id), nil)
	if err != nil {
		return nil, err
	}
	p.setHeaders(req)

	res, err := metrics.MonitorRequest(metrics.Metrics.TranscriptionClient, p.httpClient, req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("poll returned status %d", res.StatusCode)
	}

	var parsed transcriptResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding poll response: %w", err)
	}
	return &parsed, nil
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", p.apiKey)
	req.Header.Set("Content-Type", "application/json")
}

func toSegments(r *transcriptResponse) []transcribe.Segment {
	if len(r.Utterances) > 0 {
		segments := make([]transcribe.Segment, len(r.Utterances))
		for i, u := range r.Utterances {
			segments[i] = transcribe.Segment{Text: u.Text, StartMs: u.Start, EndMs: u.End}
		}
		return segments
	}
	return []transcribe.Segment{{Text: "", StartMs: 0, EndMs: r.AudioDurationMs}}
}
