// Package mock is an in-memory fake transcription provider used by
// TRANSCRIPTION_PROVIDER=mock and by pipeline tests. It exposes an
// instrumented in-flight counter so tests can assert the AI semaphore
// bound directly rather than through timing heuristics.
package mock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/catalystforge/subtitle-worker/transcribe"
)

// Provider returns a scripted result per call, falling back to a
// default single-segment transcript when no script entry remains.
type Provider struct {
	mu       sync.Mutex
	scripted map[string][]call
	inFlight int32

	DefaultSegments []transcribe.Segment
}

type call struct {
	segments []transcribe.Segment
	err      error
}

func New() *Provider {
	return &Provider{
		scripted: make(map[string][]call),
		DefaultSegments: []transcribe.Segment{
			{Text: "hi", StartMs: 0, EndMs: 1000},
		},
	}
}

// ScriptSuccess queues a successful response for the next Transcribe
// call against audioKey.
func (p *Provider) ScriptSuccess(audioKey string, segments []transcribe.Segment) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripted[audioKey] = append(p.scripted[audioKey], call{segments: segments})
}

// ScriptFailure queues a failing response for the next Transcribe call
// against audioKey.
func (p *Provider) ScriptFailure(audioKey string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripted[audioKey] = append(p.scripted[audioKey], call{err: err})
}

func (p *Provider) Transcribe(ctx context.Context, audioKey string) ([]transcribe.Segment, error) {
	atomic.AddInt32(&p.inFlight, 1)
	defer atomic.AddInt32(&p.inFlight, -1)

	p.mu.Lock()
	queue := p.scripted[audioKey]
	var next call
	hasScript := len(queue) > 0
	if hasScript {
		next = queue[0]
		p.scripted[audioKey] = queue[1:]
	}
	p.mu.Unlock()

	if !hasScript {
		return p.DefaultSegments, nil
	}
	if next.err != nil {
		return nil, next.err
	}
	return next.segments, nil
}

// InFlight reports the number of Transcribe calls currently executing,
// across all goroutines sharing this Provider.
func (p *Provider) InFlight() int32 {
	return atomic.LoadInt32(&p.inFlight)
}
