package audio

import (
	"context"
	"sync"
	"time"

	"github.com/pion/logging"
)

// Preview is a rendered transition waiting to be auditioned. When Buffer is
// nil the player loads Info.Path from disk.
type Preview struct {
	Info   TrackInfo
	Buffer *Buffer
}

type loadedPreview struct {
	info    TrackInfo
	samples []int16
}

// Player paces queued previews out as PCM frames at real-time rate.
type Player struct {
	previewCh chan Preview
	frameCh   chan []int16
	skipCh    chan struct{}
	log       logging.LeveledLogger

	mu            sync.RWMutex
	current       TrackInfo
	position      time.Duration
	duration      time.Duration
	playedPreview int
}

// NewPlayer creates a preview player.
func NewPlayer(log logging.LeveledLogger) *Player {
	return &Player{
		previewCh: make(chan Preview, 8),
		frameCh:   make(chan []int16, 100),
		skipCh:    make(chan struct{}, 1),
		log:       log,
	}
}

// Frames returns the channel of outgoing PCM frames (20ms each).
func (p *Player) Frames() <-chan []int16 {
	return p.frameCh
}

// Enqueue adds a preview to the queue. It reports false when the queue is
// full; previews are best effort and never block a render.
func (p *Player) Enqueue(pv Preview) bool {
	select {
	case p.previewCh <- pv:
		return true
	default:
		return false
	}
}

// QueueSize returns the number of previews waiting.
func (p *Player) QueueSize() int {
	return len(p.previewCh)
}

// Skip interrupts the current preview.
func (p *Player) Skip() {
	select {
	case p.skipCh <- struct{}{}:
	default:
	}
}

// Status returns current playback info.
func (p *Player) Status() (track TrackInfo, position, duration time.Duration) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, p.position, p.duration
}

// Played returns how many previews have started playing.
func (p *Player) Played() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.playedPreview
}

// Run starts the player. Blocks until ctx is cancelled.
func (p *Player) Run(ctx context.Context) {
	defer close(p.frameCh)

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	// Background loader: turns queued previews into stream-format PCM
	loadedCh := make(chan *loadedPreview, 2)
	go func() {
		defer close(loadedCh)
		for {
			select {
			case <-ctx.Done():
				return
			case pv := <-p.previewCh:
				lp, ok := p.load(pv)
				if !ok {
					continue
				}
				select {
				case loadedCh <- lp:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case lp, ok := <-loadedCh:
			if !ok {
				return
			}
			p.play(ctx, ticker, lp)
		}
	}
}

func (p *Player) load(pv Preview) (*loadedPreview, bool) {
	buf := pv.Buffer
	if buf == nil {
		var err error
		buf, err = ReadWAV(pv.Info.Path)
		if err != nil {
			p.log.Warnf("preview load failed %s: %v", pv.Info.Path, err)
			return nil, false
		}
	}
	if buf.SampleRate != PreviewSampleRate || buf.Channels != PreviewChannels {
		p.log.Warnf("preview %s skipped: %d Hz/%d ch, stream needs %d Hz/%d ch",
			pv.Info.ID, buf.SampleRate, buf.Channels, PreviewSampleRate, PreviewChannels)
		return nil, false
	}
	return &loadedPreview{info: pv.Info, samples: ToInt16(buf)}, true
}

// play streams one preview, zero-padding the final partial frame.
func (p *Player) play(ctx context.Context, ticker *time.Ticker, lp *loadedPreview) {
	totalFrames := (len(lp.samples) + FrameSamples - 1) / FrameSamples
	p.setTrack(lp.info, totalFrames)
	p.log.Infof("Previewing: %s (%s, frames: %d)", lp.info.ID, lp.info.Label, totalFrames)

	for i := 0; i < totalFrames; i++ {
		start := i * FrameSamples
		end := start + FrameSamples
		var frame []int16
		if end <= len(lp.samples) {
			frame = lp.samples[start:end]
		} else {
			frame = make([]int16, FrameSamples)
			copy(frame, lp.samples[start:])
		}
		if !p.sendFrame(ctx, ticker, frame) {
			return
		}
		p.updatePosition(i)
	}
}

// sendFrame waits for the ticker then sends a frame. Returns false on skip or cancel.
func (p *Player) sendFrame(ctx context.Context, ticker *time.Ticker, frame []int16) bool {
	select {
	case <-ctx.Done():
		return false
	case <-p.skipCh:
		p.log.Info("Preview skipped")
		return false
	case <-ticker.C:
	}

	select {
	case p.frameCh <- frame:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Player) setTrack(info TrackInfo, totalFrames int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = info
	p.position = 0
	p.duration = time.Duration(totalFrames) * FrameDuration
	p.playedPreview++
}

func (p *Player) updatePosition(frameIdx int) {
	p.mu.Lock()
	p.position = time.Duration(frameIdx) * FrameDuration
	p.mu.Unlock()
}
