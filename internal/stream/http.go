package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os/exec"
	"strconv"

	"github.com/pion/logging"

	"github.com/satindergrewal/segue/internal/audio"
)

// DefaultMP3Bitrate is the encoder bitrate in kbit/s.
const DefaultMP3Bitrate = 192

// HTTPHandler serves the preview as a chunked MP3 stream.
// Each connection spawns an FFmpeg process to encode PCM -> MP3 in real-time.
type HTTPHandler struct {
	broadcaster *Broadcaster
	log         logging.LeveledLogger
	bitrate     int
}

// NewHTTPHandler creates an HTTP stream handler. bitrate <= 0 selects
// DefaultMP3Bitrate.
func NewHTTPHandler(b *Broadcaster, bitrate int, log logging.LeveledLogger) *HTTPHandler {
	if bitrate <= 0 {
		bitrate = DefaultMP3Bitrate
	}
	return &HTTPHandler{broadcaster: b, log: log, bitrate: bitrate}
}

// encoderArgs are the ffmpeg arguments turning preview PCM on stdin into MP3
// on stdout.
func encoderArgs(bitrate int) []string {
	return []string{
		"-f", "s16le",
		"-ar", strconv.Itoa(audio.PreviewSampleRate),
		"-ac", strconv.Itoa(audio.PreviewChannels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", strconv.Itoa(bitrate) + "k",
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg", encoderArgs(h.bitrate)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		h.fail(w, "stdin pipe", err)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		h.fail(w, "stdout pipe", err)
		return
	}
	if err := cmd.Start(); err != nil {
		h.fail(w, "ffmpeg start", err)
		return
	}
	defer cmd.Wait()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("ICY-Name", "segue preview")
	w.Header().Set("ICY-Br", strconv.Itoa(h.bitrate))

	listener := h.broadcaster.Subscribe("http")
	defer h.broadcaster.Unsubscribe(listener)

	go feedPCM(ctx, listener, stdin)

	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return
			}
			flusher.Flush()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil && h.log != nil {
				h.log.Warnf("HTTP stream: ffmpeg read error: %v", err)
			}
			return
		}
	}
}

func (h *HTTPHandler) fail(w http.ResponseWriter, what string, err error) {
	if h.log != nil {
		h.log.Errorf("HTTP stream: %s: %v", what, err)
	}
	http.Error(w, "encoder unavailable", http.StatusServiceUnavailable)
}

// feedPCM copies the listener's frames to w as little-endian PCM until the
// listener ends, ctx is done or w fails. It closes w.
func feedPCM(ctx context.Context, l *Listener, w io.WriteCloser) {
	defer w.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case frame, ok := <-l.C:
			if !ok {
				return
			}
			if _, err := w.Write(audio.SamplesToBytes(frame)); err != nil {
				return
			}
		}
	}
}
