package frame

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// Feed publishes frames to a slot until ctx is cancelled.
type Feed interface {
	Run(ctx context.Context, slot *Slot) error
}

// FFmpegFeed reads a camera (or any ffmpeg input) as an MJPEG pipe.
type FFmpegFeed struct {
	// Binary defaults to "ffmpeg".
	Binary string
	// InputFormat is the ffmpeg demuxer, e.g. "v4l2" or "avfoundation".
	InputFormat string
	Device      string
	// FPS limits the published frame rate; zero keeps the device rate.
	FPS    int
	Logger *slog.Logger
}

// Args returns the ffmpeg command-line arguments for this feed.
func (f *FFmpegFeed) Args() []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if f.InputFormat != "" {
		args = append(args, "-f", f.InputFormat)
	}
	args = append(args, "-i", f.Device)
	if f.FPS > 0 {
		args = append(args, "-vf", "fps="+strconv.Itoa(f.FPS))
	}
	return append(args, "-f", "image2pipe", "-vcodec", "mjpeg", "-")
}

// Run starts ffmpeg and publishes frames until ctx is cancelled or the
// process exits. Cancellation is not an error.
func (f *FFmpegFeed) Run(ctx context.Context, slot *Slot) error {
	log := f.Logger
	if log == nil {
		log = slog.Default()
	}
	if f.Device == "" {
		return errors.New("frame feed: no input device configured")
	}
	bin := f.Binary
	if bin == "" {
		bin = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, bin, f.Args()...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("frame feed: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", bin, err)
	}
	log.Info("frame feed started", "device", f.Device, "format", f.InputFormat, "fps", f.FPS)

	n, pumpErr := Pump(stdout, slot)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		log.Info("frame feed stopped", "frames", n)
		return nil
	}
	if pumpErr != nil {
		return fmt.Errorf("reading frames: %w", pumpErr)
	}
	if waitErr != nil {
		return fmt.Errorf("%s exited after %d frames: %w: %s", bin, n, waitErr, strings.TrimSpace(stderr.String()))
	}
	log.Info("frame feed ended", "frames", n)
	return nil
}
