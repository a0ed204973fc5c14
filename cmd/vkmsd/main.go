// Command vkmsd runs headless virtual displays and prints the CRC of every
// composed frame.
//
// Each output shows a banded background, a translucent overlay and a cursor
// that moves one step per frame. With -dump the last frame of every output
// is captured through the writeback connector and saved as a BMP file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/image/bmp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/vkms"
	"github.com/gogpu/vkms/framebuffer"
)

func main() {
	var (
		modeName = flag.String("mode", vkms.DefaultMode.Name, "display mode ("+modeNames()+")")
		frames   = flag.Int("frames", 60, "frames to run per output")
		outputs  = flag.Int("outputs", 1, "number of independent outputs")
		period   = flag.Duration("period", 0, "vblank period (default: derived from the mode)")
		dump     = flag.String("dump", "", "directory for writeback captures of the last frame")
		verbose  = flag.Bool("v", false, "debug logging")
		quiet    = flag.Bool("q", false, "print only the summary")
	)
	flag.Parse()

	vkms.SetLogger(newLogger(*verbose))

	mode, ok := findMode(*modeName)
	if !ok {
		log.Fatalf("unknown mode %q, want one of %s", *modeName, modeNames())
	}
	if *frames <= 0 || *outputs <= 0 {
		log.Fatal("-frames and -outputs must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := runConfig{
		mode:   mode,
		period: *period,
		frames: *frames,
		dump:   *dump,
		quiet:  *quiet,
	}

	start := time.Now()
	results := make([]result, *outputs)
	g, ctx := errgroup.WithContext(ctx)
	for i := range results {
		g.Go(func() error {
			r, err := run(ctx, i, cfg)
			results[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}

	p := message.NewPrinter(language.English)
	var total, distinct int
	for _, r := range results {
		total += r.frames
		distinct += r.distinct
	}
	p.Printf("%d outputs at %s: %d frames, %d distinct CRCs in %v\n",
		len(results), mode, total, distinct, time.Since(start).Round(time.Millisecond))
}

// newLogger logs text to a terminal and JSON otherwise.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func findMode(name string) (vkms.Mode, bool) {
	for _, m := range vkms.StandardModes {
		if m.Name == name {
			return m, true
		}
	}
	return vkms.Mode{}, false
}

func modeNames() string {
	names := make([]string, len(vkms.StandardModes))
	for i, m := range vkms.StandardModes {
		names[i] = m.Name
	}
	return strings.Join(names, ", ")
}

type runConfig struct {
	mode   vkms.Mode
	period time.Duration
	frames int
	dump   string
	quiet  bool
}

type result struct {
	frames   int
	distinct int
}

// scene holds the framebuffers of one output.
type scene struct {
	screen  *framebuffer.Framebuffer
	overlay *framebuffer.Framebuffer
	cursor  *framebuffer.Framebuffer
}

func newScene(mode vkms.Mode) (*scene, error) {
	screen, err := framebuffer.New(mode.HDisplay, mode.VDisplay, framebuffer.FormatXRGB8888)
	if err != nil {
		return nil, err
	}
	overlay, err := framebuffer.New(mode.HDisplay/2, mode.VDisplay/2, framebuffer.FormatARGB8888)
	if err != nil {
		return nil, err
	}
	cursor, err := framebuffer.New(16, 16, framebuffer.FormatARGB8888)
	if err != nil {
		return nil, err
	}

	if err := paintBands(screen, []uint32{0xff1f3b5c, 0xff2e5e4e, 0xff6b3a2a, 0xff4a4a6a}); err != nil {
		return nil, err
	}
	overlay.Fill(0x80402000) // half-transparent orange, premultiplied
	cursor.Fill(0xffffffff)
	return &scene{screen: screen, overlay: overlay, cursor: cursor}, nil
}

// canvas is what the painter needs from a texture.
type canvas interface {
	gpucontext.Texture
	gpucontext.TextureRegionUpdater
}

// paintBands fills dst with horizontal bands of the given XRGB colors.
func paintBands(dst canvas, colors []uint32) error {
	w, h := dst.Width(), dst.Height()
	band := (h + len(colors) - 1) / len(colors)
	for i, c := range colors {
		y := i * band
		bh := min(band, h-y)
		if bh <= 0 {
			break
		}
		data := make([]byte, w*bh*4)
		for j := 0; j < len(data); j += 4 {
			data[j], data[j+1], data[j+2], data[j+3] = byte(c), byte(c>>8), byte(c>>16), byte(c>>24)
		}
		if err := dst.UpdateRegion(0, y, w, bh, data); err != nil {
			return fmt.Errorf("paint band %d: %w", i, err)
		}
	}
	return nil
}

func run(ctx context.Context, index int, cfg runConfig) (result, error) {
	var res result

	opts := []vkms.Option{vkms.WithMode(cfg.mode), vkms.WithPeriod(cfg.period)}
	if cfg.dump == "" {
		opts = append(opts, vkms.WithWriteback(false))
	}
	dev, err := vkms.NewDevice(opts...)
	if err != nil {
		return res, err
	}
	defer dev.Close()

	sc, err := newScene(cfg.mode)
	if err != nil {
		return res, err
	}
	bounds := cfg.mode.Bounds()
	center := bounds.Size().Div(4)

	err = dev.Commit(&vkms.CommitRequest{
		Active: true,
		Planes: map[*vkms.Plane]vkms.PlaneConfig{
			dev.Primary(): vkms.FullScreen(sc.screen),
			dev.Overlay(): {FB: sc.overlay, Src: sc.overlay.Bounds(), Dst: sc.overlay.Bounds().Add(center)},
		},
	})
	if err != nil {
		return res, fmt.Errorf("output %d: commit: %w", index, err)
	}

	out := dev.Output()
	if err := out.SetCRCSource(vkms.CRCSourceAuto); err != nil {
		return res, err
	}

	seen := make(map[uint32]bool)
	record := func(entries []vkms.CRCEntry) {
		for _, e := range entries {
			res.frames++
			if !seen[e.CRC] {
				seen[e.CRC] = true
				res.distinct++
			}
			if !cfg.quiet {
				fmt.Printf("output %d frame %6d crc %08x\n", index, e.Frame, e.CRC)
			}
		}
	}

	events := make(chan vkms.VblankEvent, 1)
	for frame := 0; frame < cfg.frames; frame++ {
		req := &vkms.CommitRequest{
			Active: true,
			Planes: map[*vkms.Plane]vkms.PlaneConfig{
				dev.Cursor(): cursorAt(sc.cursor, bounds, frame),
			},
			Event: events,
		}
		if cfg.dump != "" && frame == cfg.frames-1 {
			target, err := framebuffer.New(bounds.Dx(), bounds.Dy(), framebuffer.FormatXRGB8888)
			if err != nil {
				return res, err
			}
			req.Writeback = vkms.NewWritebackJob(target)
		}
		if err := dev.Commit(req); err != nil {
			return res, fmt.Errorf("output %d: commit frame %d: %w", index, frame, err)
		}

		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-events:
		}
		record(out.DrainCRC())

		if req.Writeback != nil {
			if err := saveCapture(ctx, cfg.dump, index, req.Writeback); err != nil {
				return res, err
			}
		}
	}

	record(drainFor(ctx, out, cfg.period))
	if n := out.DroppedCRCs(); n > 0 {
		vkms.Logger().Warn("CRC entries dropped", "output", index, "count", n)
	}
	return res, nil
}

// cursorAt walks the cursor along the diagonal, one pixel per frame.
func cursorAt(fb *framebuffer.Framebuffer, bounds image.Rectangle, frame int) vkms.PlaneConfig {
	span := min(bounds.Dx(), bounds.Dy())
	p := image.Pt(frame%span, frame%span)
	return vkms.PlaneConfig{FB: fb, Src: fb.Bounds(), Dst: fb.Bounds().Add(p)}
}

// drainFor collects CRC entries for two more periods so the worker can catch
// up with the last commit.
func drainFor(ctx context.Context, out *vkms.Output, period time.Duration) []vkms.CRCEntry {
	if period <= 0 {
		period = out.Period()
	}
	ctx, cancel := context.WithTimeout(ctx, 2*period)
	defer cancel()

	entries := out.DrainCRC()
	for {
		e, err := out.ReadCRC(ctx)
		if err != nil {
			return entries
		}
		entries = append(entries, e)
		entries = append(entries, out.DrainCRC()...)
	}
}

func saveCapture(ctx context.Context, dir string, index int, job *vkms.WritebackJob) error {
	if err := job.Wait(ctx); err != nil {
		if errors.Is(err, vkms.ErrWritebackAbandoned) {
			vkms.Logger().Warn("writeback capture abandoned", "output", index)
			return nil
		}
		return fmt.Errorf("output %d: writeback: %w", index, err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	name := filepath.Join(dir, fmt.Sprintf("vkms-%d.bmp", index))
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := bmp.Encode(f, job.Framebuffer().ToImage()); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fb := job.Framebuffer()
	ext := fb.Extent()
	vkms.Logger().Info("writeback captured",
		"output", index,
		"file", name,
		"width", ext.Width,
		"height", ext.Height,
		"texture_format", fb.Format().TextureFormat().String())
	return nil
}
