package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/openrf/wsasweep/internal/render"
	"github.com/openrf/wsasweep/internal/spectrum"
	"github.com/openrf/wsasweep/internal/storage"
	"github.com/openrf/wsasweep/internal/sweep"
)

const storageDir = "data"

// Run performs one sweep against the configured instrument, prints the
// strongest peaks and optionally stores and renders the result.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	cfg, err := spectrum.NewConfig(config.Sweep.FStart, config.Sweep.FStop, config.Sweep.RBW, config.Device.Mode)
	if err != nil {
		return fmt.Errorf("invalid sweep configuration: %w", err)
	}

	logger.Info("connecting to instrument", slog.String("address", config.Device.Address))
	session, err := newDeviceSession(ctx, config.Device.Address)
	if err != nil {
		return fmt.Errorf("opening device session: %w", err)
	}
	defer session.Close()

	orchestrator := sweep.New(session, config.Device.MaxCaptureBandwidth,
		sweep.WithLogger(logger),
		sweep.WithSamplesPerPacket(config.Device.SamplesPerPacket),
		sweep.WithPacketsPerBlock(config.Device.PacketsPerBlock),
		sweep.WithReadTimeout(time.Duration(config.Device.ReadTimeout)))

	logger.Info("sweeping",
		slog.Uint64("fstart", cfg.FStart),
		slog.Uint64("fstop", cfg.FStop),
		slog.Int("bins", cfg.Bins))

	started := time.Now()
	result, err := orchestrator.Run(ctx, cfg)
	if err != nil {
		return fmt.Errorf("running sweep: %w", err)
	}
	logger.Info("sweep complete", slog.Duration("elapsed", time.Since(started)))

	for _, w := range result.Warnings {
		logger.Warn(w.Message, slog.Uint64("fstart", w.FStart), slog.Uint64("fstop", w.FStop))
	}

	peaks, err := spectrum.FindPeaks(result.Spectrum, config.Sweep.Peaks)
	if err != nil {
		return fmt.Errorf("finding peaks: %w", err)
	}

	fmt.Println("Peaks found:")
	for _, p := range peaks {
		fmt.Printf("  %0.2f dBm @ %s\n", p.Power, humanize.SIWithDigits(p.Frequency, 6, "Hz"))
	}
	if len(peaks) == 0 {
		fmt.Println("  (none)")
	}

	if config.Storage.Enabled {
		if err = storePeaks(ctx, config, cfg, peaks, logger); err != nil {
			return fmt.Errorf("storing peaks: %w", err)
		}
	}

	if config.Render.Enabled {
		if err = renderSpectrum(config, result.Spectrum, peaks, logger); err != nil {
			return fmt.Errorf("rendering spectrum: %w", err)
		}
	}

	return nil
}

func storePeaks(ctx context.Context, config *Config, cfg *spectrum.Config, peaks []spectrum.Peak, logger *slog.Logger) error {
	dir := config.Storage.DataDirectory
	if dir == "" {
		dir = storageDir
	}

	stat, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("storage directory %q: %w", dir, err)
	}
	if !stat.IsDir() {
		return fmt.Errorf("invalid storage directory %q", dir)
	}

	dbPath := filepath.Join(dir, fmt.Sprintf("sweep_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	store := storage.New(dbPath)
	defer store.Close()

	sessionID, err := store.CreateSession(ctx, config.Device.Address, cfg, config.Device)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	if err = store.StorePeaks(ctx, sessionID, cfg.BinWidth(), peaks); err != nil {
		return err
	}

	logger.Info("peak report stored", slog.String("path", dbPath), slog.Int64("session", sessionID))
	return nil
}

func renderSpectrum(config *Config, buf *spectrum.Buffer, peaks []spectrum.Peak, logger *slog.Logger) error {
	renderer, err := render.New(render.Config{
		Width:    config.Render.Width,
		Height:   config.Render.Height,
		FontPath: config.Render.FontPath,
	})
	if err != nil {
		return err
	}
	defer renderer.Close()

	out, err := os.Create(config.Render.OutputPath)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer out.Close()

	if err = renderer.RenderTo(out, buf, peaks); err != nil {
		return err
	}

	logger.Info("spectrum chart written", slog.String("path", config.Render.OutputPath))
	return nil
}
