// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"spectrum/internal/analyser"
	"spectrum/internal/config"
	"spectrum/internal/engine"
	"spectrum/internal/log"
	"spectrum/internal/sink"
	"spectrum/internal/transport"
	"spectrum/internal/tui"
)

// App is an assembled analyser: engine, sinks, coordinator and the optional
// snapshot publisher.
type App struct {
	Engine      *engine.Engine
	Sinks       tui.Sinks
	Coordinator *analyser.Coordinator
	Publisher   *transport.Publisher // nil when no transport is enabled.

	closeOnce sync.Once
}

// appOptions lets callers replace parts of the default wiring.
type appOptions struct {
	Clock     clock.Clock
	ErrorSink analyser.ErrorSink
	Engine    func(*engine.Options) // Adjusts engine options before New.
}

// newApp wires the analyser described by cfg.
func newApp(cfg *config.Config, opts appOptions) (*App, error) {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	engOpts := engine.Options{
		Audio:     cfg.Audio,
		Recording: cfg.Recording,
		Clock:     opts.Clock,
	}
	if opts.Engine != nil {
		opts.Engine(&engOpts)
	}
	eng := engine.New(engOpts)

	sinks := tui.Sinks{
		Spectrograph: sink.NewSpectrographModel(cfg.Analyser.SpectrumBands, cfg.Analyser.SpectrumLowFreq, cfg.Analyser.SpectrumHighFreq),
		Level:        sink.NewLevelMeterModel(sink.DecayFactor(cfg.Audio.NotifyInterval, cfg.Analyser.LevelMeterDecay)),
		Progress:     sink.NewProgressModel(),
	}
	// A typed nil would make the optional waveform look present.
	var waveform sink.Waveform
	if cfg.Analyser.Waveform {
		sinks.Waveform = sink.NewWaveformModel()
		waveform = sinks.Waveform
	}
	set := sink.NewSet(waveform, sinks.Spectrograph, sinks.Level, sinks.Progress)

	coord := analyser.New(eng, set, analyser.Options{
		Clock:                  opts.Clock,
		Policy:                 analyser.Policy{AllowEmptyAnalysis: cfg.Analyser.AllowEmptyAnalysis},
		ErrorSink:              opts.ErrorSink,
		WaveformTileLength:     cfg.Analyser.WaveformTileLength,
		WaveformWindowDuration: cfg.Analyser.WaveformWindowDuration,
		SpectrumBands:          cfg.Analyser.SpectrumBands,
		SpectrumLowFreq:        cfg.Analyser.SpectrumLowFreq,
		SpectrumHighFreq:       cfg.Analyser.SpectrumHighFreq,
	})

	app := &App{Engine: eng, Sinks: sinks, Coordinator: coord}

	transports, err := openTransports(cfg.Transport)
	if err != nil {
		eng.Close()
		return nil, err
	}
	if len(transports) > 0 {
		app.Publisher, err = transport.NewPublisher(cfg.Transport.PublishInterval, opts.Clock, app.frame, transports...)
		if err != nil {
			closeTransports(transports)
			eng.Close()
			return nil, err
		}
	}
	return app, nil
}

// frame is the publisher's frame source.
func (a *App) frame() transport.Frame {
	return transport.NewFrame(
		a.Coordinator.Snapshot(),
		a.Sinks.Spectrograph.Bars(),
		a.Sinks.Level.State(),
		a.Sinks.Progress.State(),
		time.Now(),
	)
}

// Run starts the publisher and runs the coordinator until ctx is cancelled
// or the engine closes. Cancellation is not an error.
func (a *App) Run(ctx context.Context) error {
	if a.Publisher != nil {
		a.Publisher.Start()
		defer a.Publisher.Stop()
	}
	err := a.Coordinator.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close stops the engine and releases the transports.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		errs := []error{a.Engine.Close()}
		if a.Publisher != nil {
			errs = append(errs, a.Publisher.Close())
		}
		err = errors.Join(errs...)
	})
	return err
}

func openTransports(cfg config.TransportConfig) ([]transport.Transport, error) {
	var transports []transport.Transport
	fail := func(name string, err error) ([]transport.Transport, error) {
		closeTransports(transports)
		return nil, fmt.Errorf("failed to open %s transport: %w", name, err)
	}

	if cfg.WebSocketEnabled {
		ws, err := transport.NewWebSocketTransport(cfg.WebSocketAddress)
		if err != nil {
			return fail("websocket", err)
		}
		log.Infof("Transport: serving snapshots on ws://%s%s", ws.Addr(), transport.WebSocketPath)
		transports = append(transports, ws)
	}
	if cfg.UDPEnabled {
		udp, err := transport.NewUDPTransport(cfg.UDPTargetAddress)
		if err != nil {
			return fail("udp", err)
		}
		log.Infof("Transport: sending spectrum packets to %s", cfg.UDPTargetAddress)
		transports = append(transports, udp)
	}
	if cfg.NATSEnabled {
		nt, err := transport.NewNATSTransport(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return fail("nats", err)
		}
		log.Infof("Transport: publishing snapshots to %s on %s", cfg.NATSURL, cfg.NATSSubject)
		transports = append(transports, nt)
	}
	if cfg.LogSnapshots {
		transports = append(transports, transport.NewLoggingTransport())
	}
	return transports, nil
}

func closeTransports(transports []transport.Transport) {
	for _, t := range transports {
		if err := t.Close(); err != nil {
			log.Warnf("Transport: close failed: %v", err)
		}
	}
}
