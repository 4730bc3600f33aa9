// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"spectrum/internal/analyser"
	"spectrum/internal/build"
	"spectrum/internal/config"
	"spectrum/internal/engine"
	"spectrum/internal/log"
	"spectrum/internal/tui"
	"spectrum/pkg/tone"
)

// cli holds the state shared by the commands of one invocation.
type cli struct {
	configPath string
	logLevel   string
	debug      bool
	cfg        *config.Config

	// Root command overrides.
	file         string
	inputDevice  int
	outputDevice int
	sampleRate   float64
	recordDir    string
	silent       bool
}

// Execute parses args and runs the selected command until it finishes or
// ctx is cancelled.
func Execute(ctx context.Context, args []string) error {
	root := newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	buildInfo := build.GetBuildFlags()
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         "Real-time audio spectrum analyser",
		Long:          "Plays or records WAV audio and shows its spectrum, level and waveform in the terminal.",
		Version:       buildInfo.Version,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runTUI(cmd.Context())
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&c.configPath, "config", "c", "", "Configuration file (default config.yaml if present)")
	pf.StringVar(&c.logLevel, "log-level", "", "Logging level: debug, info, warn, error")
	pf.BoolVarP(&c.debug, "verbose", "v", false, "Show verbose output")

	f := rootCmd.Flags()
	f.StringVarP(&c.file, "file", "f", "", "WAV file to open on start")
	f.IntVarP(&c.inputDevice, "input-device", "d", config.MinDeviceID,
		"Capture device ID. Use the 'list' command to see available devices.")
	f.IntVar(&c.outputDevice, "output-device", config.MinDeviceID, "Playback device ID")
	f.Float64VarP(&c.sampleRate, "sample-rate", "s", 44100, "Capture sample rate, measured in Hertz (Hz)")
	f.StringVarP(&c.recordDir, "output", "o", "", "Directory for recordings")
	f.BoolVar(&c.silent, "silent", false, "Analyse files without playing them")

	rootCmd.AddCommand(c.newListCmd(), c.newAnalyseCmd(), newToneCmd(), newVersionCmd())
	return rootCmd
}

// load reads the configuration, applies flag overrides and sets up logging.
func (c *cli) load(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(c.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("input-device") {
		cfg.Audio.InputDevice = c.inputDevice
	}
	if flags.Changed("output-device") {
		cfg.Audio.OutputDevice = c.outputDevice
	}
	if flags.Changed("sample-rate") {
		cfg.Audio.SampleRate = c.sampleRate
	}
	if flags.Changed("output") {
		cfg.Recording.OutputDir = c.recordDir
	}
	if flags.Changed("silent") {
		cfg.Audio.Playback = !c.silent
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if c.debug {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, ok := log.ParseLevel(cfg.LogLevel)
	if !ok {
		log.Warnf("Config: unknown log level '%s', using %s", cfg.LogLevel, level)
	}
	if cfg.Debug {
		level = log.LevelDebug
	}
	log.SetLevel(level)

	c.cfg = cfg
	return nil
}

// withPortAudio runs fn with PortAudio initialised.
func withPortAudio(fn func() error) error {
	if err := engine.Initialize(); err != nil {
		return err
	}
	defer func() {
		if err := engine.Terminate(); err != nil {
			log.Warnf("Engine: %v", err)
		}
	}()
	return fn()
}

func (c *cli) runTUI(ctx context.Context) error {
	return withPortAudio(func() error {
		relay := tui.NewErrorRelay()
		app, err := newApp(c.cfg, appOptions{ErrorSink: relay})
		if err != nil {
			return err
		}

		// The TUI owns the terminal; log to a file until it exits.
		if err := log.SetFile(c.cfg.LogFile); err != nil {
			app.Close()
			return err
		}
		defer log.SetFile("")

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		var (
			wg     sync.WaitGroup
			runErr error
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			runErr = app.Run(ctx)
		}()

		err = tui.Run(ctx, tui.New(app.Coordinator, app.Sinks, tui.Options{
			RecordingDir: c.cfg.Recording.OutputDir,
			InitialFile:  c.file,
			Errors:       relay,
		}))
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			err = nil // Interrupted by a signal.
		}

		cancel()
		wg.Wait()
		return errors.Join(err, runErr, app.Close())
	})
}

func (c *cli) newListCmd() *cobra.Command {
	var interactive bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPortAudio(func() error {
				if interactive {
					return tui.RunDeviceBrowser()
				}
				return engine.ListDevices(cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Browse devices in the terminal UI")
	return cmd
}

func (c *cli) newAnalyseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "analyse <file.wav>",
		Aliases: []string{"analyze"},
		Short:   "Play a WAV file through the analyser without the terminal UI",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.silent {
				c.cfg.Audio.Playback = false
			}
			run := func() error { return analyse(cmd.Context(), c.cfg, args[0], cmd.OutOrStdout(), appOptions{}) }
			if !c.cfg.Audio.Playback {
				return run()
			}
			return withPortAudio(run)
		},
	}
	cmd.Flags().BoolVar(&c.silent, "silent", false, "Pace playback with the clock instead of the output device")
	return cmd
}

// runWatcher follows a headless run. It observes every snapshot on the
// coordinator's control goroutine and signals the end of loading and of
// analysis.
type runWatcher struct {
	prev     analyser.Mode
	status   string
	loaded   chan analyser.Snapshot
	finished chan analyser.Snapshot
}

func newRunWatcher() *runWatcher {
	return &runWatcher{
		loaded:   make(chan analyser.Snapshot, 1),
		finished: make(chan analyser.Snapshot, 1),
	}
}

func (w *runWatcher) observe(s analyser.Snapshot) {
	if s.Status.Text != w.status {
		w.status = s.Status.Text
		if w.status != "" {
			log.Infof("Status: %s", w.status)
		}
	}
	switch {
	case w.prev == analyser.ModeLoadingFile && s.Mode != analyser.ModeLoadingFile:
		notify(w.loaded, s)
	case w.prev == analyser.ModeAnalyzing && s.Mode == analyser.ModeIdle:
		notify(w.finished, s)
	}
	w.prev = s.Mode
}

func notify(ch chan analyser.Snapshot, s analyser.Snapshot) {
	select {
	case ch <- s:
	default:
	}
}

// analyse loads path, plays it through the engine and reports the result.
func analyse(ctx context.Context, cfg *config.Config, path string, out io.Writer, opts appOptions) error {
	var (
		mu      sync.Mutex
		lastErr string
	)
	opts.ErrorSink = analyser.ErrorSinkFunc(func(heading, detail string) {
		log.Errorf("%s: %s", heading, detail)
		mu.Lock()
		lastErr = detail
		mu.Unlock()
	})

	app, err := newApp(cfg, opts)
	if err != nil {
		return err
	}
	watch := newRunWatcher()
	app.Coordinator.Subscribe(watch.observe)

	ctx, cancel := context.WithCancel(ctx)
	stopped := make(chan struct{})
	var runErr error
	go func() {
		defer close(stopped)
		runErr = app.Run(ctx)
	}()
	defer func() {
		cancel()
		<-stopped
		if err := app.Close(); err != nil {
			log.Warnf("Analyser: close: %v", err)
		}
	}()

	wait := func(ch chan analyser.Snapshot) (analyser.Snapshot, error) {
		select {
		case s := <-ch:
			return s, nil
		case <-ctx.Done():
			return analyser.Snapshot{}, ctx.Err()
		case <-stopped:
			return analyser.Snapshot{}, errors.Join(analyser.ErrStopped, runErr)
		}
	}

	if err := app.Coordinator.OpenFile(ctx, path); err != nil {
		return err
	}
	snap, err := wait(watch.loaded)
	if err != nil {
		return err
	}
	if !snap.Loaded {
		mu.Lock()
		defer mu.Unlock()
		return fmt.Errorf("could not load %s: %s", path, lastErr)
	}
	duration := snap.Format.DurationForBytes(snap.DataLength)
	fmt.Fprintf(out, "Loaded %s: %s, %s\n", path, snap.Format, duration)

	start := time.Now()
	if err := app.Coordinator.StartAnalysis(ctx); err != nil {
		return err
	}
	snap, err = wait(watch.finished)
	if err != nil {
		return err
	}

	mu.Lock()
	failed := lastErr
	mu.Unlock()
	if failed != "" {
		return fmt.Errorf("analysis of %s failed: %s", path, failed)
	}

	fmt.Fprintf(out, "Analysed %s in %s\n", path, time.Since(start).Round(time.Millisecond))
	if app.Publisher != nil {
		fmt.Fprintf(out, "Published %d frames\n", app.Publisher.Sent())
	}
	if snap.Dropped > 0 {
		fmt.Fprintf(out, "Discarded %d stale events\n", snap.Dropped)
	}
	return nil
}

func newToneCmd() *cobra.Command {
	t := tone.Default()
	cmd := &cobra.Command{
		Use:   "tone <output.wav>",
		Short: "Write a test tone or sweep as a 16-bit WAV file",
		Args:  cobra.ExactArgs(1),
		// Needs no configuration or audio device.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := t.WriteFile(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s: %.0f Hz, %s, %d Hz, %d channel(s)\n",
				args[0], t.Frequency, t.Duration, t.SampleRate, t.Channels)
			return nil
		},
	}
	f := cmd.Flags()
	f.Float64VarP(&t.Frequency, "frequency", "f", t.Frequency, "Tone frequency (Hz)")
	f.Float64Var(&t.EndFrequency, "sweep-to", 0, "Sweep linearly to this frequency (Hz)")
	f.Float64VarP(&t.Amplitude, "amplitude", "a", t.Amplitude, "Peak amplitude in (0, 1]")
	f.DurationVarP(&t.Duration, "duration", "d", t.Duration, "Length of the tone")
	f.IntVarP(&t.SampleRate, "sample-rate", "s", t.SampleRate, "Sample rate (Hz)")
	f.IntVar(&t.Channels, "channels", t.Channels, "Number of channels")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "version",
		Short:             "Print build information",
		Args:              cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), build.GetBuildFlags())
		},
	}
}
