// Command roast-timer times a coffee roast, alerts on predicted phases and
// logs the result for future predictions.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sweeney/roast-timer/internal/alert"
	"github.com/sweeney/roast-timer/internal/config"
	"github.com/sweeney/roast-timer/internal/console"
	"github.com/sweeney/roast-timer/internal/gpio"
	"github.com/sweeney/roast-timer/internal/logging"
	"github.com/sweeney/roast-timer/internal/logic"
	"github.com/sweeney/roast-timer/internal/mqtt"
	"github.com/sweeney/roast-timer/internal/roast"
	"github.com/sweeney/roast-timer/internal/status"
	"github.com/sweeney/roast-timer/internal/store"
	"github.com/sweeney/roast-timer/internal/web"
)

const defaultConfigPath = "roast-timer.yaml"

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// options holds flag values; only flags the user set override the config.
type options struct {
	configPath string
	logPath    string
	logLevel   string
	logFile    string
	unit       string

	httpAddr  string
	broker    string
	buttonPin int
	decaf     bool
	regular   bool
	origin    string

	recent int
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "roast-timer",
		Short:         "Time a coffee roast with history-based phase alerts",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRoastCmd(cmd, opts, in, out)
		},
	}
	root.SetIn(in)
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", defaultConfigPath, "YAML config file (optional unless set)")
	pf.StringVar(&opts.logPath, "log", "", "roast log (.csv, or .db/.sqlite for SQLite)")
	pf.StringVar(&opts.logLevel, "log-level", "", "diagnostic log level")
	pf.StringVar(&opts.logFile, "log-file", "", "diagnostic log file (default stderr)")
	pf.StringVar(&opts.unit, "unit", "", "temperature unit shown in prompts (C or F)")

	roastCmd := &cobra.Command{
		Use:   "roast",
		Short: "Run an interactive roast session (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRoastCmd(cmd, opts, in, out)
		},
	}
	for _, c := range []*cobra.Command{root, roastCmd} {
		f := c.Flags()
		f.StringVar(&opts.httpAddr, "http", "", `HTTP status address (e.g. ":8080", empty to disable)`)
		f.StringVar(&opts.broker, "broker", "", "MQTT broker address (empty to disable)")
		f.IntVar(&opts.buttonPin, "button-pin", -1, "BCM pin of the control-point button (-1 to disable)")
		f.BoolVar(&opts.decaf, "decaf", false, "roast decaf beans without asking")
		f.BoolVar(&opts.regular, "regular", false, "roast regular beans without asking")
		f.StringVar(&opts.origin, "origin", "", "bean origin")
		c.MarkFlagsMutuallyExclusive("decaf", "regular")
	}

	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the most recent roasts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withHistory(cmd, opts, func(cfg config.Config, records []logic.SessionRecord) {
				console.NewReport(out, cfg.Unit).Recent(records, opts.recent)
			})
		},
	}
	recentCmd.Flags().IntVarP(&opts.recent, "number", "n", 5, "number of roasts to show")

	root.AddCommand(
		roastCmd,
		&cobra.Command{
			Use:   "estimates",
			Short: "Show the phase estimates the next roast would use",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withHistory(cmd, opts, func(cfg config.Config, records []logic.SessionRecord) {
					report := console.NewReport(out, cfg.Unit)
					for _, cat := range []logic.Category{logic.CategoryRegular, logic.CategoryDecaf} {
						report.Estimates(logic.Estimate(records, cat))
						fmt.Fprintln(out)
					}
				})
			},
		},
		recentCmd,
		&cobra.Command{
			Use:   "stats",
			Short: "Compare decaf and regular roasts and check consistency",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withHistory(cmd, opts, func(cfg config.Config, records []logic.SessionRecord) {
					groups := []logic.GroupStats{
						logic.AnalyzeGroup(records, logic.CategoryDecaf),
						logic.AnalyzeGroup(records, logic.CategoryRegular),
					}
					console.NewReport(out, cfg.Unit).Stats(groups, logic.ConsistencyCheck(records))
				})
			},
		},
		&cobra.Command{
			Use:   "button",
			Short: "Print the current button state and exit",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, log, closeLog, err := setup(cmd, opts)
				if err != nil {
					return err
				}
				defer closeLog()
				return printButton(cfg, log, out)
			},
		},
	)
	return root
}

// setup loads .env, the config file and the environment, applies flags and
// opens the diagnostic logger.
func setup(cmd *cobra.Command, opts *options) (config.Config, *logrus.Logger, func(), error) {
	// A missing .env is normal.
	_ = godotenv.Load()

	path := opts.configPath
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path, os.LookupEnv)
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("load config: %w", err)
	}
	applyFlags(&cfg, cmd, opts)
	if err := cfg.Validate(); err != nil {
		return cfg, nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	log, closeLog, err := logging.Open(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return cfg, nil, nil, err
	}
	return cfg, log, func() { _ = closeLog() }, nil
}

func applyFlags(cfg *config.Config, cmd *cobra.Command, opts *options) {
	changed := cmd.Flags().Changed
	if changed("log") {
		cfg.LogPath = opts.logPath
	}
	if changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if changed("log-file") {
		cfg.LogFile = opts.logFile
	}
	if changed("unit") {
		cfg.Unit = opts.unit
	}
	if cmd.Flags().Lookup("http") == nil {
		return
	}
	if changed("http") {
		cfg.HTTPAddr = opts.httpAddr
	}
	if changed("broker") {
		cfg.Broker = opts.broker
	}
	if changed("button-pin") {
		cfg.Button.Pin = opts.buttonPin
	}
	if changed("origin") {
		cfg.Defaults.Origin = opts.origin
	}
}

func withHistory(cmd *cobra.Command, opts *options, fn func(config.Config, []logic.SessionRecord)) error {
	cfg, log, closeLog, err := setup(cmd, opts)
	if err != nil {
		return err
	}
	defer closeLog()

	st, err := store.Open(cfg.LogPath, log)
	if err != nil {
		return fmt.Errorf("open roast log: %w", err)
	}
	defer st.Close()

	records, err := st.All(cmd.Context())
	if err != nil {
		return fmt.Errorf("read roast log: %w", err)
	}
	fn(cfg, records)
	return nil
}

func printButton(cfg config.Config, log logrus.FieldLogger, out io.Writer) error {
	if !cfg.Button.Enabled() {
		return errors.New("no button configured (set --button-pin or button.pin)")
	}
	reader, err := gpio.NewRealReader(cfg.Button.Chip, cfg.Button.Pin)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer reader.Close()

	pressed, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}
	log.WithField("pin", cfg.Button.Pin).Debug("gpio: read button")
	fmt.Fprintf(out, "Button (%s pin %d): %s\n", cfg.Button.Chip, cfg.Button.Pin, buttonString(pressed))
	return nil
}

func buttonString(pressed bool) string {
	if pressed {
		return "PRESSED"
	}
	return "RELEASED"
}

func runRoastCmd(cmd *cobra.Command, opts *options, in io.Reader, out io.Writer) error {
	cfg, log, closeLog, err := setup(cmd, opts)
	if err != nil {
		return err
	}
	defer closeLog()

	var cat logic.Category
	switch {
	case opts.decaf:
		cat = logic.CategoryDecaf
	case opts.regular:
		cat = logic.CategoryRegular
	}

	ctx, reason, stop := signalContext(cmd.Context())
	defer stop()
	return run(ctx, reason, cfg, cat, log, in, out)
}

// signalContext cancels on SIGINT or SIGTERM and reports which one arrived.
func signalContext(parent context.Context) (context.Context, func() string, func()) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var mu sync.Mutex
	name := ""
	go func() {
		select {
		case s := <-sigCh:
			mu.Lock()
			name = signalName(s)
			mu.Unlock()
			cancel()
		case <-ctx.Done():
		}
	}()
	reason := func() string {
		mu.Lock()
		defer mu.Unlock()
		return name
	}
	return ctx, reason, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// run wires the collaborators for one roast session and publishes the
// STARTUP and SHUTDOWN lifecycle events around it.
func run(ctx context.Context, reason func() string, cfg config.Config, cat logic.Category, log *logrus.Logger, in io.Reader, out io.Writer) error {
	st, err := store.Open(cfg.LogPath, log)
	if err != nil {
		return fmt.Errorf("open roast log: %w", err)
	}
	defer st.Close()

	line := console.NewLine(out)

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		LogPath:    cfg.LogPath,
		Broker:     cfg.Broker,
		HTTPAddr:   cfg.HTTPAddr,
		Unit:       cfg.Unit,
		ButtonPin:  cfg.Button.Pin,
		CadenceMs:  cfg.Alerts.Cadence.Milliseconds(),
		DebounceMs: cfg.Button.Debounce.Milliseconds(),
	})

	var publisher mqtt.Publisher
	var conn mqtt.ConnectionStatus
	if cfg.Broker != "" {
		p, err := mqtt.NewRealPublisher(cfg.Broker, cfg.ClientID, log)
		if err != nil {
			log.WithError(err).Warn("mqtt: disabled")
		} else {
			publisher, conn = p, p
			defer p.Close()
			go trackConnection(ctx, tracker, conn, 5*time.Second)
		}
	}
	publishSystem(publisher, conn, tracker, log, "STARTUP", "")

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, log)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Warn("http: server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		log.WithField("addr", cfg.HTTPAddr).Info("http: status server listening")
	}

	var presses <-chan time.Time
	if cfg.Button.Enabled() {
		reader, err := gpio.NewRealReader(cfg.Button.Chip, cfg.Button.Pin)
		if err != nil {
			log.WithError(err).Warn("gpio: button disabled, keyboard only")
		} else {
			defer reader.Close()
			presses = gpio.Watch(ctx, reader, cfg.Button.Poll, cfg.Button.Debounce, log)
		}
	}

	sinks := []alert.Sink{tracker}
	if cfg.Alerts.Bell {
		sinks = append(sinks, alert.Bell{W: line.Bell()})
	}
	if c := alert.ParseCommand(cfg.Alerts.Command, log); c != nil {
		sinks = append(sinks, c)
	}
	if publisher != nil {
		alertSink := mqtt.NewAlertSink(publisher, nil, log)
		defer alertSink.Close()
		sinks = append(sinks, alertSink)
	}

	runner := &roast.Runner{
		Operator: &console.Console{
			Lines:  console.ReadLines(in),
			Button: presses,
			Out:    line,
		},
		Out:       line,
		Report:    console.NewReport(line, cfg.Unit),
		Store:     st,
		Publisher: publisher,
		Scheduler: &alert.Scheduler{
			Display:     line,
			Sink:        alert.Multi{Sinks: sinks, Log: log},
			Log:         log,
			Cadence:     cfg.Alerts.Cadence,
			Hold:        cfg.Alerts.Hold,
			JoinTimeout: cfg.Alerts.JoinTimeout,
		},
		Tracker:  tracker,
		Log:      log,
		Unit:     cfg.Unit,
		Category: cat,
		Meta: roast.Meta{
			Origin:      cfg.Defaults.Origin,
			BatchSize:   cfg.Defaults.BatchSize,
			TargetLevel: cfg.Defaults.TargetLevel,
		},
	}
	if cfg.Alerts.Bell {
		runner.Bell = line.Bell()
	}

	log.WithFields(logrus.Fields{"log": cfg.LogPath, "broker": cfg.Broker, "button": cfg.Button.Pin}).Info("started")
	rec, err := runner.Run(ctx)

	why := "COMPLETE"
	switch {
	case reason() != "":
		why = reason()
	case errors.Is(err, io.EOF):
		why = "EOF"
	case err != nil:
		why = "ERROR"
	}
	publishSystem(publisher, conn, tracker, log, "SHUTDOWN", why)

	if err != nil {
		if ctx.Err() != nil || errors.Is(err, io.EOF) {
			fmt.Fprintf(line, "\nRoast abandoned (%s); nothing was logged.\n", why)
			return nil
		}
		return err
	}
	fmt.Fprintf(line, "Data saved to %s (%s)\n", cfg.LogPath, rec.ID)
	return nil
}

func publishSystem(publisher mqtt.Publisher, conn mqtt.ConnectionStatus, tracker *status.Tracker, log logrus.FieldLogger, event, reason string) {
	if publisher == nil {
		return
	}
	if conn != nil {
		tracker.SetMQTTConnected(conn.IsConnected())
	}
	snap := tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := publisher.PublishSystem(ev); err != nil {
		log.WithError(err).WithField("event", event).Warn("mqtt: failed to publish system event")
		return
	}
	log.WithField("event", event).Info("mqtt: published system event")
}

// trackConnection mirrors the broker connection state into the tracker.
func trackConnection(ctx context.Context, tracker *status.Tracker, conn mqtt.ConnectionStatus, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		tracker.SetMQTTConnected(conn.IsConnected())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
