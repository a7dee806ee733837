package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/buckleypaul/fastcap/internal/camera"
	"github.com/buckleypaul/fastcap/internal/capture"
	"github.com/buckleypaul/fastcap/internal/config"
	"github.com/buckleypaul/fastcap/internal/logger"
	"github.com/buckleypaul/fastcap/internal/serial"
	"github.com/buckleypaul/fastcap/internal/store"
	"github.com/buckleypaul/fastcap/internal/transform"
)

// options carries the persistent flags and everything resolved from them.
type options struct {
	dir       string
	logLevel  string
	logFormat string
	logFile   string
	simulate  bool

	cfg config.Config
	log *zap.Logger
}

func main() {
	o := &options{}

	rootCmd := &cobra.Command{
		Use:          "fastcap",
		Short:        "Fastener imaging station controller",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUI(cmd.Context(), o)
		},
	}
	registerFlags(rootCmd, o)
	rootCmd.AddCommand(
		newUICommand(o),
		newCaptureCommand(o),
		newPortsCommand(o),
		newMkconfCommand(o),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if o.log != nil {
		_ = o.log.Sync()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func registerFlags(cmd *cobra.Command, o *options) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&o.dir, "dir", "", "workspace directory holding .fastcap/ (default: current directory)")
	flags.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&o.logFormat, "log-format", "", "log format: console or json")
	flags.StringVar(&o.logFile, "log-file", "", `log destination; "stdout" for the terminal`)
	flags.BoolVar(&o.simulate, "simulate", false, "use the simulated camera, and the simulated fixture when no serial port is set")
}

// setup loads the layered config, applies flag overrides and builds the
// logger.
func (o *options) setup(cmd *cobra.Command) error {
	if o.dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		o.dir = cwd
	}
	o.cfg = config.Load(o.dir)

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		o.cfg.LogLevel = o.logLevel
	}
	if flags.Changed("log-format") {
		o.cfg.LogFormat = o.logFormat
	}
	if flags.Changed("log-file") {
		o.cfg.LogFile = o.logFile
	}
	if o.cfg.LogFormat != "console" && o.cfg.LogFormat != "json" {
		return fmt.Errorf("invalid log format %q: must be console or json", o.cfg.LogFormat)
	}

	path, err := logPath(o.dir, o.cfg.LogFile)
	if err != nil {
		return err
	}
	log, err := logger.Init(o.cfg.LogFormat, o.cfg.LogLevel, path)
	if err != nil {
		return errors.Wrap(err, "init logger")
	}
	o.log = log
	zap.ReplaceGlobals(log)
	return nil
}

// logPath resolves the log destination. Relative names land in the
// workspace .fastcap directory, which is created on demand.
func logPath(dir, name string) (string, error) {
	switch name {
	case "stdout", "stderr":
		return name, nil
	case "":
		name = config.DefaultLogFile
	}
	if filepath.IsAbs(name) {
		return name, nil
	}
	base := filepath.Join(dir, config.DirName)
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", errors.Wrap(err, "create log directory")
	}
	return filepath.Join(base, name), nil
}

func (o *options) openSession() (*store.Session, error) {
	root := o.cfg.SessionRoot
	if !filepath.IsAbs(root) {
		root = filepath.Join(o.dir, root)
	}
	s, err := store.NewSession(root, time.Now())
	if err != nil {
		return nil, errors.Wrap(err, "open session")
	}
	o.log.Info("session opened", zap.String("dir", s.Dir()))
	return s, nil
}

func (o *options) openCamera() (camera.Device, error) {
	if o.simulate {
		return camera.NewSimulator(), nil
	}
	return nil, errors.New("no camera driver is built into this binary; run with --simulate")
}

// dialer reads the port settings when a run starts, so a port picked in the
// console applies to the next run.
func (o *options) dialer() capture.Dialer {
	return func(ctx context.Context) (capture.Link, error) {
		poll := time.Duration(o.cfg.PollIntervalMS) * time.Millisecond
		if o.cfg.SerialPort == "" {
			if o.simulate {
				return serial.NewLink(serial.NewFixture(o.cfg.ShotCount, poll), "simulated"), nil
			}
			return nil, errors.New("no serial port configured")
		}
		return capture.SerialDialer(serial.Settings{
			Port:         o.cfg.SerialPort,
			BaudRate:     o.cfg.SerialBaudRate,
			PollInterval: poll,
			OpenTimeout:  time.Duration(o.cfg.LinkOpenTimeoutMS) * time.Millisecond,
		})(ctx)
	}
}

func (o *options) controller(dev camera.Device, s *store.Session) *capture.Controller {
	return capture.New(dev, s, o.dialer(),
		capture.WithLogger(o.log),
		capture.WithSettings(capture.SettingsFromConfig(o.cfg)),
		capture.WithPreviewer(transform.Shrink{Percent: transform.DefaultPreviewPercent}),
	)
}

// waitIdle blocks until the controller has released its run or the budget
// expires.
func waitIdle(ctl *capture.Controller, budget time.Duration) bool {
	deadline := time.Now().Add(budget)
	for ctl.Busy() {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(20 * time.Millisecond)
	}
	return true
}
