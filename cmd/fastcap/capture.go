package main

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/buckleypaul/fastcap/internal/capture"
	"github.com/buckleypaul/fastcap/internal/label"
	"github.com/buckleypaul/fastcap/internal/ui"
)

type captureFlags struct {
	id     string
	kind   string
	system string
	shots  int
	attrs  map[string]string
	live   bool
}

func newCaptureCommand(o *options) *cobra.Command {
	f := &captureFlags{}
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Image one fastener without the console",
		Long: `Runs a single capture in the foreground and prints each shot as it is
persisted. Interrupting the command cancels the run after the current shot.`,
		Example: `  fastcap capture --simulate --type screw --attr length=12 --attr thread_pitch=1.25`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(cmd, o, f)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&f.id, "id", "", "run identifier (default: random UUID)")
	flags.StringVar(&f.kind, "type", string(label.Screw), "fastener type: screw, washer or nut")
	flags.StringVar(&f.system, "system", string(label.Metric), "measurement system: metric or imperial")
	flags.IntVar(&f.shots, "shots", 0, "shots to take (default: shot_count from config)")
	flags.StringToStringVar(&f.attrs, "attr", nil, "label attribute as key=value, repeatable")
	flags.BoolVar(&f.live, "live", false, "produce a preview of the first shot")
	return cmd
}

func runCapture(cmd *cobra.Command, o *options, f *captureFlags) error {
	if f.shots == 0 {
		f.shots = o.cfg.ShotCount
	}

	session, err := o.openSession()
	if err != nil {
		return err
	}
	defer session.Close()

	dev, err := o.openCamera()
	if err != nil {
		return err
	}
	defer dev.Close()

	ctl := o.controller(dev, session)
	h, err := ctl.StartRun(cmd.Context(), capture.Request{
		ID: f.id,
		Label: label.Input{
			Type:       label.FastenerType(f.kind),
			System:     label.MeasurementSystem(f.system),
			Attributes: f.attrs,
		},
		Shots:    f.shots,
		LiveFeed: f.live,
	})
	if err != nil {
		return err
	}

	c := capture.Forward(h, printSink{out: cmd.OutOrStdout(), log: capture.LogSink{Log: o.log}})
	if c.Err != nil {
		return c.Err
	}
	if c.Cancelled {
		return errors.Errorf("run %s cancelled after %d of %d shots", c.RunID, c.Shots, c.Requested)
	}
	return nil
}

// printSink echoes progress to the terminal and the log.
type printSink struct {
	out io.Writer
	log capture.LogSink
}

func (s printSink) OnFrame(shot capture.Shot) {
	s.log.OnFrame(shot)
	fmt.Fprintf(s.out, "shot %d  %-9s  %s\n", shot.Index, shot.Phase, shot.Path)
	if shot.Preview != nil {
		b := shot.Preview.Bounds()
		fmt.Fprintf(s.out, "preview %dx%d\n%s\n", b.Dx(), b.Dy(), ui.Thumbnail(shot.Preview, 40))
	}
}

func (s printSink) OnError(e *capture.Error) {
	s.log.OnError(e)
	if e.Kind.Fatal() {
		return
	}
	fmt.Fprintf(s.out, "warning: %v\n", e)
}

func (s printSink) OnComplete(c capture.Completion) {
	s.log.OnComplete(c)
	fmt.Fprintf(s.out, "%s: %d/%d shots (%s) in %s\n", c.RunID, c.Shots, c.Requested, c.Reason, c.Dir)
}
