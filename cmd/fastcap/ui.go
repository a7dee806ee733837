package main

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/buckleypaul/fastcap/internal/app"
	"github.com/buckleypaul/fastcap/internal/capture"
	"github.com/buckleypaul/fastcap/internal/config"
	"github.com/buckleypaul/fastcap/internal/pages"
)

func newUICommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "Run the operator console",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUI(cmd.Context(), o)
		},
	}
}

func runUI(ctx context.Context, o *options) error {
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

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pageMap := map[app.PageID]app.Page{
		app.CapturePage: pages.NewCapturePage(runCtx, ctl, &o.cfg),
		app.HistoryPage: pages.NewHistoryPage(session),
		app.PortsPage:   pages.NewPortsPage(o.cfg.SerialPort, app.ListPorts),
		app.SettingsPage: pages.NewSettingsPage(&o.cfg, o.dir, func(c config.Config) {
			ctl.SetSettings(capture.SettingsFromConfig(c))
		}),
	}

	model := app.New(pageMap, &o.cfg, o.dir, session.Dir())

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err = p.Run()

	cancel()
	if !waitIdle(ctl, 10*time.Second) {
		o.log.Warn("run still active at exit")
	}
	o.log.Info("console closed", zap.String("session", session.Dir()))
	return err
}
