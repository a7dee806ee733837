package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/buckleypaul/fastcap/internal/config"
)

func newMkconfCommand(o *options) *cobra.Command {
	var global bool
	cmd := &cobra.Command{
		Use:   "mkconf",
		Short: "Write the effective configuration to disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(o.cfg, o.dir, global); err != nil {
				return err
			}
			if !global {
				fmt.Fprintln(cmd.OutOrStdout(), filepath.Join(o.dir, config.DirName, "config.json"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&global, "global", false, "write ~/.config/fastcap/config.json instead of the workspace file")
	return cmd
}
