package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buckleypaul/fastcap/internal/serial"
)

func newPortsCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := serial.ListPorts()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ports) == 0 {
				fmt.Fprintln(out, "no serial ports found")
				return nil
			}
			for _, p := range ports {
				mark := " "
				if p.Name == o.cfg.SerialPort {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %s\n", mark, p.Label())
			}
			return nil
		},
	}
}
