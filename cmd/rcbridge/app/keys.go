package app

import (
	"fmt"
	"io"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/autopeer-io/rcbridge/internal/vehicle/input"
)

func newKeysCommand() *cobra.Command {
	var drivePower, steerPower int8

	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Print the input controls and the commands they issue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m := input.NewMapper(nil, input.WithDrivePower(drivePower), input.WithSteerPower(steerPower))
			return printBindings(cmd.OutOrStdout(), m.Bindings())
		},
	}

	cmd.Flags().Int8Var(&drivePower, "drive-power", input.DefaultDrivePower, "Power applied while forward or reverse is held.")
	cmd.Flags().Int8Var(&steerPower, "steer-power", input.DefaultSteerPower, "Power applied while a steering control is held.")
	return cmd
}

func printBindings(w io.Writer, bindings []input.Binding) error {
	table := uitable.New()
	table.MaxColWidth = 60
	table.Wrap = true
	table.AddRow("CONTROL", "ON PRESS", "ON RELEASE")
	for _, b := range bindings {
		table.AddRow(string(b.Control), b.OnPress, b.OnRelease)
	}
	_, err := fmt.Fprintln(w, table)
	return err
}
