package main

import (
	"fmt"

	"github.com/ohowland/interconnect/internal/pkg/config"
	"github.com/spf13/cobra"
)

func newValidateCmd(settings func() (config.Settings, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [model]",
		Short: "Check a model without running it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				s, err := settings()
				if err != nil {
					return err
				}
				path = s.Model
			}
			if path == "" {
				return fmt.Errorf("no model given")
			}

			model, err := config.Load(path)
			if err != nil {
				return err
			}
			network, err := model.Build(nil, nil)
			if err != nil {
				return fmt.Errorf("model %s: %w", path, err)
			}
			central := "none"
			if network.Dispatch != nil {
				central = "central"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: interconnection %s, %d areas, %d interties, %d units, dispatch %s\n",
				path, model.Interconnection.Name, len(network.Areas), len(network.Interties),
				len(network.Bindings), central)
			return nil
		},
	}
}
