// Package fablecmder
package fablecmder

import (
	"github.com/spf13/cobra"

	servecmder "github.com/papercompute/fable/cmd/fable/serve"
	versioncmder "github.com/papercompute/fable/cmd/version"
)

const fableLongDesc string = `Fable is a streaming conversation engine for interactive stories.

Run the engine using:
  fable serve    Run the relay server`

const fableShortDesc string = "Fable - Conversation Engine"

func NewFableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fable",
		Short: fableShortDesc,
		Long:  fableLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
