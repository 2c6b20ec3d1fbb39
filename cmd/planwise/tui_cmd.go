package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fentz26/planwise/internal/engine"
	"github.com/fentz26/planwise/internal/tui"
)

var tuiTZ string

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive schedule viewer",
	RunE:  runTUI,
}

func init() {
	tuiCmd.Flags().StringVar(&ownerID, "owner", defaultOwner(), "Owner whose schedule to show")
	tuiCmd.Flags().StringVar(&tuiTZ, "tz", "", "IANA timezone (default from config)")
}

func runTUI(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	app := tui.New(a.service, ownerID, tuiTZ, engine.Weights{})
	if err := app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
