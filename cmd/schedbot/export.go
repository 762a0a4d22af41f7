package main

import (
	"bytes"
	"fmt"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"schedbot/internal/app"
	"schedbot/internal/calendar"
	"schedbot/internal/config"
	"schedbot/internal/schedule"
)

func newExportCmd() *cobra.Command {
	var (
		output  string
		name    string
		surname string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the schedule as iCalendar",
		Long:  "Writes the stored schedule as an .ics file, one event per run of the same activity.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := schedule.Filter{FirstName: name, LastName: surname, BySurnameOnly: name == ""}
			return withCore(false, func(cfg *config.Config, core *app.Core) error {
				slots, err := core.Directory.EventsFor(cmd.Context(), f)
				if err != nil {
					return err
				}

				skip := "Rest"
				if p := cfg.Feed.Layout.Placeholder; p != "" {
					skip = p
				}
				var buf bytes.Buffer
				if err := calendar.Write(&buf, slots, calendar.Options{
					ProductID: "-//schedbot//EN",
					Name:      "Event schedule",
					Skip:      skip,
				}); err != nil {
					return err
				}
				if output == "" {
					_, err := buf.WriteTo(cmd.OutOrStdout())
					return err
				}
				if err := atomic.WriteFile(output, &buf); err != nil {
					return fmt.Errorf("writing %s: %w", output, err)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringVar(&name, "name", "", "Only this first name (with --surname)")
	cmd.Flags().StringVar(&surname, "surname", "", "Only this surname")
	return cmd
}
