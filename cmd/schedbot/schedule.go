package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"schedbot/internal/app"
	"schedbot/internal/config"
	"schedbot/internal/schedule"
)

func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule <surname> | <name> <surname>",
		Short: "Print someone's schedule",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := schedule.Filter{LastName: args[0], BySurnameOnly: true}
			if len(args) == 2 {
				f = schedule.Filter{FirstName: args[0], LastName: args[1]}
			}
			return withCore(false, func(_ *config.Config, core *app.Core) error {
				slots, err := core.Directory.EventsFor(cmd.Context(), f)
				if errors.Is(err, schedule.ErrPersonNotFound) {
					return errors.New("user not found")
				}
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if len(slots) == 0 {
					fmt.Fprintln(w, "No events found.")
					return nil
				}
				for _, line := range schedule.FormatTimeline(slots) {
					fmt.Fprintln(w, line)
				}
				return nil
			})
		},
	}
}
