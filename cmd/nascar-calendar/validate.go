package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yourusername/nascar-calendar/internal/ical"
	"github.com/yourusername/nascar-calendar/internal/service"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file.ics>",
		Short: "Check that a published calendar document parses and is ordered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			cal, err := ical.Parse(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d entries", args[0], len(cal.Entries))
			if cal.Name != "" {
				fmt.Fprintf(out, " in %q", cal.Name)
			}
			fmt.Fprintln(out)

			cancelled := 0
			for _, e := range cal.Entries {
				if e.IsCancelled() {
					cancelled++
				}
			}
			if cancelled > 0 {
				fmt.Fprintf(out, "%d cancelled\n", cancelled)
			}

			violations := service.OrderViolations(cal.Entries)
			for _, i := range violations {
				fmt.Fprintf(out, "out of order: %s (%s) after %s (%s)\n",
					cal.Entries[i].UID, ical.FormatTime(cal.Entries[i].StartsAt),
					cal.Entries[i-1].UID, ical.FormatTime(cal.Entries[i-1].StartsAt))
			}
			if len(violations) > 0 {
				return fmt.Errorf("%d entries out of order", len(violations))
			}
			return nil
		},
	}
}
