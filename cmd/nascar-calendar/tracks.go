package main

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newTracksCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "tracks",
		Short: "List the track reference data used to derive race distances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.load(cmd); err != nil {
				return err
			}
			tracks, err := loadTracks(ctx.cfg)
			if err != nil {
				return err
			}

			tw := newTable(cmd.OutOrStdout(), table.Row{"Track", "Length (mi)", "Lat", "Lon"}, 2, 3, 4)
			for _, t := range tracks.Tracks() {
				lat, lon := "", ""
				if t.Lat != nil && t.Lon != nil {
					lat = strconv.FormatFloat(*t.Lat, 'f', 4, 64)
					lon = strconv.FormatFloat(*t.Lon, 'f', 4, 64)
				}
				tw.AppendRow(table.Row{t.Name, strconv.FormatFloat(t.LengthMiles, 'f', -1, 64), lat, lon})
			}
			tw.AppendFooter(table.Row{fmt.Sprintf("%d tracks", tracks.Len())})
			tw.Render()
			return nil
		},
	}
}
