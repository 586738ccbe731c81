package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agenthands/minutes/internal/core/attendee"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve NAME...",
	Short: "Show how attendee names map to email addresses",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		table, err := cfg.Attendees.Table()
		if err != nil {
			return err
		}
		r := attendee.NewResolver(table)

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-24s %-32s %-10s %s\n", "NAME", "EMAIL", "METHOD", "SCORE")
		fmt.Fprintf(w, "%-24s %-32s %-10s %s\n",
			strings.Repeat("-", 24), strings.Repeat("-", 32), strings.Repeat("-", 10), strings.Repeat("-", 5))
		for _, name := range args {
			m := r.Resolve(name)
			fmt.Fprintf(w, "%-24s %-32s %-10s %.2f\n", name, m.Email, m.Method, m.Score)
		}
		return nil
	},
}
