package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agenthands/minutes/internal/core/archive"
	"github.com/agenthands/minutes/internal/driver"
)

var meetingsCmd = &cobra.Command{
	Use:   "meetings [query]",
	Short: "Search archived meetings",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer log.Sync()
		if cfg.Memgraph.URI == "" {
			return errors.New("meeting archive is not configured (set MEMGRAPH_URI)")
		}

		ctx := cmd.Context()
		d, err := driver.NewMemgraphDriver(ctx, cfg.Memgraph.URI, cfg.Memgraph.User, cfg.Memgraph.Password, log)
		if err != nil {
			return fmt.Errorf("failed to connect to memgraph: %w", err)
		}
		defer d.Close(context.Background())

		var query string
		if len(args) == 1 {
			query = args[0]
		}
		limit, _ := cmd.Flags().GetInt("limit")
		found, err := archive.New(d, nil, log).Search(ctx, query, limit)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if format, _ := cmd.Flags().GetString("format"); format == "json" {
			data, _ := json.MarshalIndent(found, "", "  ")
			fmt.Fprintln(w, string(data))
			return nil
		}
		if len(found) == 0 {
			fmt.Fprintln(w, "No meetings found.")
			return nil
		}
		for _, m := range found {
			fmt.Fprintf(w, "%s  %s  %s\n", m.CreatedAt.Format("2006-01-02 15:04"), m.ID, m.Title)
			if len(m.Participants) > 0 {
				fmt.Fprintf(w, "    with %s\n", strings.Join(m.Participants, ", "))
			}
		}
		return nil
	},
}

func init() {
	meetingsCmd.Flags().Int("limit", 10, "Maximum number of meetings")
	meetingsCmd.Flags().String("format", "text", "Output format: text or json")
}
