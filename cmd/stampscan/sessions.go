package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSessionsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List and inspect recorded sessions",
	}
	cmd.AddCommand(newSessionsListCmd(configPath))
	cmd.AddCommand(newSessionsShowCmd(configPath))
	cmd.AddCommand(newSessionsReindexCmd(configPath))
	return cmd
}

func newSessionsListCmd(configPath *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded sessions, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			_, recorder, index, closer, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer closer()

			if index != nil {
				rows, err := index.List(limit)
				if err == nil {
					w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
					fmt.Fprintln(w, "SESSION\tSOURCE\tTOTAL\tIDENTIFIED\tAMBIGUOUS\tNO MATCH\tREJECTED")
					for _, r := range rows {
						fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
							r.SessionID, r.Source, r.Total, r.Identified, r.Ambiguous, r.NoMatch, r.Rejected)
					}
					return w.Flush()
				}
			}

			ids, err := recorder.ListSessions()
			if err != nil {
				return err
			}
			for i, id := range ids {
				if limit > 0 && i >= limit {
					break
				}
				fmt.Println(id)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum sessions to list")
	return cmd
}

func newSessionsShowCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print one session record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			_, recorder, _, closer, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer closer()

			sess, err := recorder.LoadSession(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(sess)
		},
	}
}

func newSessionsReindexCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the session index from the session directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			_, recorder, index, closer, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer closer()

			if index == nil {
				return fmt.Errorf("no index configured (set index_path)")
			}
			if err := index.Rebuild(recorder); err != nil {
				return err
			}
			fmt.Println("index rebuilt")
			return nil
		},
	}
}
