package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPendingCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Manage crops queued for manual review",
		Long: `Unmatched crops from every scan are queued under the session root
for re-ingestion. List them here, review them by hand, then mark each
one resolved to move it out of the queue. Ambiguous detections are not
queued; their candidate matches live in the session record.`,
	}
	cmd.AddCommand(newPendingListCmd(configPath))
	cmd.AddCommand(newPendingResolveCmd(configPath))
	return cmd
}

func newPendingListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queued crops, oldest first",
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

			names, err := recorder.PendingCrops()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Println("no crops pending review")
				return nil
			}
			for _, name := range names {
				fmt.Println(recorder.PendingCropPath(name))
			}
			return nil
		},
	}
}

func newPendingResolveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <crop-name> [crop-name...]",
		Short: "Mark reviewed crops as resolved",
		Args:  cobra.MinimumNArgs(1),
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

			for _, name := range args {
				if err := recorder.ResolvePending(name); err != nil {
					return err
				}
				fmt.Println("resolved", name)
			}
			return nil
		},
	}
}
