package cmd

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Remind every employee with drafts waiting for review, honoring the cooldown",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return notify(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(notifyCmd)
}

func notify(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a, log, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.reminder.Run(ctx)

	// do not bother error since the summary is a plain struct
	pretty, _ := json.MarshalIndent(summary, "", "  ")
	log.Info("reminder run finished", zap.String("summary", string(pretty)))

	return err
}
