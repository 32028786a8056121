package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/resume-updater/internal/tracker"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.json>...",
	Short: "Process key member event files",
	Long: "Process key member event files. Every file holds a single event object or an array of them.\n" +
		"With --container the names are read from blob storage instead of the local filesystem.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		container, _ := cmd.Flags().GetString("container")
		return ingest(cmd.Context(), container, args)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().String("container", "", "blob container to read event files from")
}

func ingest(ctx context.Context, container string, names []string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a, log, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	failed := 0
	for _, name := range names {
		var data []byte
		if container != "" {
			data, err = a.blobs.Download(ctx, container, name)
		} else {
			data, err = os.ReadFile(name)
		}
		if err != nil {
			log.Error("reading event file", zap.String("name", name), zap.Error(err))
			failed++
			continue
		}

		entries, err := decodeEntries(data)
		if err != nil {
			log.Error("decoding event file", zap.String("name", name), zap.Error(err))
			failed++
			continue
		}

		for _, entry := range entries {
			res, err := a.processor.ProcessEvent(ctx, entry)
			if err != nil {
				log.Error("processing event",
					zap.String("name", name),
					zap.String("project_number", entry.ProjectNumber),
					zap.Error(err),
				)
				failed++
				continue
			}
			log.Info(res.Message, zap.String("status", res.Status), zap.String("tracker_id", res.TrackerID))
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d event(s) failed", failed)
	}
	return nil
}

func decodeEntries(data []byte) ([]tracker.KeyMemberEntry, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var entries []tracker.KeyMemberEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, err
		}
		return entries, nil
	}

	var entry tracker.KeyMemberEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return []tracker.KeyMemberEntry{entry}, nil
}
