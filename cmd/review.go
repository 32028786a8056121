package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/resume-updater/internal/pipeline"
)

const (
	PromptSave     = "Save to resume"
	PromptEdit     = "Edit and save to resume"
	PromptDiscard  = "Discard"
	PromptSaveAll  = "Save all pending updates"
	PromptBack     = "back"
	PromptQuit     = "quit"
	reviewLabelLen = 60
)

var errExit = errors.New("exit requested")

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review pending resume drafts of an employee interactively",
	RunE: func(cmd *cobra.Command, _ []string) error {
		employee, _ := cmd.Flags().GetString("employee")
		return review(cmd.Context(), employee)
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)

	reviewCmd.Flags().StringP("employee", "e", "", "employee id (default is api.default-employee)")
}

func review(ctx context.Context, employee string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a, log, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if employee == "" {
		employee = a.config.API.DefaultEmployee
	}
	if employee == "" {
		return errors.New("employee id is required (--employee or api.default-employee)")
	}
	log = log.With(zap.String("employee_id", employee))

	for {
		updates, err := a.processor.PendingUpdates(ctx, employee)
		if err != nil {
			return err
		}
		if len(updates) == 0 {
			log.Info("exiting", zap.String("reason", "no pending updates"))
			return nil
		}

		log.Info("pending updates", zap.Int("count", len(updates)))

		if err := reviewOnce(ctx, a.reviewer, employee, updates, log); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			return err
		}
	}
}

func reviewOnce(ctx context.Context, reviewer *pipeline.Reviewer, employee string, updates []pipeline.PendingUpdate, log *zap.Logger) error {
	items := make([]string, 0, len(updates)+2)
	for _, u := range updates {
		items = append(items, fmt.Sprintf("%s %s / %s / %.1fh", u.ProjectNumber, u.Name, shorten(u.ProjectName), u.TotalHours))
	}
	items = append(items, PromptSaveAll, PromptQuit)

	updatePrompt := promptui.Select{
		Label: "Choose an update and press ENTER",
		Items: items,
	}

	_, selected, err := updatePrompt.Run()
	if err != nil {
		return err
	}

	switch selected {
	case PromptQuit:
		return errExit
	case PromptSaveAll:
		all := make([]pipeline.ProjectUpdate, 0, len(updates))
		for _, u := range updates {
			all = append(all, pipeline.ProjectUpdate{ProjectNumber: u.ProjectNumber})
		}
		return save(ctx, reviewer, employee, all, log)
	}

	projectNumber := strings.Split(selected, " ")[0]
	var update *pipeline.PendingUpdate
	for i := range updates {
		if updates[i].ProjectNumber == projectNumber {
			update = &updates[i]
		}
	}
	if update == nil {
		return fmt.Errorf("there is no such project %s", projectNumber)
	}

	fmt.Printf("\n%s\n\n", update.Content)

	actionPrompt := promptui.Select{
		Label: "What to do with this draft?",
		Items: []string{PromptSave, PromptEdit, PromptDiscard, PromptBack},
	}
	_, action, err := actionPrompt.Run()
	if err != nil {
		return err
	}

	switch action {
	case PromptSave:
		return save(ctx, reviewer, employee, []pipeline.ProjectUpdate{{ProjectNumber: projectNumber}}, log)
	case PromptEdit:
		summary := promptui.Prompt{
			Label:   "Summary",
			Default: strings.ReplaceAll(strings.TrimPrefix(update.Content, update.ProjectName+"\n"), "\n", " "),
		}
		text, err := summary.Run()
		if err != nil {
			return err
		}
		description := update.ProjectName + "\n" + strings.TrimSpace(text)
		return save(ctx, reviewer, employee, []pipeline.ProjectUpdate{{ProjectNumber: projectNumber, Description: description}}, log)
	case PromptDiscard:
		if err := reviewer.Discard(ctx, employee, projectNumber); err != nil {
			return err
		}
		log.Info("update discarded", zap.String("project_number", projectNumber))
		return nil
	case PromptBack:
		return nil
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func save(ctx context.Context, reviewer *pipeline.Reviewer, employee string, updates []pipeline.ProjectUpdate, log *zap.Logger) error {
	result, err := reviewer.ApplyUpdates(ctx, employee, updates)
	if err != nil {
		return err
	}

	for project, reason := range result.Failed {
		log.Warn("update not saved", zap.String("project_number", project), zap.String("reason", reason))
	}
	log.Info("updates saved to the resume", zap.Strings("projects", result.Saved))
	return nil
}

func shorten(s string) string {
	r := []rune(s)
	if len(r) <= reviewLabelLen {
		return s
	}
	return string(r[:reviewLabelLen]) + "..."
}
