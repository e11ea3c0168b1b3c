package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quizforge/internal/app"
	"quizforge/internal/config"
)

// NewSweepCmd exposes the batch cleanup routines from the command line, so
// creators (or a cron job acting for them) can prune stale quizzes without
// going through the API.
func NewSweepCmd(configPath *string) *cobra.Command {
	var ownerID string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Batch-delete quizzes and their submissions",
	}
	cmd.PersistentFlags().StringVar(&ownerID, "owner", "", "owner user id whose quizzes are swept")
	_ = cmd.MarkPersistentFlagRequired("owner")

	// -1 marks the flag as not given, so an explicit 0 keeps its meaning.
	var days int
	oldCmd := &cobra.Command{
		Use:   "old",
		Short: "Delete the owner's quizzes older than the given age, cascading to submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, *configPath, func(service *app.QuizService, cfg config.Config) (int, error) {
				if days < 0 {
					days = cfg.Cleanup.DaysOld
					if days <= 0 {
						days = app.DefaultSweepDays
					}
				}
				return service.SweepOldQuizzes(cmd.Context(), ownerID, days)
			})
		},
	}
	oldCmd.Flags().IntVar(&days, "days", -1, "age threshold in days (config cleanup.daysOld, then 90)")

	var minResponses int
	inactiveCmd := &cobra.Command{
		Use:   "inactive",
		Short: "Delete the owner's quizzes with few responses, cascading to submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, *configPath, func(service *app.QuizService, cfg config.Config) (int, error) {
				if minResponses < 0 {
					minResponses = cfg.Cleanup.MinResponses
					if minResponses <= 0 {
						minResponses = app.DefaultMinResponses
					}
				}
				return service.SweepInactiveQuizzes(cmd.Context(), ownerID, minResponses)
			})
		},
	}
	inactiveCmd.Flags().IntVar(&minResponses, "min-responses", -1, "response-count threshold (config cleanup.minResponses, then 5)")

	cmd.AddCommand(oldCmd)
	cmd.AddCommand(inactiveCmd)
	return cmd
}

func runSweep(cmd *cobra.Command, configPath string, sweep func(*app.QuizService, config.Config) (int, error)) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	service, _, cleanup, err := buildServices(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	deleted, err := sweep(service, cfg)
	if err != nil {
		return err
	}
	log.Info("sweep finished", zap.Int("deletedQuizzes", deleted))
	return nil
}
