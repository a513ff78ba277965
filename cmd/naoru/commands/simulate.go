package commands

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/takeshi-yoshida/Naoru/internal/config"
	"github.com/takeshi-yoshida/Naoru/internal/healing"
	"github.com/takeshi-yoshida/Naoru/internal/learning"
)

// simulateCmd represents the simulate command
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run synthetic failures through the engine",
	Long: `Feed randomly generated failures through an in-memory engine and
print how the policy evolves. Useful for evaluating configuration changes
before deploying them.`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().Int("count", 100, "Number of failures to simulate")
	simulateCmd.Flags().Int64("seed", 0, "Random seed (0 uses the current time)")
	simulateCmd.Flags().Int("retrain-every", 20, "Failures between retraining passes")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	count, _ := cmd.Flags().GetInt("count")
	seed, _ := cmd.Flags().GetInt64("seed")
	retrainEvery, _ := cmd.Flags().GetInt("retrain-every")

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := newLogger("warn")
	if err != nil {
		return err
	}
	defer logger.Sync()

	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	executor := healing.NewSimulatedExecutor(logger)
	executor.Accelerate = 0
	executor.Seed(seed)

	learner := learning.NewSystem(logger, cfg.Learning, nil)
	orchestrator := healing.NewOrchestrator(logger, cfg.Healing, executor, learner, nil)
	orchestrator.Agent().Seed(seed)

	components := [][]string{
		{"web-server"},
		{"api-gateway", "auth-service"},
		{"database"},
		{"cache", "session-store"},
		{"worker-pool"},
	}

	fmt.Printf("Simulating %d failures (seed %d)\n\n", count, seed)
	started := time.Now()

	ctx := context.Background()
	successes := 0
	for i := 0; i < count; i++ {
		event := healing.NewFailureEvent(
			healing.FailureType(rng.Intn(healing.NumFailureTypes())),
			rng.Float64(),
			components[rng.Intn(len(components))],
			map[string]float64{"load": rng.Float64() * 100},
		)

		summary := orchestrator.HandleFailure(ctx, event)
		if summary.Success {
			successes++
		}

		if retrainEvery > 0 && (i+1)%retrainEvery == 0 {
			orchestrator.RetrainStrategies()
			fmt.Printf("  [%4d] success rate so far: %.1f%%, exploration: %.3f\n",
				i+1,
				100*float64(successes)/float64(i+1),
				orchestrator.Agent().Epsilon(),
			)
		}
	}

	report := orchestrator.GenerateHealthReport()
	learningReport := learner.GenerateReport()

	fmt.Printf("\nFinished %s\n\n", humanize.Time(started))
	fmt.Printf("Healing\n")
	fmt.Printf("  Failures handled : %d\n", report.TotalFailuresHandled)
	fmt.Printf("  Success rate     : %.1f%%\n", 100*report.OverallSuccessRate)
	fmt.Printf("  Policy coverage  : %d/%d cells\n", report.QTableCellsVisited, report.QTableSize)
	fmt.Printf("  Exploration rate : %.3f\n", report.ExplorationRate)
	fmt.Printf("  Status           : %s\n\n", report.Status)
	fmt.Printf("Learning\n")
	fmt.Printf("  Experiences      : %s\n", humanize.Comma(int64(learningReport.TotalExperiences)))
	fmt.Printf("  Patterns         : %d (%d high confidence)\n",
		learningReport.TotalPatterns, learningReport.HighConfidencePattern)
	fmt.Printf("  Knowledge        : %d entries\n", learningReport.KnowledgeEntries)
	fmt.Printf("  Effectiveness    : %.1f%%\n", 100*learningReport.LearningEffectiveness)
	fmt.Printf("  Status           : %s\n", learningReport.Status)

	fmt.Printf("\nTop strategies\n")
	for name, perf := range orchestrator.Catalog().StrategyPerformance() {
		fmt.Printf("  %-40s %5.1f%% over %d attempts\n",
			name, 100*perf.SuccessRate, perf.Attempts)
	}
	return nil
}
