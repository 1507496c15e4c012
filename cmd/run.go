package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/craftlabs/forma/internal/models"
	"github.com/craftlabs/forma/internal/output"
	"github.com/craftlabs/forma/internal/progress"
	"github.com/craftlabs/forma/internal/timers"
	"github.com/craftlabs/forma/internal/workflow"
)

var (
	runInput    string
	runCategory string
	runBrief    string
	runPick     int
	runCost     float64
	runNoSave   bool
	runTimeout  time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full formulation workflow",
	Long: `Run the formulation workflow end to end: analyze the input
product, generate candidate directions, pick one, and synthesize a
complete formulation. The result is saved to history.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRun(cmd.Context())
	},
}

func init() {
	runCmd.Flags().StringVarP(&runInput, "input", "i", "", "Product input reference (image path or upload ID)")
	runCmd.Flags().StringVarP(&runCategory, "category", "c", "", "Product category, e.g. skincare, haircare")
	runCmd.Flags().StringVarP(&runBrief, "brief", "b", "", "Extra direction appended to the selected suggestion")
	runCmd.Flags().IntVarP(&runPick, "pick", "p", 1, "Which suggestion to formulate (1-based)")
	runCmd.Flags().Float64Var(&runCost, "cost", 0, "Target unit cost")
	runCmd.Flags().BoolVar(&runNoSave, "no-save", false, "Do not save the result to history")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 5*time.Minute, "Overall workflow timeout")
	_ = runCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(runCmd)
}

// orchestratorConfig builds workflow tunables from viper.
func orchestratorConfig() workflow.Config {
	cfg := workflow.DefaultConfig()
	cfg.RampStep = viper.GetInt("progress.ramp_step")
	cfg.RampInterval = time.Duration(viper.GetInt("progress.ramp_interval_ms")) * time.Millisecond
	cfg.FinishReset = time.Duration(viper.GetInt("progress.finish_reset_ms")) * time.Millisecond
	cfg.ErrorClearDelay = time.Duration(viper.GetInt("workflow.error_clear_ms")) * time.Millisecond
	cfg.CostTarget = runCost

	if path := viper.GetString("progress.phases_file"); path != "" {
		scripts, err := progress.LoadScripts(path)
		if err != nil {
			ui.Warning("phases file %s: %v (using defaults)", path, err)
		} else {
			cfg.Scripts = scripts
		}
	}
	return cfg
}

func runRun(ctx context.Context) error {
	runner, err := newRunner(func(u models.StatusUpdate) {
		if verbose {
			ui.Status(u)
		}
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	changes := make(chan workflow.Snapshot, 64)
	results := make(chan *models.Formulation, 1)
	errs := make(chan string, 8)

	orch := workflow.NewOrchestrator(timers.SystemClock{}, runner, orchestratorConfig(), workflow.Callbacks{
		OnChange: func(s workflow.Snapshot) {
			select {
			case changes <- s:
			default:
			}
		},
		OnProgress: func(v int) {
			if verbose && v > 0 {
				ui.VerboseLog("%s", output.ProgressBar(v, 20))
			}
		},
		OnPhase: func(label string) {
			ui.Info("%s", label)
		},
		OnResult: func(f *models.Formulation) {
			results <- f
		},
		OnError: func(msg string) {
			errs <- msg
		},
	})

	orch.SelectInput(runInput, "")
	if runCategory != "" {
		orch.SetCategory(runCategory)
	}

	// Stage 1: analysis
	ui.Info("Analyzing %s", runInput)
	orch.Analyze(ctx)
	snap, err := waitStage(ctx, changes, errs, workflow.StageAnalysis)
	if err != nil {
		return err
	}
	printAnalysis(snap.Analysis)

	// Stage 2: suggestions
	ui.Info("Generating suggestions")
	orch.GenerateSuggestions(ctx)
	snap, err = waitStage(ctx, changes, errs, workflow.StageSuggestions)
	if err != nil {
		return err
	}
	printSuggestions(snap.Suggestions)

	if runPick < 1 || runPick > len(snap.Suggestions) {
		return fmt.Errorf("--pick %d out of range: %d suggestions available", runPick, len(snap.Suggestions))
	}

	// Stage 3: selection and synthesis
	orch.SelectSuggestion(runPick - 1)
	if runBrief != "" {
		sel := snap.Suggestions[runPick-1]
		orch.SetPrompt(sel.Text + "\n\n" + runBrief)
	}

	ui.Info("Synthesizing formulation")
	orch.Synthesize(ctx)

	var formulation *models.Formulation
	select {
	case formulation = <-results:
	case msg := <-errs:
		return fmt.Errorf("synthesis failed: %s", msg)
	case <-ctx.Done():
		orch.Reset()
		return fmt.Errorf("workflow timed out: %w", ctx.Err())
	}

	fmt.Fprintln(ui.Out)
	fmt.Fprintln(ui.Out, formulation.Body)
	fmt.Fprintln(ui.Out)

	if runNoSave {
		return nil
	}
	if dryRun {
		ui.DryRunMsg("Would save formulation to history")
		return nil
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	if err := s.CreateFormulation(ctx, formulation); err != nil {
		return fmt.Errorf("save formulation: %w", err)
	}
	ui.Success("Saved formulation %s", formulation.ID)
	return nil
}

// waitStage blocks until the orchestrator reaches the wanted stage with
// no operation in flight, or an operation fails.
func waitStage(ctx context.Context, changes <-chan workflow.Snapshot, errs <-chan string, want workflow.Stage) (workflow.Snapshot, error) {
	for {
		select {
		case snap := <-changes:
			if snap.Stage == want && !snap.InFlight {
				return snap, nil
			}
		case msg := <-errs:
			return workflow.Snapshot{}, fmt.Errorf("operation failed: %s", msg)
		case <-ctx.Done():
			return workflow.Snapshot{}, fmt.Errorf("workflow timed out: %w", ctx.Err())
		}
	}
}

func printAnalysis(a *models.AnalysisResult) {
	if a == nil {
		return
	}
	ui.Success("Analysis complete")
	fmt.Fprintf(ui.Out, "  %s\n", a.Summary)
	if len(a.Ingredients) > 0 {
		fmt.Fprintf(ui.Out, "  Ingredients: %s\n", strings.Join(a.Ingredients, ", "))
	}
	if len(a.Attributes) > 0 {
		fmt.Fprintf(ui.Out, "  Attributes:  %s\n", strings.Join(a.Attributes, ", "))
	}
}

func printSuggestions(suggestions []models.Suggestion) {
	ui.Success("%d suggestions", len(suggestions))
	table := ui.Table([]string{"#", "Title", "Direction"})
	for i, s := range suggestions {
		table.Append([]string{fmt.Sprintf("%d", i+1), s.Title, s.Text})
	}
	_ = table.Render()
}
