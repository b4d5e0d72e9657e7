package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/orangehq/orange-agent/api/schemas"
	"github.com/orangehq/orange-agent/internal/executor"
	"github.com/orangehq/orange-agent/internal/planner"
	"github.com/orangehq/orange-agent/internal/safety"
	"github.com/orangehq/orange-agent/internal/session"
	"github.com/orangehq/orange-agent/internal/sidecar"
	"github.com/orangehq/orange-agent/pkg/observability"
)

var (
	runAppName     string
	runAppBundleID string
	runNoSidecar   bool
	runAutoApprove bool
)

var runCmd = &cobra.Command{
	Use:   "run <transcript>",
	Short: "Execute one voice-command transcript end to end",
	Long: `Plans the transcript against the local planning service, simulates it,
reviews it for risky actions, asks for confirmation when required, and then
performs the confirmed actions against the live desktop.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTranscript,
}

func init() {
	runCmd.Flags().StringVar(&runAppName, "app-name", "", "frontmost application name to pass to the planner")
	runCmd.Flags().StringVar(&runAppBundleID, "app-bundle-id", "", "frontmost application bundle id to pass to the planner")
	runCmd.Flags().BoolVar(&runNoSidecar, "no-sidecar", false, "use an already-running planning service instead of launching one")
	runCmd.Flags().BoolVar(&runAutoApprove, "yes", false, "approve all confirmation prompts without asking")
	rootCmd.AddCommand(runCmd)
}

func runTranscript(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()
	ctx := cmd.Context()
	transcript := strings.Join(args, " ")

	if !runNoSidecar {
		supervisor := sidecar.NewSupervisor(appConfig.Sidecar, logger)
		supervisor.StartIfNeeded()
		defer supervisor.Stop()
		if err := awaitSidecar(ctx, supervisor, appConfig.Sidecar.HealthTimeout); err != nil {
			return err
		}
	}

	client := planner.NewHTTPClient(appConfig.Planner, logger)
	policy := safety.NewDefaultPolicy(logger, safety.NewViperPreferences(viper.GetViper()))
	engine := executor.NewActionExecutor(logger)
	gate := &terminalGate{
		in:          cmd.InOrStdin(),
		out:         cmd.OutOrStdout(),
		autoApprove: runAutoApprove,
	}
	orchestrator := session.NewOrchestrator(client, policy, engine, gate, logger)

	var app *schemas.AppMetadata
	if runAppName != "" || runAppBundleID != "" {
		app = &schemas.AppMetadata{Name: runAppName, BundleID: runAppBundleID}
	}

	sess, err := orchestrator.RunWithEvents(ctx, transcript, app, func(event schemas.PlannerStreamEvent) {
		if event.Progress != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "[%3d%%] %s\n", *event.Progress, event.Message)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "[  ..] %s\n", event.Message)
		}
	})
	if err != nil {
		return err
	}
	return printOutcome(cmd.OutOrStdout(), sess)
}

// awaitSidecar blocks until the supervisor reports a healthy process, with
// some slack past the supervisor's own health budget to cover restarts.
func awaitSidecar(ctx context.Context, supervisor *sidecar.Supervisor, budget time.Duration) error {
	deadline := time.Now().Add(budget * time.Duration(supervisor.RestartAttempts()+2))
	for time.Now().Before(deadline) {
		switch {
		case supervisor.State() == sidecar.StateHealthy:
			return nil
		case supervisor.Unavailable():
			return fmt.Errorf("planning service unavailable: restart limit reached")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return fmt.Errorf("planning service did not become healthy within %s", budget)
}

func printOutcome(out io.Writer, sess *session.Session) error {
	result := sess.Execution
	if result == nil {
		return fmt.Errorf("session ended without execution")
	}

	if result.Status != schemas.ExecutionSuccess {
		fmt.Fprintf(out, "Execution failed at %s: %s\n", result.FailedActionID, result.Reason)
		if result.RecoverySuggestion != "" {
			fmt.Fprintf(out, "Suggestion: %s\n", result.RecoverySuggestion)
		}
	} else {
		fmt.Fprintf(out, "Completed %d action(s).\n", len(result.CompletedActions))
	}

	if sess.Verification != nil {
		fmt.Fprintf(out, "Verification: %s (confidence %.2f)\n",
			sess.Verification.Status, sess.Verification.Confidence)
		for _, corrective := range sess.Verification.CorrectiveActions {
			// Advisory only; corrective actions are never auto-executed.
			fmt.Fprintf(out, "Suggested follow-up: %s %s\n", corrective.Kind, corrective.Target)
		}
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(encoded))
	return nil
}

// terminalGate implements the confirmation gate on stdin/stdout for the CLI.
type terminalGate struct {
	in          io.Reader
	out         io.Writer
	autoApprove bool
}

var _ session.ConfirmationGate = (*terminalGate)(nil)

func (g *terminalGate) Confirm(ctx context.Context, plan schemas.ActionPlan, prompts []schemas.SafetyPrompt) (bool, error) {
	fmt.Fprintf(g.out, "Plan: %s (%d action(s), risk=%s)\n", plan.Summary, len(plan.Actions), plan.RiskLevel)
	for _, prompt := range prompts {
		fmt.Fprintf(g.out, "  [%s] %s: %s\n", prompt.Category, prompt.Title, prompt.Message)
	}
	if g.autoApprove {
		fmt.Fprintln(g.out, "Auto-approved (--yes).")
		return true, nil
	}

	fmt.Fprint(g.out, "Proceed? [y/N]: ")
	answers := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(g.in)
		if scanner.Scan() {
			answers <- scanner.Text()
			return
		}
		answers <- ""
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case answer := <-answers:
		answer = strings.ToLower(strings.TrimSpace(answer))
		return answer == "y" || answer == "yes", nil
	}
}
