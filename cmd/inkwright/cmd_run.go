package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"inkwright/internal/agent"
	"inkwright/internal/types"
)

var runCmd = &cobra.Command{
	Use:   "run [agent] [instruction...]",
	Short: "Execute an agent pipeline against the project artefact",
	Long: `Runs one agent pipeline to completion. The agent plans its context
against the model's token budget, executes its passes, and commits the
result as a new artefact version.

Agents: writer, style_editor, detail_editor, fact_checker

Example:
  inkwright run writer -p <project> "cover the 1970s expedition in detail"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireProject(); err != nil {
			return err
		}

		agentType := types.AgentType(args[0])
		if !agentType.Valid() {
			return fmt.Errorf("unknown agent %q (writer, style_editor, detail_editor, fact_checker)", args[0])
		}
		instruction := strings.Join(args[1:], " ")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// First signal cancels the run cooperatively; the run is marked
		// cancelled at the next pass boundary.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			fmt.Fprintln(os.Stderr, "cancelling at next pass boundary...")
			cancel()
		}()

		a, err := openApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		project, err := a.store.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		artefact, err := a.store.EnsureArtefact(ctx, projectID, project.Name)
		if err != nil {
			return err
		}
		modelID, err := a.modelFor(ctx, projectID)
		if err != nil {
			return err
		}

		logger.Info("starting agent",
			zap.String("agent", string(agentType)),
			zap.String("artefact", artefact.ID),
			zap.String("model", modelID))
		fmt.Printf("Running %s (%s)...\n", agentType, agent.Describe(agentType))

		run, err := a.orch.Run(ctx, projectID, artefact.ID, agentType, instruction, modelID)
		if err != nil {
			var conflict *types.ConflictError
			if errors.As(err, &conflict) {
				return fmt.Errorf("artefact is busy: run %s is still active", conflict.ActiveRun)
			}
			if run != nil && run.Status == types.RunCancelled {
				fmt.Printf("Run %s cancelled after %d iterations; artefact unchanged.\n", run.ID, run.IterationCount)
				return nil
			}
			return err
		}

		fmt.Printf("Run %s completed in %d iterations.\n", run.ID, run.IterationCount)
		fmt.Printf("Inspect the trail with 'inkwright logs %s'\n", run.ID)
		return nil
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List agent runs for a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireProject(); err != nil {
			return err
		}
		ctx := context.Background()

		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.store.ListRuns(ctx, projectID)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs.")
			return nil
		}
		for _, r := range runs {
			fmt.Printf("%s  %-13s  %-9s  iterations=%-3d  started=%s\n",
				r.ID, r.AgentType, r.Status, r.IterationCount,
				r.StartedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs [run-id]",
	Short: "Show the full prompt/response trail of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		run, err := a.store.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		entries, err := a.store.RunLogs(ctx, run.ID)
		if err != nil {
			return err
		}

		fmt.Printf("Run %s  agent=%s  status=%s  iterations=%d\n\n",
			run.ID, run.AgentType, run.Status, run.IterationCount)
		for _, e := range entries {
			tokens := ""
			if e.TokensUsed != nil {
				tokens = fmt.Sprintf("  tokens=%d", *e.TokensUsed)
			}
			fmt.Printf("--- iteration %d  [%s]%s\n%s\n\n", e.IterationIndex, e.Role, tokens, e.Content)
		}
		return nil
	},
}
