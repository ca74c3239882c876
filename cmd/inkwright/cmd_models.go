package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"inkwright/internal/catalog"
	"inkwright/internal/planner"
	"inkwright/internal/types"
)

var planAgentFlag string

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List supported models and their context windows",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, m := range catalog.List() {
			def := ""
			if m.ID == catalog.DefaultModelID {
				def = "  (default)"
			}
			fmt.Printf("%-24s  input=%-9d  output=%-6d  %s%s\n",
				m.ID, m.MaxInputTokens, m.MaxOutputTokens, m.DisplayName, def)
		}
		return nil
	},
}

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Show the context budget and token usage for a project",
	Long: `Shows how the model's context window is spent: the output
reservation, the fixed prompt overhead, the artefact, and the token
total of each resource category. Counts are estimates unless resources
were already counted against the backend tokenizer.`,
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

		modelID, err := a.modelFor(ctx, projectID)
		if err != nil {
			return err
		}
		profile, err := catalog.Lookup(modelID)
		if err != nil {
			return err
		}

		project, err := a.store.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		artefact, err := a.store.EnsureArtefact(ctx, projectID, project.Name)
		if err != nil {
			return err
		}
		content, err := a.store.CurrentContent(ctx, artefact.ID)
		if err != nil {
			return err
		}
		artefactTokens := 0
		if content != "" {
			artefactTokens, err = a.tokens.Count(ctx, content, modelID)
			if err != nil {
				return err
			}
		}

		budget := profile.MaxInputTokens - profile.MaxOutputTokens - a.cfg.Planner.ReservedOverhead

		fmt.Printf("Model: %s (%s)\n", profile.ID, profile.DisplayName)
		fmt.Printf("  context window     %d\n", profile.MaxInputTokens)
		fmt.Printf("  output reservation %d\n", profile.MaxOutputTokens)
		fmt.Printf("  prompt overhead    %d\n", a.cfg.Planner.ReservedOverhead)
		fmt.Printf("  planning budget    %d\n", budget)
		fmt.Printf("  artefact           %d\n\n", artefactTokens)

		resources, err := a.store.ActiveResources(ctx, projectID)
		if err != nil {
			return err
		}
		totals := map[types.ResourceCategory]int{}
		for _, r := range resources {
			n, err := a.tokens.CountResource(ctx, r.ID, r.Text, modelID)
			if err != nil {
				return err
			}
			totals[r.Category] += n
		}
		for _, c := range []types.ResourceCategory{
			types.CategoryNotes, types.CategorySource, types.CategoryCorpus, types.CategoryOther,
		} {
			fmt.Printf("  %-8s %d tokens\n", c, totals[c])
		}

		remaining := budget - artefactTokens
		if remaining < 0 {
			fmt.Printf("\nWARNING: artefact alone exceeds the budget by %d tokens; agent runs will fail.\n", -remaining)
		} else {
			fmt.Printf("\nRemaining for resources: %d tokens\n", remaining)
		}
		return nil
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Dry-run the context planner and show what would be included",
	Long: `Plans a context for the project's current draft without calling
the model. Shows each resource's inclusion mode (full, summary, chunked
prefix) or the reason it was excluded.`,
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

		modelID, err := a.modelFor(ctx, projectID)
		if err != nil {
			return err
		}
		project, err := a.store.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		artefact, err := a.store.EnsureArtefact(ctx, projectID, project.Name)
		if err != nil {
			return err
		}
		content, err := a.store.CurrentContent(ctx, artefact.ID)
		if err != nil {
			return err
		}
		resources, err := a.store.ActiveResources(ctx, projectID)
		if err != nil {
			return err
		}
		summaries, err := a.store.Summaries(ctx, projectID)
		if err != nil {
			return err
		}

		var categories []types.ResourceCategory
		if planAgentFlag == string(types.AgentFactChecker) {
			categories = []types.ResourceCategory{types.CategorySource}
		}

		plan, err := a.planner.Plan(ctx, planner.Request{
			ModelID:         modelID,
			ArtefactContent: content,
			Resources:       resources,
			Summaries:       summaries,
			Categories:      categories,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Model %s  budget=%d  artefact=%d  included=%d  remaining=%d\n\n",
			plan.ModelID, plan.Budget, plan.ArtefactTokens, plan.IncludedTokens, plan.Remaining())
		for _, inc := range plan.Inclusions {
			fmt.Printf("  + %-8s %-9s %6d tokens  %s\n", inc.Category, inc.Mode, inc.Tokens, inc.Label)
		}
		for _, exc := range plan.Exclusions {
			fmt.Printf("  - excluded (%s)  %s\n", exc.Reason, exc.Label)
		}
		return nil
	},
}

func init() {
	planCmd.Flags().StringVar(&planAgentFlag, "agent", "", "Plan as a specific agent would (fact_checker restricts to sources)")
}
