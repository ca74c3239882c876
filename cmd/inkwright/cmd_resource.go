package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"inkwright/internal/llm"
	"inkwright/internal/types"
)

var (
	resourceCategory string
	resourceLabel    string
	resourceAll      bool
)

var resourceCmd = &cobra.Command{
	Use:   "resource",
	Short: "Manage project resources (notes, sources, corpus)",
}

var resourceAddCmd = &cobra.Command{
	Use:   "add [file]",
	Short: "Add a resource from a file (or stdin with '-')",
	Long: `Adds a text resource to the project. Categories:

  notes   the author's working notes (highest context priority)
  source  factual reference material
  corpus  samples of the author's own writing
  other   anything else (lowest priority)`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireProject(); err != nil {
			return err
		}
		ctx := context.Background()

		category := types.ResourceCategory(resourceCategory)
		if !category.Valid() {
			return fmt.Errorf("invalid category %q (notes, source, corpus, other)", resourceCategory)
		}

		var text []byte
		var err error
		origin := types.OriginUpload
		if args[0] == "-" {
			text, err = io.ReadAll(os.Stdin)
		} else {
			text, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("failed to read resource: %w", err)
		}
		if len(strings.TrimSpace(string(text))) == 0 {
			return fmt.Errorf("resource is empty")
		}

		label := resourceLabel
		if label == "" && args[0] != "-" {
			label = args[0]
		}
		if label == "" {
			label = "stdin"
		}

		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		r := &types.Resource{
			ProjectID: projectID,
			Label:     label,
			Category:  category,
			Origin:    origin,
			Text:      string(text),
			Active:    true,
		}
		if err := a.store.CreateResource(ctx, r); err != nil {
			return err
		}
		fmt.Printf("Added %s resource %s (%s, %d bytes)\n", category, label, r.ID, len(text))
		return nil
	},
}

var resourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List project resources",
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

		resources, err := a.store.ListResources(ctx, projectID)
		if err != nil {
			return err
		}
		if len(resources) == 0 {
			fmt.Println("No resources.")
			return nil
		}
		for _, r := range resources {
			state := "active"
			if !r.Active {
				state = "inactive"
			}
			tokens := "-"
			if n, ok := r.TokenCache[a.cfg.LLM.Model]; ok {
				tokens = fmt.Sprintf("%d", n)
			}
			fmt.Printf("%s  %-8s  %-8s  tokens=%-8s  %s\n",
				r.ID, r.Category, state, tokens, r.Label)
		}
		return nil
	},
}

var resourceToggleCmd = &cobra.Command{
	Use:   "toggle [resource-id] [on|off]",
	Short: "Activate or deactivate a resource",
	Long: `Inactive resources are invisible to context planning. Toggling
takes effect at the next pass boundary of any running agent.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		var active bool
		switch args[1] {
		case "on":
			active = true
		case "off":
			active = false
		default:
			return fmt.Errorf("expected 'on' or 'off', got %q", args[1])
		}

		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.ToggleResource(ctx, args[0], active); err != nil {
			return err
		}
		fmt.Printf("Resource %s is now %s\n", args[0], args[1])
		return nil
	},
}

var resourceRmCmd = &cobra.Command{
	Use:   "rm [resource-id]",
	Short: "Delete a resource and its derived data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.DeleteResource(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted resource %s\n", args[0])
		return nil
	},
}

var resourceSummarizeCmd = &cobra.Command{
	Use:   "summarize [resource-id]",
	Short: "Precompute a resource summary for context fallback",
	Long: `Generates a compact summary the planner can substitute when the
full resource does not fit the context budget. Pass --all to summarize
every active resource that lacks one.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireProject(); err != nil {
			return err
		}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		a, err := openApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		var targets []types.Resource
		if resourceAll {
			resources, err := a.store.ActiveResources(ctx, projectID)
			if err != nil {
				return err
			}
			summaries, err := a.store.Summaries(ctx, projectID)
			if err != nil {
				return err
			}
			for _, r := range resources {
				if _, done := summaries[r.ID]; !done {
					targets = append(targets, r)
				}
			}
		} else {
			if len(args) != 1 {
				return fmt.Errorf("resource-id required (or --all)")
			}
			r, err := a.store.GetResource(ctx, args[0])
			if err != nil {
				return err
			}
			targets = append(targets, *r)
		}

		modelID, err := a.modelFor(ctx, projectID)
		if err != nil {
			return err
		}

		for _, r := range targets {
			result, err := a.client.Generate(ctx, llm.GenerateRequest{
				ModelID: modelID,
				SystemPrompt: fmt.Sprintf(
					"You are a precise summarizer. Produce a summary of at most %d tokens that preserves the facts, names, and structure of the text. Output only the summary.",
					a.cfg.Planner.SummaryTokenCeiling),
				UserPrompt: r.Text,
			})
			if err != nil {
				return fmt.Errorf("summarize %s: %w", r.ID, err)
			}
			if err := a.store.SetSummary(ctx, r.ID, strings.TrimSpace(result.Text)); err != nil {
				return err
			}
			fmt.Printf("Summarized %s (%s)\n", r.Label, r.ID)
		}
		return nil
	},
}

func init() {
	resourceAddCmd.Flags().StringVarP(&resourceCategory, "category", "c", "notes", "Resource category (notes, source, corpus, other)")
	resourceAddCmd.Flags().StringVarP(&resourceLabel, "label", "l", "", "Resource label (default: file name)")
	resourceSummarizeCmd.Flags().BoolVar(&resourceAll, "all", false, "Summarize all active resources without a summary")

	resourceCmd.AddCommand(resourceAddCmd)
	resourceCmd.AddCommand(resourceListCmd)
	resourceCmd.AddCommand(resourceToggleCmd)
	resourceCmd.AddCommand(resourceRmCmd)
	resourceCmd.AddCommand(resourceSummarizeCmd)
}
