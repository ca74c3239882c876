package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List artefact versions",
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

		project, err := a.store.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		artefact, err := a.store.EnsureArtefact(ctx, projectID, project.Name)
		if err != nil {
			return err
		}
		versions, err := a.store.ListVersions(ctx, artefact.ID)
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			fmt.Println("No versions yet. Run the writer agent to create the first draft.")
			return nil
		}
		for _, v := range versions {
			marker := " "
			if v.ID == artefact.CurrentVersionID {
				marker = "*"
			}
			fmt.Printf("%s %s  %-13s  %s  %s\n",
				marker, v.ID, v.CreatedBy, v.CreatedAt.Format("2006-01-02 15:04:05"), v.PromptSummary)
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show [version-id]",
	Short: "Print artefact content (current version by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 1 {
			version, err := a.store.GetVersion(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Println(version.Content)
			return nil
		}

		if err := requireProject(); err != nil {
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
		if content == "" {
			fmt.Println("(artefact is empty)")
			return nil
		}
		fmt.Println(content)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore [version-id]",
	Short: "Restore a previous version as a new current version",
	Long: `Restoring never rewrites history: the restored content is committed
as a new user-authored version, so the trail stays intact.`,
	Args: cobra.ExactArgs(1),
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

		project, err := a.store.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		artefact, err := a.store.EnsureArtefact(ctx, projectID, project.Name)
		if err != nil {
			return err
		}
		version, err := a.store.RestoreVersion(ctx, artefact.ID, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Restored %s as new version %s\n", args[0], version.ID)
		return nil
	},
}
