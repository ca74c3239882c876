package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"inkwright/internal/catalog"
)

var (
	projectModel string
	projectTitle string
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage writing projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a project and its artefact",
	Long: `Creates a project with one artefact. The artefact starts empty;
the writer agent produces its first version.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		modelID := projectModel
		if modelID == "" {
			modelID = catalog.DefaultModelID
		}
		if _, err := catalog.Lookup(modelID); err != nil {
			return err
		}

		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		project, err := a.store.CreateProject(ctx, args[0], modelID)
		if err != nil {
			return err
		}

		title := projectTitle
		if title == "" {
			title = args[0]
		}
		artefact, err := a.store.EnsureArtefact(ctx, project.ID, title)
		if err != nil {
			return err
		}

		fmt.Printf("Created project %s (%s)\n", project.Name, project.ID)
		fmt.Printf("Artefact: %s (%s)\n", artefact.Title, artefact.ID)
		fmt.Printf("Default model: %s\n", project.DefaultModelID)
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		projects, err := a.store.ListProjects(ctx)
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			fmt.Println("No projects. Create one with 'inkwright project create <name>'.")
			return nil
		}
		for _, p := range projects {
			fmt.Printf("%s  %-24s  model=%s  created=%s\n",
				p.ID, p.Name, p.DefaultModelID, p.CreatedAt.Format("2006-01-02"))
		}
		return nil
	},
}

func init() {
	projectCreateCmd.Flags().StringVar(&projectModel, "default-model", "", "Default model for the project")
	projectCreateCmd.Flags().StringVar(&projectTitle, "title", "", "Artefact title (default: project name)")
	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectListCmd)
}
