package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/scopeguard/internal/app"
	"github.com/ppiankov/scopeguard/internal/model"
	"github.com/ppiankov/scopeguard/internal/scope"
)

var (
	projectID           string
	projectName         string
	projectDescription  string
	projectDeliverables []string
)

func init() {
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectAddCmd)
	projectCmd.AddCommand(projectShowCmd)
	projectCmd.AddCommand(projectListCmd)

	projectAddCmd.Flags().StringVar(&projectID, "id", "", "Project ID (required)")
	projectAddCmd.Flags().StringVar(&projectName, "name", "", "Project name (required)")
	projectAddCmd.Flags().StringVar(&projectDescription, "description", "", "Scope description from the contract")
	projectAddCmd.Flags().StringArrayVar(&projectDeliverables, "deliverable", nil, "Contracted deliverable (repeatable)")
	_ = projectAddCmd.MarkFlagRequired("id")
	_ = projectAddCmd.MarkFlagRequired("name")
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage the projects scope is checked against",
}

var projectAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create or replace a project",
	Args:  cobra.NoArgs,
	RunE:  runProjectAdd,
}

var projectShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a project and the scope contract built from it",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectShow,
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	Args:  cobra.NoArgs,
	RunE:  runProjectList,
}

func openCatalog() (*app.Catalog, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	return app.OpenCatalog(cfg, logger)
}

func runProjectAdd(cmd *cobra.Command, args []string) error {
	c, err := openCatalog()
	if err != nil {
		return err
	}
	defer c.Close()

	saved, err := c.Put(cmd.Context(), model.Project{
		ID:           strings.TrimSpace(projectID),
		Name:         strings.TrimSpace(projectName),
		Description:  projectDescription,
		Deliverables: projectDeliverables,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "saved project %s (%s)\n", saved.ID, saved.Name)
	return nil
}

func runProjectShow(cmd *cobra.Command, args []string) error {
	c, err := openCatalog()
	if err != nil {
		return err
	}
	defer c.Close()

	b := scope.NewBuilder(c, cfg.ExtensionSet())
	sc, err := b.Build(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	p, err := c.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, string(out))
	fmt.Fprintf(w, "\nScope contract (%s):\n\n%s\n", scope.Fingerprint(sc), sc.ScopeDescription)
	return nil
}

func runProjectList(cmd *cobra.Command, args []string) error {
	c, err := openCatalog()
	if err != nil {
		return err
	}
	defer c.Close()

	list, err := c.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no projects")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDELIVERABLES\tUPDATED")
	for _, p := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", p.ID, p.Name, len(p.Deliverables), p.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}
