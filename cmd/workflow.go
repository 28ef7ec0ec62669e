package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zjrosen/followup/internal/workflow"
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Manage workflow definitions",
}

var (
	workflowImportFile   string
	workflowValidateFile string
)

var workflowImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a workflow from a YAML definition",
	Long: `Parse and validate a YAML workflow definition, then save it. The whole
graph is written atomically; re-importing a definition that carries an id
replaces that workflow's nodes and edges.

Example:
  followup workflow import -f onboarding.yaml`,
	RunE: runWorkflowImport,
}

var workflowExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Print a workflow as a YAML definition",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowExport,
}

var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workflows",
	RunE:  runWorkflowList,
}

var workflowValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a YAML definition without saving it",
	RunE:  runWorkflowValidate,
}

var workflowEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setWorkflowEnabled(cmd.Context(), args[0], true)
	},
}

var workflowDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a workflow",
	Long: `Disable a workflow. Executions already claimed finish their current
batch; everything else in the workflow stops until it is re-enabled.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setWorkflowEnabled(cmd.Context(), args[0], false)
	},
}

func init() {
	rootCmd.AddCommand(workflowCmd)
	workflowCmd.AddCommand(workflowImportCmd)
	workflowCmd.AddCommand(workflowExportCmd)
	workflowCmd.AddCommand(workflowListCmd)
	workflowCmd.AddCommand(workflowValidateCmd)
	workflowCmd.AddCommand(workflowEnableCmd)
	workflowCmd.AddCommand(workflowDisableCmd)

	workflowImportCmd.Flags().StringVarP(&workflowImportFile, "file", "f", "", "YAML definition file")
	_ = workflowImportCmd.MarkFlagRequired("file")
	workflowValidateCmd.Flags().StringVarP(&workflowValidateFile, "file", "f", "", "YAML definition file")
	_ = workflowValidateCmd.MarkFlagRequired("file")
}

func runWorkflowImport(cmd *cobra.Command, _ []string) error {
	data, err := os.ReadFile(workflowImportFile)
	if err != nil {
		return fmt.Errorf("reading definition: %w", err)
	}
	w, err := workflow.DecodeDefinition(data)
	if err != nil {
		return err
	}
	if err := w.Validate(); err != nil {
		return fmt.Errorf("invalid workflow: %w", err)
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Workflows().Save(cmd.Context(), w); err != nil {
		return fmt.Errorf("saving workflow: %w", err)
	}
	fmt.Printf("Imported workflow %q (%s): %d nodes, %d edges\n",
		w.Name, w.ID, len(w.Nodes), len(w.Edges))
	return nil
}

func runWorkflowExport(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	w, err := store.Workflows().Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	data, err := workflow.EncodeDefinition(w)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runWorkflowList(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	workflows, err := store.Workflows().List(cmd.Context(), workflow.ListFilter{})
	if err != nil {
		return err
	}
	if len(workflows) == 0 {
		fmt.Println("No workflows. Import one with: followup workflow import -f <file.yaml>")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tENABLED\tTRIGGER\tNODES")
	for _, w := range workflows {
		trigger := "-"
		if t := w.TriggerStart(); t != nil {
			trigger = string(w.TriggerConfig().EffectiveType())
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%d\n",
			w.ID, w.Name, w.Enabled, trigger, len(w.Nodes))
	}
	return tw.Flush()
}

func runWorkflowValidate(_ *cobra.Command, _ []string) error {
	data, err := os.ReadFile(workflowValidateFile)
	if err != nil {
		return fmt.Errorf("reading definition: %w", err)
	}
	w, err := workflow.DecodeDefinition(data)
	if err != nil {
		return err
	}
	if err := w.Validate(); err != nil {
		return fmt.Errorf("invalid workflow: %w", err)
	}
	fmt.Printf("Valid: %q has %d nodes and %d edges\n", w.Name, len(w.Nodes), len(w.Edges))
	return nil
}

func setWorkflowEnabled(ctx context.Context, id string, enabled bool) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Workflows().SetEnabled(ctx, id, enabled); err != nil {
		return err
	}
	if enabled {
		fmt.Printf("Workflow %s enabled\n", id)
	} else {
		fmt.Printf("Workflow %s disabled\n", id)
	}
	return nil
}
