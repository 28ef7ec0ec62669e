package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/followup/internal/engine/scheduler"
)

var (
	enrollWorkflowID string
	enrollContactID  string
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Enroll a contact in a workflow",
	Long: `Manually enroll a contact in a workflow. The execution starts at the
trigger node and is due immediately; a running daemon picks it up on its
next tick, or run "followup tick" to process it now.

Example:
  followup enroll -w <workflow-id> -c <contact-id>`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().StringVarP(&enrollWorkflowID, "workflow", "w", "", "workflow id")
	enrollCmd.Flags().StringVarP(&enrollContactID, "contact", "c", "", "contact id")
	_ = enrollCmd.MarkFlagRequired("workflow")
	_ = enrollCmd.MarkFlagRequired("contact")
}

func runEnroll(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	enroller := scheduler.NewEnroller(scheduler.EnrollerDeps{
		Workflows:   store.Workflows(),
		Enrollments: store.Enrollments(),
		Executions:  store.Executions(),
	}, cfg.Engine.MaxAttempts)

	enr, created, err := enroller.Enroll(cmd.Context(), enrollWorkflowID, enrollContactID, scheduler.EnrollOptions{})
	if err != nil {
		return err
	}
	if !created {
		fmt.Printf("Contact %s is already enrolled (enrollment %s)\n", enrollContactID, enr.ID)
		return nil
	}
	fmt.Printf("Enrolled contact %s in workflow %s (enrollment %s)\n",
		enrollContactID, enrollWorkflowID, enr.ID)
	return nil
}
