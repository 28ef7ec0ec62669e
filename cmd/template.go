package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zjrosen/followup/internal/message"
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Manage message templates",
	Long: `Manage message templates. Bodies may reference contact fields with
{{placeholders}}: first_name, last_name, full_name, email, phone, and any
custom field name. Unresolved placeholders render literally.`,
}

var (
	templateAddName     string
	templateAddChannel  string
	templateAddSubject  string
	templateAddBody     string
	templateAddBodyFile string
)

var templateAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a message template",
	Long: `Add a message template.

Example:
  followup template add --name welcome-sms --channel sms \
    --body "Hi {{first_name}}, thanks for reaching out!"`,
	RunE: runTemplateAdd,
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List templates",
	RunE:  runTemplateList,
}

func init() {
	rootCmd.AddCommand(templateCmd)
	templateCmd.AddCommand(templateAddCmd)
	templateCmd.AddCommand(templateListCmd)

	templateAddCmd.Flags().StringVar(&templateAddName, "name", "", "unique template name")
	templateAddCmd.Flags().StringVar(&templateAddChannel, "channel", "", "delivery channel: sms or email")
	templateAddCmd.Flags().StringVar(&templateAddSubject, "subject", "", "subject line (email only)")
	templateAddCmd.Flags().StringVar(&templateAddBody, "body", "", "template body")
	templateAddCmd.Flags().StringVar(&templateAddBodyFile, "body-file", "", "read template body from a file")
	_ = templateAddCmd.MarkFlagRequired("name")
	_ = templateAddCmd.MarkFlagRequired("channel")
}

func runTemplateAdd(cmd *cobra.Command, _ []string) error {
	var channel message.Channel
	switch templateAddChannel {
	case "sms":
		channel = message.ChannelSMS
	case "email":
		channel = message.ChannelEmail
	default:
		return fmt.Errorf("channel must be \"sms\" or \"email\", got %q", templateAddChannel)
	}

	body := templateAddBody
	if templateAddBodyFile != "" {
		data, err := os.ReadFile(templateAddBodyFile)
		if err != nil {
			return fmt.Errorf("reading body file: %w", err)
		}
		body = string(data)
	}
	if body == "" {
		return fmt.Errorf("template body is required; pass --body or --body-file")
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	t := message.NewTemplate(templateAddName, channel, templateAddSubject, body)
	if err := store.Templates().Create(cmd.Context(), t); err != nil {
		return err
	}
	fmt.Printf("Added %s template %q (%s)\n", channel, t.Name, t.ID)
	return nil
}

func runTemplateList(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	templates, err := store.Templates().List(cmd.Context())
	if err != nil {
		return err
	}
	if len(templates) == 0 {
		fmt.Println("No templates. Add one with: followup template add")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCHANNEL\tSUBJECT")
	for _, t := range templates {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Name, t.Channel, t.Subject)
	}
	return tw.Flush()
}
