package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zjrosen/followup/internal/contact"
	"github.com/zjrosen/followup/internal/infrastructure"
	"github.com/zjrosen/followup/internal/message"
)

var contactCmd = &cobra.Command{
	Use:   "contact",
	Short: "Manage contacts",
	Long: `Manage contacts. Mutations made here record contact events, so a
running daemon picks them up and starts any matching workflows.`,
}

var (
	contactAddFirst string
	contactAddLast  string
	contactAddEmail string
	contactAddPhone string
	contactAddTags  []string

	contactListStatus string
	contactListTag    string

	contactReplyChannel string
	contactReplyBody    string
)

var contactAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a contact",
	RunE:  runContactAdd,
}

var contactTagCmd = &cobra.Command{
	Use:   "tag <id> <tag>",
	Short: "Apply a tag to a contact",
	Args:  cobra.ExactArgs(2),
	RunE:  runContactTag,
}

var contactSetStatusCmd = &cobra.Command{
	Use:   "set-status <id> <status>",
	Short: "Set a contact's lifecycle status",
	Long: `Set a contact's lifecycle status. Valid statuses: new, contacted,
responded, qualified, disqualified.`,
	Args: cobra.ExactArgs(2),
	RunE: runContactSetStatus,
}

var contactSetFieldCmd = &cobra.Command{
	Use:   "set-field <id> <name> <value>",
	Short: "Set a custom field on a contact",
	Args:  cobra.ExactArgs(3),
	RunE:  runContactSetField,
}

var contactListCmd = &cobra.Command{
	Use:   "list",
	Short: "List contacts",
	RunE:  runContactList,
}

var contactReplyCmd = &cobra.Command{
	Use:   "reply <id>",
	Short: "Record an inbound reply from a contact",
	Long: `Record an inbound message, marking the contact as replied. Stands in
for the webhook ingester during testing: stop-on-reply gates see the
message on their next check.`,
	Args: cobra.ExactArgs(1),
	RunE: runContactReply,
}

func init() {
	rootCmd.AddCommand(contactCmd)
	contactCmd.AddCommand(contactAddCmd)
	contactCmd.AddCommand(contactTagCmd)
	contactCmd.AddCommand(contactSetStatusCmd)
	contactCmd.AddCommand(contactSetFieldCmd)
	contactCmd.AddCommand(contactListCmd)
	contactCmd.AddCommand(contactReplyCmd)

	contactAddCmd.Flags().StringVar(&contactAddFirst, "first", "", "first name")
	contactAddCmd.Flags().StringVar(&contactAddLast, "last", "", "last name")
	contactAddCmd.Flags().StringVar(&contactAddEmail, "email", "", "email address")
	contactAddCmd.Flags().StringVar(&contactAddPhone, "phone", "", "phone number (E.164)")
	contactAddCmd.Flags().StringSliceVar(&contactAddTags, "tag", nil, "tag to apply (repeatable)")
	_ = contactAddCmd.MarkFlagRequired("first")

	contactListCmd.Flags().StringVar(&contactListStatus, "status", "", "filter by status")
	contactListCmd.Flags().StringVar(&contactListTag, "tag", "", "filter by tag")

	contactReplyCmd.Flags().StringVar(&contactReplyChannel, "channel", "sms", "reply channel: sms or email")
	contactReplyCmd.Flags().StringVar(&contactReplyBody, "body", "", "message body")
}

// contactService opens the store and wraps its contact repositories in
// the event-recording service.
func contactService() (*contact.Service, infrastructure.Store, error) {
	store, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	return contact.NewService(store.Contacts(), store.ContactEvents()), store, nil
}

func runContactAdd(cmd *cobra.Command, _ []string) error {
	svc, store, err := contactService()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	defer svc.Close()

	c := contact.New(contactAddFirst, contactAddLast)
	c.Email = contactAddEmail
	c.Phone = contactAddPhone
	c.Tags = contactAddTags

	if err := svc.Create(cmd.Context(), c); err != nil {
		return err
	}
	fmt.Printf("Added contact %s (%s)\n", c.FullName(), c.ID)
	return nil
}

func runContactTag(cmd *cobra.Command, args []string) error {
	svc, store, err := contactService()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	defer svc.Close()

	if err := svc.AddTag(cmd.Context(), args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("Tagged %s with %q\n", args[0], args[1])
	return nil
}

func runContactSetStatus(cmd *cobra.Command, args []string) error {
	svc, store, err := contactService()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	defer svc.Close()

	status := contact.Status(strings.ToLower(args[1]))
	if err := svc.SetStatus(cmd.Context(), args[0], status); err != nil {
		return err
	}
	fmt.Printf("Set %s to %s\n", args[0], status)
	return nil
}

func runContactSetField(cmd *cobra.Command, args []string) error {
	svc, store, err := contactService()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	defer svc.Close()

	if err := svc.SetCustomField(cmd.Context(), args[0], args[1], args[2]); err != nil {
		return err
	}
	fmt.Printf("Set %s.%s = %q\n", args[0], args[1], args[2])
	return nil
}

func runContactList(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	contacts, err := store.Contacts().List(cmd.Context(), contact.ListFilter{
		Status: contact.Status(contactListStatus),
		Tag:    contactListTag,
	})
	if err != nil {
		return err
	}
	if len(contacts) == 0 {
		fmt.Println("No contacts")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tPHONE\tSTATUS\tREPLIED\tTAGS")
	for _, c := range contacts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			c.ID, c.FullName(), c.Email, c.Phone, c.Status, c.Replied,
			strings.Join(c.Tags, ","))
	}
	return tw.Flush()
}

func runContactReply(cmd *cobra.Command, args []string) error {
	var channel message.Channel
	switch contactReplyChannel {
	case "sms":
		channel = message.ChannelSMS
	case "email":
		channel = message.ChannelEmail
	default:
		return fmt.Errorf("channel must be \"sms\" or \"email\", got %q", contactReplyChannel)
	}

	svc, store, err := contactService()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	defer svc.Close()

	body := contactReplyBody
	if body == "" {
		body = "(reply)"
	}
	msg := message.NewInbound(args[0], channel, body)
	if err := store.Messages().Create(cmd.Context(), msg); err != nil {
		return fmt.Errorf("recording message: %w", err)
	}
	if err := svc.RecordInbound(cmd.Context(), args[0], string(channel)); err != nil {
		return err
	}
	fmt.Printf("Recorded %s reply from %s\n", channel, args[0])
	return nil
}
