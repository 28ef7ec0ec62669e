package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/followup/internal/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage provider credentials and engine settings",
	Long: `Manage the settings table. Provider credentials live here rather than
in the config file, so they can be rotated without a restart: the engine
re-reads them every tick.`,
}

var (
	smsAccountSID string
	smsAuthToken  string
	smsFrom       string

	emailAPIKey   string
	emailFrom     string
	emailFromName string
)

var settingsSetSMSCmd = &cobra.Command{
	Use:   "set-sms",
	Short: "Store Twilio SMS credentials",
	RunE:  runSettingsSetSMS,
}

var settingsSetEmailCmd = &cobra.Command{
	Use:   "set-email",
	Short: "Store SendGrid email credentials",
	RunE:  runSettingsSetEmail,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show provider configuration state",
	RunE:  runSettingsShow,
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsSetSMSCmd)
	settingsCmd.AddCommand(settingsSetEmailCmd)
	settingsCmd.AddCommand(settingsShowCmd)

	settingsSetSMSCmd.Flags().StringVar(&smsAccountSID, "account-sid", "", "Twilio account SID")
	settingsSetSMSCmd.Flags().StringVar(&smsAuthToken, "auth-token", "", "Twilio auth token")
	settingsSetSMSCmd.Flags().StringVar(&smsFrom, "from", "", "sending phone number (E.164)")
	_ = settingsSetSMSCmd.MarkFlagRequired("account-sid")
	_ = settingsSetSMSCmd.MarkFlagRequired("auth-token")
	_ = settingsSetSMSCmd.MarkFlagRequired("from")

	settingsSetEmailCmd.Flags().StringVar(&emailAPIKey, "api-key", "", "SendGrid API key")
	settingsSetEmailCmd.Flags().StringVar(&emailFrom, "from", "", "sending email address")
	settingsSetEmailCmd.Flags().StringVar(&emailFromName, "from-name", "", "sending display name")
	_ = settingsSetEmailCmd.MarkFlagRequired("api-key")
	_ = settingsSetEmailCmd.MarkFlagRequired("from")
}

func runSettingsSetSMS(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	svc := settings.NewService(store.Settings())
	err = svc.SetSMS(cmd.Context(), settings.SMSSettings{
		AccountSID:  smsAccountSID,
		AuthToken:   smsAuthToken,
		PhoneNumber: smsFrom,
	})
	if err != nil {
		return err
	}
	fmt.Println("SMS credentials stored")
	return nil
}

func runSettingsSetEmail(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	svc := settings.NewService(store.Settings())
	err = svc.SetEmail(cmd.Context(), settings.EmailSettings{
		APIKey:    emailAPIKey,
		FromEmail: emailFrom,
		FromName:  emailFromName,
	})
	if err != nil {
		return err
	}
	fmt.Println("Email credentials stored")
	return nil
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	svc := settings.NewService(store.Settings())

	sms, err := svc.SMS(cmd.Context())
	if err != nil {
		return err
	}
	email, err := svc.Email(cmd.Context())
	if err != nil {
		return err
	}

	if sms.IsConfigured() {
		fmt.Printf("SMS:   configured (account %s, from %s)\n", mask(sms.AccountSID), sms.PhoneNumber)
	} else {
		fmt.Println("SMS:   not configured")
	}
	if email.IsConfigured() {
		from := email.FromEmail
		if email.FromName != "" {
			from = fmt.Sprintf("%s <%s>", email.FromName, email.FromEmail)
		}
		fmt.Printf("Email: configured (key %s, from %s)\n", mask(email.APIKey), from)
	} else {
		fmt.Println("Email: not configured")
	}
	return nil
}

// mask hides everything but the last four characters of a credential.
func mask(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
