package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/caseflow/internal/adapters/driving/oauth"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage provider sessions",
	Long:  `Connect a cloud storage account, inspect or revoke its session, or issue an API token.`,
}

var sessionConnectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Authorise caseflow with a provider and create a user",
	Long: `Open the provider's consent page, wait for the redirect on a local port and
exchange the code for a session. Prints the new user ID.

With --code, skips the browser and exchanges a code obtained elsewhere;
--redirect-uri must then match the one used to obtain it.`,
	Args: cobra.NoArgs,
	RunE: runSessionConnect,
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session of --user",
	Args:  cobra.NoArgs,
	RunE:  runSessionStatus,
}

var sessionRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke the session of --user",
	Args:  cobra.NoArgs,
	RunE:  runSessionRevoke,
}

var sessionTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an HTTP API bearer token for --user",
	Args:  cobra.NoArgs,
	RunE:  runSessionToken,
}

var (
	connectProvider    string
	connectRole        string
	connectCode        string
	connectRedirectURI string
	connectPort        int
	connectNoBrowser   bool
	connectTimeout     time.Duration
	tokenTTL           time.Duration
)

func init() {
	f := sessionConnectCmd.Flags()
	f.StringVar(&connectProvider, "provider", "google", "provider to connect")
	f.StringVar(&connectRole, "role", "tenant", "role of the new user")
	f.StringVar(&connectCode, "code", "", "authorization code obtained out of band")
	f.StringVar(&connectRedirectURI, "redirect-uri", "", "redirect URI the code was issued for")
	f.IntVar(&connectPort, "port", 0, "local callback port (0 picks a free one)")
	f.BoolVar(&connectNoBrowser, "no-browser", false,
		"print the consent URL instead of opening it (implied when stdout is not a terminal)")
	f.DurationVar(&connectTimeout, "timeout", 5*time.Minute, "how long to wait for consent")

	sessionTokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")

	sessionCmd.AddCommand(sessionConnectCmd, sessionStatusCmd, sessionRevokeCmd, sessionTokenCmd)
	rootCmd.AddCommand(sessionCmd)
}

func runSessionConnect(cmd *cobra.Command, _ []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}
	if s.Sessions == nil {
		return ErrNotConfigured
	}

	code, redirectURI := connectCode, connectRedirectURI
	if code == "" {
		if s.Authorizer == nil {
			return ErrNotConfigured
		}
		code, redirectURI, err = awaitConsent(cmd, s.Authorizer)
		if err != nil {
			return err
		}
	}

	user, err := s.Sessions.ExchangeCode(cmd.Context(), connectProvider, connectRole, code, redirectURI)
	if err != nil {
		return fmt.Errorf("exchanging code: %w", err)
	}
	cmd.Printf("Connected %s as %s\n", connectProvider, connectRole)
	cmd.Printf("User ID: %s\n", user)
	return nil
}

// awaitConsent runs the loopback flow and returns the code and the redirect
// URI it was issued for.
func awaitConsent(cmd *cobra.Command, auth Authorizer) (string, string, error) {
	state, err := oauth.NewState()
	if err != nil {
		return "", "", err
	}
	loopback, err := oauth.Listen(connectPort, state)
	if err != nil {
		return "", "", err
	}
	defer func() { _ = loopback.Close() }()

	redirectURI := loopback.RedirectURI()
	consentURL, err := auth.AuthCodeURL(connectProvider, state, redirectURI)
	if err != nil {
		return "", "", err
	}

	cmd.Printf("Authorise caseflow at:\n\n  %s\n\n", consentURL)
	if !connectNoBrowser && term.IsTerminal(int(os.Stdout.Fd())) {
		if err := oauth.OpenBrowser(consentURL); err != nil {
			cmd.Printf("Could not open a browser (%v); open the URL above.\n", err)
		}
	}
	cmd.Println("Waiting for authorisation...")

	ctx, cancel := context.WithTimeout(cmd.Context(), connectTimeout)
	defer cancel()
	code, err := loopback.Await(ctx)
	if err != nil {
		return "", "", err
	}
	return code, redirectURI, nil
}

func runSessionStatus(cmd *cobra.Command, _ []string) error {
	user, err := requireUser()
	if err != nil {
		return err
	}
	out, err := invoke(cmd, "sessions", "status", user, nil)
	if err != nil {
		return err
	}
	sess, _ := out["session"].(map[string]any)
	cmd.Printf("User:     %v\n", sess["user_id"])
	cmd.Printf("Provider: %v\n", sess["provider"])
	cmd.Printf("Expiry:   %v\n", sess["expiry"])
	if expired, _ := sess["expired"].(bool); expired {
		cmd.Println("Status:   expired (refreshes on next use)")
	} else {
		cmd.Println("Status:   valid")
	}
	return nil
}

func runSessionRevoke(cmd *cobra.Command, _ []string) error {
	user, err := requireUser()
	if err != nil {
		return err
	}
	if _, err := invoke(cmd, "sessions", "revoke", user, nil); err != nil {
		return err
	}
	cmd.Printf("Revoked session for %s\n", user)
	return nil
}

func runSessionToken(cmd *cobra.Command, _ []string) error {
	user, err := requireUser()
	if err != nil {
		return err
	}
	s, err := requireServices()
	if err != nil {
		return err
	}
	if s.IssueToken == nil {
		return ErrNotConfigured
	}
	tok, err := s.IssueToken(user, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}
