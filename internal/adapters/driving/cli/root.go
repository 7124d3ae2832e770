// Package cli provides the caseflow command line.
package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driving"
	"github.com/custodia-labs/caseflow/internal/logger"
)

// version is set at build time with -ldflags.
var version = "dev"

// ErrNotConfigured is returned when a command runs before services exist.
var ErrNotConfigured = errors.New("services not configured")

// ErrNoUser is returned by commands that act for a user when none was given.
var ErrNoUser = errors.New("no user: pass --user or set CASEFLOW_USER")

// Authorizer builds provider consent URLs.
type Authorizer interface {
	AuthCodeURL(provider, state, redirectURI string) (string, error)
}

// Services are the collaborators commands run against.
type Services struct {
	Hub        driving.Hub
	Pipeline   driving.Pipeline
	Sessions   driving.SessionManager
	Authorizer Authorizer

	// IssueToken signs a bearer token for the HTTP surface.
	IssueToken func(userID string, ttl time.Duration) (string, error)

	// Serve runs the long-lived surfaces until ctx ends.
	Serve func(ctx context.Context) error

	// Close releases everything the bootstrap opened.
	Close func() error
}

// Bootstrap builds Services from the configuration file at path.
type Bootstrap func(ctx context.Context, path string) (*Services, error)

var (
	bootstrap Bootstrap
	services  *Services

	configPath string
	userID     string
	verbose    bool
)

// SetBootstrap installs the function that builds services before a command runs.
func SetBootstrap(fn Bootstrap) {
	bootstrap = fn
}

// SetServices installs ready-made services, bypassing the bootstrap.
func SetServices(s *Services) {
	services = s
}

var rootCmd = &cobra.Command{
	Use:   "caseflow",
	Short: "Tenant case document processing",
	Long: `caseflow ingests tenancy documents, extracts and classifies them, and
routes what it finds to case modules such as the timeline and lease
violation checks.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default ~/.caseflow/config.toml)")
	flags.StringVarP(&userID, "user", "u", os.Getenv("CASEFLOW_USER"), "user ID to act as")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
}

func setup(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	if cmd == versionCmd || services != nil || bootstrap == nil {
		return nil
	}
	s, err := bootstrap(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	services = s
	return nil
}

// Execute runs the root command, cancelling on SIGINT or SIGTERM, and
// releases the services afterwards.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() { _ = logger.Sync() }()

	err := rootCmd.ExecuteContext(ctx)
	if services != nil && services.Close != nil {
		err = errors.Join(err, services.Close())
	}
	return err
}

func requireServices() (*Services, error) {
	if services == nil {
		return nil, ErrNotConfigured
	}
	return services, nil
}

func requireUser() (string, error) {
	if userID == "" {
		return "", ErrNoUser
	}
	return userID, nil
}

// invoke runs module.action through the hub and turns a failed result into an error.
func invoke(cmd *cobra.Command, module, action, user string, params map[string]any) (map[string]any, error) {
	s, err := requireServices()
	if err != nil {
		return nil, err
	}
	if s.Hub == nil {
		return nil, ErrNotConfigured
	}
	res := s.Hub.Invoke(cmd.Context(), module, action, user, params)
	if !res.OK {
		return nil, resultError(res)
	}
	return res.Data, nil
}

func resultError(res driving.Result) error {
	if res.Error == nil {
		return domain.NewError(domain.KindPermanent, "action failed")
	}
	return domain.NewError(res.Error.Kind, "%s", res.Error.Message)
}
