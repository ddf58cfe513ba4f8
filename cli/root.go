// Package cli wires the adokit commands: membership reports, usage
// telemetry, and build tagging.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/adokit/adokit/azdo"
	"github.com/adokit/adokit/config"
)

// adoResourceScope is the delegated scope of the Azure DevOps service when
// authenticating with AAD client credentials.
const adoResourceScope = "499b84ac-1321-427f-aa17-267ca6975798/.default"

type rootFlags struct {
	configPath string
	org        string
	legacy     bool
	verbose    bool
}

func NewRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:           "adokit",
		Short:         "Azure DevOps administration toolkit",
		Long:          "Generates membership reports, ships usage telemetry, and tags builds for an Azure DevOps organization.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to adokit.yaml")
	cmd.PersistentFlags().StringVar(&flags.org, "org", "", "Azure DevOps organization name")
	cmd.PersistentFlags().BoolVar(&flags.legacy, "legacy", false, "use the legacy *.visualstudio.com endpoints")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newReportCmd(&flags))
	cmd.AddCommand(newUsageCmd(&flags))
	cmd.AddCommand(newTagCmd(&flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}

func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if len(flags.org) > 0 {
		cfg.Organization = flags.org
	}
	if flags.legacy {
		cfg.LegacyEndpoint = true
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newClient(cfg *config.Config, logger *zap.Logger, sink *azdo.DiagnosticSink) (*azdo.Client, error) {
	opts := azdo.Options{
		Organization:      cfg.Organization,
		PAT:               cfg.PAT,
		LegacyEndpoint:    cfg.LegacyEndpoint,
		Timeout:           time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
		RetryAttempts:     cfg.HTTP.RetryAttempts,
		RetryBackoff:      time.Duration(cfg.HTTP.RetryBackoffMillis) * time.Millisecond,
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
		PageLimit:         cfg.HTTP.PageLimit,
		Logger:            logger,
	}
	if cfg.HTTP.PaginationPolicy == "strict" {
		opts.Pagination = azdo.PaginationStrict
	}
	if cfg.Azure != nil {
		cc := &clientcredentials.Config{
			ClientID:     cfg.Azure.ClientId,
			ClientSecret: cfg.Azure.ClientSecret,
			TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.Azure.TenantId),
			Scopes:       []string{adoResourceScope},
		}
		opts.TokenSource = cc.TokenSource(context.Background())
	}
	return azdo.NewClient(opts, sink)
}
