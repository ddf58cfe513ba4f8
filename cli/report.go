package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adokit/adokit/azdo"
	"github.com/adokit/adokit/report"
)

func newReportCmd(flags *rootFlags) *cobra.Command {
	var outPath string
	var snapshotPath string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a per-project membership report",
		Long: `Fetches the organization's projects and graph groups, resolves the
configured built-in groups to flat user sets, and renders per-project and
organization-wide member counts as markdown.`,
		Example: `  adokit report --org fabrikam
  adokit report --org fabrikam --out report.md --snapshot report.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			logger, err := newLogger(flags.verbose)
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()

			if len(outPath) > 0 {
				cfg.Report.OutputPath = outPath
			}
			if len(snapshotPath) > 0 {
				cfg.Report.SnapshotPath = snapshotPath
			}

			rep, err := buildReport(cmd.Context(), cfg.Organization, cfg.Report.Groups, logger, func(sink *azdo.DiagnosticSink) (*azdo.Client, error) {
				return newClient(cfg, logger, sink)
			})
			if err != nil {
				return err
			}

			markdown := report.RenderMarkdown(rep)
			if len(cfg.Report.OutputPath) > 0 {
				if err = os.WriteFile(cfg.Report.OutputPath, []byte(markdown), 0o644); err != nil {
					return err
				}
				logger.Info("report written", zap.String("path", cfg.Report.OutputPath))
			} else {
				fmt.Fprint(cmd.OutOrStdout(), markdown)
			}
			if len(cfg.Report.SnapshotPath) > 0 {
				if err = report.WriteSnapshot(cfg.Report.SnapshotPath, rep); err != nil {
					return err
				}
				logger.Info("snapshot written", zap.String("path", cfg.Report.SnapshotPath))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", "write markdown to this file instead of stdout")
	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "also write a JSON snapshot to this file")

	return cmd
}

// buildReport runs the fetch → resolve → aggregate pipeline for the
// configured group names.
func buildReport(ctx context.Context, organization string, groupNames []string, logger *zap.Logger, connect func(*azdo.DiagnosticSink) (*azdo.Client, error)) (*report.Report, error) {
	sink := azdo.NewDiagnosticSink(logger)
	client, err := connect(sink)
	if err != nil {
		return nil, err
	}

	projects, err := client.Projects(ctx)
	if err != nil {
		return nil, err
	}
	groups, err := client.Groups(ctx)
	if err != nil {
		return nil, err
	}

	resolver := azdo.NewResolver(client, sink, logger, azdo.SkipFailedSubtrees)
	resolutions := resolveMatching(ctx, resolver, groups, groupNames, logger)

	agg := azdo.NewAggregator(groups, resolutions, sink)
	return report.Build(organization, projects, groupNames, agg, sink.Entries()), nil
}

// resolveMatching resolves every project-scoped group whose name is in
// groupNames, building the side-table the aggregator reads from. A group
// whose subtree cannot be resolved at all is left out; the aggregator then
// reports it as zero.
func resolveMatching(ctx context.Context, resolver *azdo.Resolver, groups []azdo.Identity, groupNames []string, logger *zap.Logger) azdo.Resolutions {
	resolutions := make(azdo.Resolutions)
	for i := range groups {
		if !matchesAny(groups[i].PrincipalName, groupNames) {
			continue
		}
		resolved, err := resolver.ResolveMembers(ctx, groups[i])
		if err != nil {
			logger.Warn("group resolution failed",
				zap.String("group", groups[i].PrincipalName),
				zap.Error(err))
			continue
		}
		resolutions[groups[i].Descriptor] = resolved
	}
	return resolutions
}

// matchesAny reports whether a principal name of the form "[Project]\Name"
// carries one of the configured group names.
func matchesAny(principalName string, groupNames []string) bool {
	idx := strings.Index(principalName, "]\\")
	if !strings.HasPrefix(principalName, "[") || idx < 0 {
		return false
	}
	name := principalName[idx+2:]
	for _, g := range groupNames {
		if strings.EqualFold(name, g) {
			return true
		}
	}
	return false
}
