package cli

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adokit/adokit/azdo"
	"github.com/adokit/adokit/telemetry"
)

// UsageRow is one metric shipped to the log-analytics workspace.
type UsageRow struct {
	Organization string `json:"Organization"`
	RunId        string `json:"RunId"`
	Metric       string `json:"Metric"`
	Value        int    `json:"Value"`
	GeneratedAt  string `json:"GeneratedAt"`
}

func newUsageCmd(flags *rootFlags) *cobra.Command {
	var workspaceId string
	var logType string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Ship organization usage metrics to a log-analytics workspace",
		Long: `Counts projects, repositories, and distinct members of the configured
built-in groups, then posts the rows to the Azure Log Analytics HTTP Data
Collector endpoint. The shared key is read from ADOKIT_SHARED_KEY.`,
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

			if len(workspaceId) > 0 {
				cfg.Telemetry.WorkspaceId = workspaceId
			}
			if len(logType) > 0 {
				cfg.Telemetry.LogType = logType
			}
			if !dryRun {
				if len(cfg.Telemetry.WorkspaceId) == 0 {
					return errors.New("telemetry workspace id is not configured")
				}
				if len(cfg.Telemetry.SharedKey) == 0 {
					return errors.New("ADOKIT_SHARED_KEY is not set")
				}
			}

			ctx := cmd.Context()
			sink := azdo.NewDiagnosticSink(logger)
			client, err := newClient(cfg, logger, sink)
			if err != nil {
				return err
			}

			projects, err := client.Projects(ctx)
			if err != nil {
				return err
			}
			repos, err := client.Repositories(ctx)
			if err != nil {
				return err
			}
			groups, err := client.Groups(ctx)
			if err != nil {
				return err
			}

			resolver := azdo.NewResolver(client, sink, logger, azdo.SkipFailedSubtrees)
			resolutions := resolveMatching(ctx, resolver, groups, cfg.Report.Groups, logger)
			agg := azdo.NewAggregator(groups, resolutions, sink)

			runId := uuid.NewString()
			now := time.Now().UTC().Format(time.RFC3339)
			rows := []UsageRow{
				{Organization: cfg.Organization, RunId: runId, Metric: "projects", Value: len(projects), GeneratedAt: now},
				{Organization: cfg.Organization, RunId: runId, Metric: "repositories", Value: len(repos), GeneratedAt: now},
			}
			for _, g := range cfg.Report.Groups {
				rows = append(rows, UsageRow{
					Organization: cfg.Organization,
					RunId:        runId,
					Metric:       "members:" + g,
					Value:        agg.OrgWideCount(g),
					GeneratedAt:  now,
				})
			}

			if dryRun {
				for _, row := range rows {
					logger.Info("usage row",
						zap.String("metric", row.Metric),
						zap.Int("value", row.Value))
				}
				return nil
			}

			shipper := telemetry.NewClient(cfg.Telemetry.WorkspaceId, cfg.Telemetry.SharedKey,
				telemetry.WithLogger(logger))
			return shipper.Post(ctx, cfg.Telemetry.LogType, rows)
		},
	}

	cmd.Flags().StringVar(&workspaceId, "workspace-id", "", "log-analytics workspace id")
	cmd.Flags().StringVar(&logType, "log-type", "", "custom log type name")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute metrics but do not ship them")

	return cmd
}
