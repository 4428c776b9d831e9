package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/MarcoPoloResearchLab/quickhelp/internal/config"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/events"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/jobs"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/logging"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/manuals"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/portal"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/search"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile  string
	viewerID string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "quickhelp",
		Short:         "QuickHelp manual portal core",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newManualsCommand(), newSearchCommand(), newAnalyticsCommand(), newLogsCommand(), newMaintainCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&viewerID, "as", "", "Act as the user with this id (anonymous when empty)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().Int("session-ttl-minutes", defaults.GetInt("session.ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("retention-schedule", defaults.GetString("search.retention_schedule"), "Cron schedule of the search log retention job")
	cmd.PersistentFlags().String("change-feed-schedule", defaults.GetString("store.change_feed_schedule"), "Cron schedule for announcing writes by other processes")

	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "session.ttl_minutes", "session-ttl-minutes")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
	bindFlag(cmd, "search.retention_schedule", "retention-schedule")
	bindFlag(cmd, "store.change_feed_schedule", "change-feed-schedule")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// withPortal loads configuration, opens the portal and hands it to run.
func withPortal(ctx context.Context, run func(context.Context, *portal.Portal, *zap.Logger) error) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	assembled, closeStore, err := portal.Open(ctx, appConfig, logger)
	if err != nil {
		return err
	}
	defer closeStore() //nolint:errcheck

	return run(ctx, assembled, logger)
}

func resolveViewer(ctx context.Context, p *portal.Portal) (users.User, error) {
	trimmed := strings.TrimSpace(viewerID)
	if trimmed == "" {
		return users.User{}, nil
	}
	viewer, ok := p.Directory.FindByID(ctx, trimmed)
	if !ok {
		return users.User{}, fmt.Errorf("%w: %s", users.ErrUserNotFound, trimmed)
	}
	return viewer, nil
}

func newManualsCommand() *cobra.Command {
	var category, tag string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the manuals visible to the current viewer",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedCategory := manuals.Category("")
			if strings.TrimSpace(category) != "" {
				parsed, err := manuals.ParseCategory(category)
				if err != nil {
					return err
				}
				parsedCategory = parsed
			}
			return withPortal(cmd.Context(), func(ctx context.Context, p *portal.Portal, _ *zap.Logger) error {
				viewer, err := resolveViewer(ctx, p)
				if err != nil {
					return err
				}
				listing := p.Browse(ctx, viewer, search.Criteria{Category: parsedCategory, Tag: tag})
				writer := newTable(cmd.OutOrStdout())
				fmt.Fprintln(writer, "ID\tTITLE\tCATEGORY\tVERSION\tSTATUS\tVIEWS\tLIKES")
				for _, item := range listing {
					fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n", item.ID, item.Title, item.Category, item.Version, item.Status, item.Views, item.Likes)
				}
				return writer.Flush()
			})
		},
	}
	categoryNames := make([]string, 0, len(manuals.Categories()))
	for _, known := range manuals.Categories() {
		categoryNames = append(categoryNames, string(known))
	}
	list.Flags().StringVar(&category, "category", "", "Only list manuals in this category ("+strings.Join(categoryNames, ", ")+")")
	list.Flags().StringVar(&tag, "tag", "", "Only list manuals carrying this tag")

	manualsCmd := &cobra.Command{Use: "manuals", Short: "Inspect manuals"}
	manualsCmd.AddCommand(list)
	return manualsCmd
}

func newSearchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search manuals and record the query in the search log",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withPortal(cmd.Context(), func(ctx context.Context, p *portal.Portal, _ *zap.Logger) error {
				viewer, err := resolveViewer(ctx, p)
				if err != nil {
					return err
				}
				result, err := p.Search(ctx, viewer, query, search.Criteria{})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%d manuals match %q\n", len(result.Listing), result.Query)
				writer := newTable(out)
				for _, item := range result.Listing {
					fmt.Fprintf(writer, "%s\t%s\t%s\n", item.ID, item.Title, item.Category)
				}
				if err := writer.Flush(); err != nil {
					return err
				}
				if len(result.Suggestions.Manuals) == 0 {
					return nil
				}
				fmt.Fprintln(out, "Suggestions:")
				writer = newTable(out)
				for index, manual := range result.Suggestions.Manuals {
					fmt.Fprintf(writer, "%s\t%s\t%s\n", manual.ID, manual.Title, result.Suggestions.Explanations[index])
				}
				return writer.Flush()
			})
		},
	}
}

func newAnalyticsCommand() *cobra.Command {
	var days, limit int
	topQueries := &cobra.Command{
		Use:   "top-queries",
		Short: "Show the most frequent search queries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPortal(cmd.Context(), func(ctx context.Context, p *portal.Portal, _ *zap.Logger) error {
				writer := newTable(cmd.OutOrStdout())
				fmt.Fprintln(writer, "QUERY\tCOUNT\tZERO RESULTS")
				for _, stat := range p.Analytics.TopQueries(ctx, days, limit) {
					fmt.Fprintf(writer, "%s\t%d\t%d\n", stat.Query, stat.Count, stat.ZeroResults)
				}
				return writer.Flush()
			})
		},
	}
	topQueries.Flags().IntVar(&days, "days", 30, "Trailing window in days (0 for the whole log)")
	topQueries.Flags().IntVar(&limit, "limit", 10, "Maximum number of queries (0 for no limit)")

	var summaryDays int
	summary := &cobra.Command{
		Use:   "summary",
		Short: "Show search totals and the zero result rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPortal(cmd.Context(), func(ctx context.Context, p *portal.Portal, _ *zap.Logger) error {
				totals := p.Analytics.Summary(ctx, summaryDays)
				fmt.Fprintf(cmd.OutOrStdout(), "searches=%d zero_results=%d zero_result_rate=%.1f%% unique_queries=%d\n",
					totals.TotalSearches, totals.ZeroResults, totals.ZeroResultRate*100, totals.UniqueQueries)
				return nil
			})
		},
	}
	summary.Flags().IntVar(&summaryDays, "days", 30, "Trailing window in days (0 for the whole log)")

	analyticsCmd := &cobra.Command{Use: "analytics", Short: "Inspect search analytics"}
	analyticsCmd.AddCommand(topQueries, summary)
	return analyticsCmd
}

func newLogsCommand() *cobra.Command {
	var retentionDays int
	trim := &cobra.Command{
		Use:   "trim",
		Short: "Drop search log entries older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPortal(cmd.Context(), func(ctx context.Context, p *portal.Portal, logger *zap.Logger) error {
				if retentionDays <= 0 {
					ran, err := p.Jobs.RunOnce(ctx, jobs.SearchLogRetentionName)
					if err != nil {
						return err
					}
					logger.Info("retention job finished", zap.Bool("ran", ran))
					return nil
				}
				removed, err := p.Analytics.TrimLogs(ctx, time.Duration(retentionDays)*24*time.Hour)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d search log entries\n", removed)
				return nil
			})
		},
	}
	trim.Flags().IntVar(&retentionDays, "retention-days", 0, "Retention window in days (configured retention when 0)")

	logsCmd := &cobra.Command{Use: "logs", Short: "Maintain the search log"}
	logsCmd.AddCommand(trim)
	return logsCmd
}

func newMaintainCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "maintain",
		Short: "Run scheduled maintenance jobs until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPortal(cmd.Context(), func(ctx context.Context, p *portal.Portal, logger *zap.Logger) error {
				signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				if err := p.Jobs.Start(signalCtx); err != nil {
					return err
				}
				logger.Info("maintenance started", zap.Strings("jobs", p.Jobs.Names()))
				for event := range p.Bus.Stream(signalCtx, events.AllKinds()...) {
					logger.Info("state changed",
						zap.String("kind", string(event.Kind)),
						zap.Strings("ids", event.IDs),
						zap.Time("at", event.Timestamp),
					)
				}
				p.Jobs.Stop()
				logger.Info("maintenance stopped")
				return nil
			})
		},
	}
}

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
}
