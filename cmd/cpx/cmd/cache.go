package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clearpath-media/cp-whisperx/internal/glossary"
	"github.com/clearpath-media/cp-whisperx/internal/scheduler"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the glossary cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show glossary cache statistics",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		cache, err := openCache()
		if err != nil {
			return err
		}
		stats, err := cache.GetCacheStatistics()
		if err != nil {
			return err
		}
		fmt.Printf("tmdb entries:    %d\n", stats.TmdbEntries)
		fmt.Printf("learned entries: %d\n", stats.LearnedEntries)
		fmt.Printf("size:            %d bytes\n", stats.SizeBytes)
		return nil
	},
}

var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired glossary cache entries",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		cache, err := openCache()
		if err != nil {
			return err
		}
		removed, err := cache.CleanupExpired()
		if err != nil {
			return err
		}
		fmt.Printf("removed %d expired entries\n", removed)
		return nil
	},
}

var cacheMaintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run the scheduled cache maintenance loop",
	Long: `Run the cache maintenance loop in the foreground, sweeping expired
entries on the configured cron schedule (maintenance.cache_cleanup_cron)
until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cache, err := openCache()
		if err != nil {
			return err
		}
		m, err := scheduler.New(cache, appCfg.Maintenance.CacheCleanupCron,
			scheduler.WithLogger(slog.Default()))
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := m.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		m.Stop()
		return nil
	},
}

func openCache() (*glossary.Cache, error) {
	return glossary.NewCache(appCfg.Storage.CachePath(),
		glossary.WithTTLDays(appCfg.Glossary.TTLDays),
		glossary.WithCacheLogger(slog.Default()),
	)
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheCleanupCmd)
	cacheCmd.AddCommand(cacheMaintainCmd)
	rootCmd.AddCommand(cacheCmd)
}
