package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/therickybobbeh/depscan/internal/cache"
	"github.com/therickybobbeh/depscan/internal/config"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the vulnerability cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entry count and size",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		stats, err := store.GetStats()
		if err != nil {
			return err
		}
		fmt.Printf("entries: %d\nsize_bytes: %d\n", stats.Entries, stats.SizeBytes)
		return nil
	},
}

var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		removed, err := store.CleanupExpired()
		if err != nil {
			return err
		}
		fmt.Printf("removed %d expired entries\n", removed)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cache entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		if err := store.Clear(); err != nil {
			return err
		}
		fmt.Println("cache cleared")
		return nil
	},
}

func openStore() (*cache.Store, error) {
	cfg := config.LoadConfigurations()
	db, err := config.NewCacheDatabase(cfg)
	if err != nil {
		return nil, err
	}
	ttl := time.Duration(cfg.OSV_CACHE_TTL_HOURS) * time.Hour
	return cache.NewStore(db.Connection, ttl)
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheCleanupCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
