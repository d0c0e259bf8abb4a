// Package main provides somactl, the admin CLI for the Soma offline store:
// queue inspection, dead-letter recovery, pruning, and one-shot sync.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mwangivic/soma/internal/config"
	"github.com/mwangivic/soma/internal/db"
	"github.com/mwangivic/soma/internal/models"
	"github.com/mwangivic/soma/internal/notify"
	"github.com/mwangivic/soma/internal/remote"
	"github.com/mwangivic/soma/internal/store"
	"github.com/mwangivic/soma/internal/syncer"
)

var dataDir string

func main() {
	godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "somactl",
		Short: "Inspect and drive the Soma offline store",
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDataDir(), "offline store directory")

	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(queueCmd())
	rootCmd.AddCommand(pruneCmd())
	rootCmd.AddCommand(syncCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultDataDir() string {
	if v := os.Getenv("SOMA_DATA_DIR"); v != "" {
		return v
	}
	return "./data"
}

func openStore() (*store.Store, func(), error) {
	database, err := db.Open(dataDir)
	if err != nil {
		return nil, nil, err
	}
	return store.New(database), func() { database.Close() }, nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeStore, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			stats, err := st.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("total:   %d\npending: %d\nfailed:  %d\nsynced:  %d\n",
				stats.Total, stats.Pending, stats.Failed, stats.Synced)
			return nil
		},
	}
}

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the mutation queue",
	}

	var showFailed bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List pending (or dead-lettered) queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeStore, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			var items []*models.SyncQueueItem
			if showFailed {
				items, err = st.Failed(cmd.Context())
			} else {
				items, err = st.Pending(cmd.Context(), time.Now())
			}
			if err != nil {
				return err
			}

			if len(items) == 0 {
				fmt.Println("queue is empty")
				return nil
			}
			for _, item := range items {
				line := fmt.Sprintf("#%d %s/%s attempts=%d", item.ID, item.Type, item.Action, item.Attempts)
				if item.LastError != "" {
					line += " last_error=" + item.LastError
				}
				fmt.Println(line)
			}
			return nil
		},
	}
	listCmd.Flags().BoolVar(&showFailed, "failed", false, "show dead-lettered items instead of pending")

	retryCmd := &cobra.Command{
		Use:   "retry",
		Short: "Reset dead-lettered items to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeStore, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			n, err := st.RetryFailed(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("reset %d item(s) for retry\n", n)
			return nil
		},
	}

	cmd.AddCommand(listCmd)
	cmd.AddCommand(retryCmd)
	return cmd
}

func pruneCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete synced queue items older than a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeStore, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			n, err := st.PruneSynced(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Printf("pruned %d item(s)\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "minimum age of synced items to delete")
	return cmd
}

func syncCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass against the remote backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			st, closeStore, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			client := remote.NewClient(&remote.Config{
				BaseURL: cfg.RemoteURL,
				APIKey:  cfg.RemoteKey,
			})

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			manager := syncer.New(st, client, nil, notify.Nop{}, &syncer.Config{
				Interval:  cfg.SyncInterval,
				Retention: cfg.Retention,
			})
			result, err := manager.SyncNow(ctx)
			if err != nil {
				return err
			}

			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(result)
			}
			fmt.Printf("attempted: %d\nsynced:    %d\nfailed:    %d\ndiscarded: %d\nremaining: %d\n",
				result.Attempted, result.Synced, result.Failed, result.Discarded, result.Remaining)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}
