package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dragonsvault/server/internal/domain/task"
	"github.com/dragonsvault/server/internal/infra/storage"
)

// newBalanceCmd inspects and corrects balance documents in the SQLite store.
func newBalanceCmd(c *cli) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Inspect or correct a user's balance document",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (defaults to server.db_path)")

	open := func() (*storage.SQLiteBalanceStore, func() error, error) {
		path := dbPath
		if path == "" {
			cfg, err := c.load()
			if err != nil {
				return nil, nil, err
			}
			path = cfg.Server.DBPath
		}
		db, err := storage.InitSQLite(path, storage.PoolOptions{MaxOpenConns: 1, MaxIdleConns: 1})
		if err != nil {
			return nil, nil, err
		}
		return storage.NewSQLiteBalanceStore(db), db.Close, nil
	}

	show := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Print the balance document as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeDB, err := open()
			if err != nil {
				return err
			}
			defer closeDB()

			b, err := store.ReadBalance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if b.Tasks == nil {
				b.Tasks = []task.Task{}
			}
			out := struct {
				UserID   string `json:"user_id"`
				CoinText string `json:"coins_text"`
				storage.Balance
			}{UserID: args[0], CoinText: task.FormatCents(b.Coins), Balance: b}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	setCoins := &cobra.Command{
		Use:   "set-coins <user-id> <amount>",
		Short: `Set the coin balance, e.g. "12.50" or "$3"`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cents, err := task.ParseRewardText(args[1])
			if err != nil {
				return err
			}
			store, closeDB, err := open()
			if err != nil {
				return err
			}
			defer closeDB()

			if err := store.WriteCoins(cmd.Context(), args[0], cents); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s coins set to %s\n", args[0], task.FormatCents(cents))
			return nil
		},
	}

	setFood := &cobra.Command{
		Use:   "set-food <user-id> <count>",
		Short: "Set the food balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			food, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || food < 0 {
				return fmt.Errorf("food must be a non-negative integer, got %q", args[1])
			}
			store, closeDB, err := open()
			if err != nil {
				return err
			}
			defer closeDB()

			if err := store.WriteFood(cmd.Context(), args[0], food); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s food set to %d\n", args[0], food)
			return nil
		},
	}

	cmd.AddCommand(show, setCoins, setFood)
	return cmd
}
