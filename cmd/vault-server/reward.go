package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dragonsvault/server/internal/domain/task"
)

func newRewardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reward",
		Short: "Reward amount tools",
	}

	var raw bool
	parse := &cobra.Command{
		Use:   "parse <text>",
		Short: "Show how a reward value converts to cents",
		Long: `Show how a reward value converts to cents.

By default the argument is free text such as "$5.50" or "3 dollars".
With --json it is decoded the way a stored task's reward field is:
a number is a cent count and a string is free text.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := strings.Join(args, " ")

			var cents int64
			var err error
			if raw {
				cents, err = task.RewardFromJSON(json.RawMessage(input)).Cents()
			} else {
				cents, err = task.ParseRewardText(input)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d cents (%s)\n", cents, task.FormatCents(cents))
			return nil
		},
	}
	parse.Flags().BoolVar(&raw, "json", false, "treat the argument as a JSON reward value")

	cmd.AddCommand(parse)
	return cmd
}
