package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bher20/meterledger/internal/billing"
	"github.com/bher20/meterledger/internal/meter"
)

var convertCmd = &cobra.Command{
	Use:   "convert <raw>",
	Short: "Convert a raw meter display value to kilolitres",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("raw value must be an integer: %w", err)
		}
		kl, err := meter.FromRaw(raw)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), billing.FormatUsage(kl))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)
}
