package cmd

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Show or change spending caps",
}

var budgetStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show spend against the daily and rolling 30-day caps",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		return e.render.Budget(e.pipeline.LedgerStatus())
	},
}

var budgetSetDailyCmd = &cobra.Command{
	Use:   "set-daily <usd>",
	Short: "Set the daily cap in dollars (0 disables it)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setLimit(cmd, args[0], "daily")
	},
}

var budgetSetMonthlyCmd = &cobra.Command{
	Use:   "set-monthly <usd>",
	Short: "Set the rolling 30-day cap in dollars (0 disables it)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setLimit(cmd, args[0], "monthly")
	},
}

var budgetResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Zero all recorded spend, keeping the caps",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		if err := e.pipeline.ResetLedger(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Budget usage reset.")
		return nil
	},
}

func init() {
	budgetCmd.AddCommand(budgetStatusCmd, budgetSetDailyCmd, budgetSetMonthlyCmd, budgetResetCmd)
}

func setLimit(cmd *cobra.Command, arg, window string) error {
	usd, err := parseUSD(arg)
	if err != nil {
		return err
	}
	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	if window == "daily" {
		err = e.pipeline.SetDailyLimit(usd)
	} else {
		err = e.pipeline.SetMonthlyLimit(usd)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s cap set to $%.2f.\n", strings.ToUpper(window[:1])+window[1:], usd)
	return nil
}

// parseUSD accepts "2", "2.50" or "$2.50".
func parseUSD(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimPrefix(strings.TrimSpace(s), "$"), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid dollar amount %q", s)
	}
	if v < 0 {
		return 0, fmt.Errorf("amount must not be negative, got %q", s)
	}
	return v, nil
}
