package main

import (
	"errors"
	"fmt"
	"io"

	"HodlFarm/internal/amount"
	"HodlFarm/internal/farm"
	"HodlFarm/internal/model"
	"HodlFarm/internal/recorder"

	"github.com/spf13/cobra"
)

// withFarm opens the persisted farm for a one-shot command.
func withFarm(fn func(f *farm.Farm, rec recorder.Recorder) error) error {
	rec := openRecorder(cfg, logger)
	defer rec.Close()
	f, err := openFarm(cfg, logger, rec)
	if err != nil {
		return explain(err)
	}
	defer f.Close()
	return fn(f, rec)
}

func accountFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "account", "", "participant address (0x + 40 hex)")
	_ = cmd.MarkFlagRequired("account")
}

func amountFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "amount", "", "decimal token amount, up to 18 fractional digits")
	_ = cmd.MarkFlagRequired("amount")
}

func parseArgs(account, amt string) (model.Address, amount.Amount, error) {
	a, err := model.ParseAddress(account)
	if err != nil {
		return "", amount.Zero(), err
	}
	if amt == "" {
		return a, amount.Zero(), nil
	}
	v, err := amount.Parse(amt)
	if err != nil {
		return "", amount.Zero(), fmt.Errorf("amount %q: %w", amt, err)
	}
	return a, v, nil
}

// explain adds operator guidance to retryable failures.
func explain(err error) error {
	switch {
	case farm.IsRetryable(err):
		return fmt.Errorf("%w (retry after the pool is replenished)", err)
	case errors.Is(err, farm.ErrStateLocked):
		return fmt.Errorf("%w (stop hodlfarm serve first, it holds the state file)", err)
	}
	return err
}

func stakeCommand() *cobra.Command {
	var account, amt string
	cmd := &cobra.Command{
		Use:   "stake",
		Short: "Stake collateral, settling yield accrued so far",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, v, err := parseArgs(account, amt)
			if err != nil {
				return err
			}
			return withFarm(func(f *farm.Farm, _ recorder.Recorder) error {
				if err := f.Stake(addr, v); err != nil {
					return explain(err)
				}
				printAccount(cmd.OutOrStdout(), f.Account(addr))
				return nil
			})
		},
	}
	accountFlag(cmd, &account)
	amountFlag(cmd, &amt)
	return cmd
}

func unstakeCommand() *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "unstake",
		Short: "Return the whole stake; unsettled yield stays withdrawable",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _, err := parseArgs(account, "")
			if err != nil {
				return err
			}
			return withFarm(func(f *farm.Farm, _ recorder.Recorder) error {
				if err := f.Unstake(addr); err != nil {
					return explain(err)
				}
				printAccount(cmd.OutOrStdout(), f.Account(addr))
				return nil
			})
		},
	}
	accountFlag(cmd, &account)
	return cmd
}

func withdrawCommand() *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Pay all accrued yield from the reward pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _, err := parseArgs(account, "")
			if err != nil {
				return err
			}
			return withFarm(func(f *farm.Farm, _ recorder.Recorder) error {
				if err := f.WithdrawYield(addr); err != nil {
					return explain(err)
				}
				printAccount(cmd.OutOrStdout(), f.Account(addr))
				return nil
			})
		},
	}
	accountFlag(cmd, &account)
	return cmd
}

func replenishCommand() *cobra.Command {
	var account, amt string
	cmd := &cobra.Command{
		Use:   "replenish",
		Short: "Move reward tokens from an operator account into the pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, v, err := parseArgs(account, amt)
			if err != nil {
				return err
			}
			return withFarm(func(f *farm.Farm, _ recorder.Recorder) error {
				if err := f.Replenish(addr, v); err != nil {
					return err
				}
				stats := f.Stats()
				printStats(cmd.OutOrStdout(), &stats)
				return nil
			})
		},
	}
	accountFlag(cmd, &account)
	amountFlag(cmd, &amt)
	return cmd
}

func positionCommand() *cobra.Command {
	var account string
	var history int
	cmd := &cobra.Command{
		Use:   "position",
		Short: "Show balances, stake and pending yield of an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _, err := parseArgs(account, "")
			if err != nil {
				return err
			}
			return withFarm(func(f *farm.Farm, rec recorder.Recorder) error {
				out := cmd.OutOrStdout()
				printAccount(out, f.Account(addr))
				if history <= 0 {
					return nil
				}
				events, err := rec.RecentOperations(addr, history)
				if err != nil {
					return fmt.Errorf("load history: %w", err)
				}
				fmt.Fprintln(out)
				for _, e := range events {
					status := "ok"
					if !e.OK {
						status = e.Error
					}
					fmt.Fprintf(out, "%s  %-14s %s  %s\n", e.At.Format("2006-01-02 15:04:05"), e.Kind, e.Amount, status)
				}
				return nil
			})
		},
	}
	accountFlag(cmd, &account)
	cmd.Flags().IntVar(&history, "history", 0, "also list this many recent operations")
	return cmd
}

func poolCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pool",
		Short: "Show reward pool and staking totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFarm(func(f *farm.Farm, _ recorder.Recorder) error {
				stats := f.Stats()
				printStats(cmd.OutOrStdout(), &stats)
				return nil
			})
		},
	}
}

func printAccount(w io.Writer, v model.AccountView) {
	fmt.Fprintf(w, "account:        %s\n", v.Address)
	fmt.Fprintf(w, "collateral:     %s %s\n", v.CollateralBalance, model.Collateral.Symbol())
	fmt.Fprintf(w, "staked:         %s %s\n", v.Staked, model.Collateral.Symbol())
	fmt.Fprintf(w, "pending yield:  %s %s\n", v.PendingYield, model.Reward.Symbol())
	fmt.Fprintf(w, "reward balance: %s %s\n", v.RewardBalance, model.Reward.Symbol())
	fmt.Fprintf(w, "staking:        %t\n", v.IsStaking)
}

func printStats(w io.Writer, s *model.PoolStats) {
	fmt.Fprintf(w, "reward pool:     %s %s\n", s.RewardPool, model.Reward.Symbol())
	fmt.Fprintf(w, "farm collateral: %s %s\n", s.FarmCollateral, model.Collateral.Symbol())
	fmt.Fprintf(w, "total staked:    %s %s\n", s.TotalStaked, model.Collateral.Symbol())
	fmt.Fprintf(w, "pending yield:   %s %s\n", s.TotalPending, model.Reward.Symbol())
	fmt.Fprintf(w, "stakers:         %d\n", s.Stakers)
	if short := s.Shortfall(); !short.IsZero() {
		fmt.Fprintf(w, "shortfall:       %s %s\n", short, model.Reward.Symbol())
	}
}
