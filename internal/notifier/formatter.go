package notifier

import (
	"fmt"
	"strings"
	"time"

	"HodlFarm/internal/amount"
	"HodlFarm/internal/model"

	"github.com/dustin/go-humanize"
)

// displayDecimals is how many fractional digits messages show. Values are
// truncated, never rounded up.
const displayDecimals = 4

// FormatAmount renders a with thousands separators and at most four decimals.
func FormatAmount(a amount.Amount) string {
	whole := humanize.BigComma(a.Whole())
	s := a.String()
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return whole
	}
	frac := s[i+1:]
	if len(frac) > displayDecimals {
		frac = frac[:displayDecimals]
	}
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

func withSymbol(a amount.Amount, t model.Token) string {
	return FormatAmount(a) + " " + t.Symbol()
}

// FormatPoolStatus formats pool statistics for display.
func FormatPoolStatus(stats *model.PoolStats) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🌾 <b>HodlFarm Pool</b> | %s\n\n", stats.At.Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("Reward pool: %s\n", withSymbol(stats.RewardPool, model.Reward)))
	b.WriteString(fmt.Sprintf("Staked: %s\n", withSymbol(stats.TotalStaked, model.Collateral)))
	b.WriteString(fmt.Sprintf("Stakers: %d\n", stats.Stakers))
	b.WriteString(fmt.Sprintf("Pending yield: %s\n", withSymbol(stats.TotalPending, model.Reward)))
	if short := stats.Shortfall(); !short.IsZero() {
		b.WriteString(fmt.Sprintf("\n⚠️ Pool is short by %s\n", withSymbol(short, model.Reward)))
	}
	return b.String()
}

// FormatPosition formats one account's balances.
func FormatPosition(view *model.AccountView) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("👤 <b>%s</b>\n\n", view.Address.Short()))
	b.WriteString(fmt.Sprintf("Wallet: %s\n", withSymbol(view.CollateralBalance, model.Collateral)))
	b.WriteString(fmt.Sprintf("Staked: %s\n", withSymbol(view.Staked, model.Collateral)))
	b.WriteString(fmt.Sprintf("Yield: %s\n", withSymbol(view.PendingYield, model.Reward)))
	b.WriteString(fmt.Sprintf("Rewards: %s\n", withSymbol(view.RewardBalance, model.Reward)))
	if view.IsStaking {
		b.WriteString("\nStaking ✅")
	} else {
		b.WriteString("\nNot staking")
	}
	return b.String()
}

// FormatHistory lists recent operations for an account, newest first.
func FormatHistory(account model.Address, events []model.OperationEvent, now time.Time) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📜 <b>History</b> | %s\n\n", account.Short()))
	if len(events) == 0 {
		b.WriteString("No operations recorded.")
		return b.String()
	}
	for _, e := range events {
		mark := "✅"
		if !e.OK {
			mark = "❌"
		}
		b.WriteString(fmt.Sprintf("%s %s %s (%s)", mark, e.Kind, operationAmount(&e), humanize.RelTime(e.At, now, "ago", "from now")))
		if e.Error != "" {
			b.WriteString(": " + e.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func operationAmount(e *model.OperationEvent) string {
	switch e.Kind {
	case model.OpStake, model.OpUnstake:
		return withSymbol(e.Amount, model.Collateral)
	default:
		return withSymbol(e.Amount, model.Reward)
	}
}

// FormatLowPoolAlert warns the operator that withdrawals may start failing.
func FormatLowPoolAlert(stats *model.PoolStats, threshold amount.Amount) string {
	var b strings.Builder
	b.WriteString("🚨 <b>Reward pool low</b>\n\n")
	b.WriteString(fmt.Sprintf("Pool: %s\n", withSymbol(stats.RewardPool, model.Reward)))
	if !threshold.IsZero() {
		b.WriteString(fmt.Sprintf("Threshold: %s\n", withSymbol(threshold, model.Reward)))
	}
	b.WriteString(fmt.Sprintf("Pending yield: %s\n", withSymbol(stats.TotalPending, model.Reward)))
	if short := stats.Shortfall(); !short.IsZero() {
		b.WriteString(fmt.Sprintf("Shortfall: %s\n", withSymbol(short, model.Reward)))
	}
	b.WriteString("\nReplenish the pool to keep withdrawals paying out.")
	return b.String()
}

// FormatHelp lists the chat commands.
func FormatHelp() string {
	return "Available commands:\n" +
		"• /pool\n" +
		"• /position &lt;address&gt;\n" +
		"• /history &lt;address&gt;"
}
