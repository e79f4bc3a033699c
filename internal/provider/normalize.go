package provider

import (
	"fmt"
	"strings"

	"github.com/finlink/finlink/internal/models"
	"github.com/shopspring/decimal"
)

// SignConvention names how a provider reports balance signs. Providers
// disagree on whether credit-card debt is a positive or a negative number;
// the convention is resolved here once, never downstream.
type SignConvention string

const (
	// SignAssetStyle: positive = funds available, negative = overdrawn/debt.
	SignAssetStyle SignConvention = "ASSET_STYLE"
	// SignDebtPositive: liability accounts report debt as a positive number.
	SignDebtPositive SignConvention = "DEBT_POSITIVE"
	// SignDebtNegative: liability accounts report debt as a negative number.
	SignDebtNegative SignConvention = "DEBT_NEGATIVE"
)

// NatureFromType maps a provider account-type label to the canonical nature.
func NatureFromType(accountType string) models.AccountNature {
	switch strings.ToLower(strings.TrimSpace(accountType)) {
	case "credit_card", "creditcard", "credit", "loan", "mortgage", "bnpl":
		return models.NatureLiability
	default:
		return models.NatureAsset
	}
}

// CanonicalBalance converts a provider-reported balance into the engine's
// canonical representation: signed per nature, positive = has (asset) or
// owes (liability).
func CanonicalBalance(raw decimal.Decimal, nature models.AccountNature, conv SignConvention) decimal.Decimal {
	if nature == models.NatureAsset {
		return raw
	}
	switch conv {
	case SignDebtNegative, SignAssetStyle:
		// Debt reported negative (or in asset style): flip so owing is positive.
		return raw.Neg()
	default:
		return raw
	}
}

// NormalizeTransaction splits a raw provider amount/direction pair into the
// canonical non-negative magnitude plus direction tag. An explicit raw
// direction wins; otherwise the sign decides (negative = money out).
func NormalizeTransaction(raw decimal.Decimal, rawDirection string) (decimal.Decimal, models.Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(rawDirection)) {
	case "DEBIT", "OUT", "OUTFLOW":
		return raw.Abs(), models.Debit, nil
	case "CREDIT", "IN", "INFLOW":
		return raw.Abs(), models.Credit, nil
	case "":
		if raw.IsNegative() {
			return raw.Abs(), models.Debit, nil
		}
		return raw, models.Credit, nil
	default:
		return decimal.Zero, "", fmt.Errorf("unrecognized direction %q", rawDirection)
	}
}
