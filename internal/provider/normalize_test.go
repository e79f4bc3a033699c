package provider

import (
	"testing"

	"github.com/finlink/finlink/internal/models"
	"github.com/shopspring/decimal"
)

func TestNormalizeTransaction(t *testing.T) {
	tests := []struct {
		name          string
		raw           string
		rawDirection  string
		wantAmount    string
		wantDirection models.Direction
		wantErr       bool
	}{
		{"explicit debit", "25.00", "DEBIT", "25.00", models.Debit, false},
		{"explicit credit", "25.00", "CREDIT", "25.00", models.Credit, false},
		{"lowercase outflow", "10.50", "out", "10.50", models.Debit, false},
		{"inflow alias", "10.50", "INFLOW", "10.50", models.Credit, false},
		{"signed negative means debit", "-42.10", "", "42.10", models.Debit, false},
		{"signed positive means credit", "42.10", "", "42.10", models.Credit, false},
		{"negative with explicit direction keeps direction", "-42.10", "CREDIT", "42.10", models.Credit, false},
		{"unknown direction", "5.00", "SIDEWAYS", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, direction, err := NormalizeTransaction(decimal.RequireFromString(tt.raw), tt.rawDirection)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !amount.Equal(decimal.RequireFromString(tt.wantAmount)) {
				t.Errorf("expected amount %s, got %s", tt.wantAmount, amount)
			}
			if direction != tt.wantDirection {
				t.Errorf("expected direction %s, got %s", tt.wantDirection, direction)
			}
		})
	}
}

func TestCanonicalBalance(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		nature models.AccountNature
		conv   SignConvention
		want   string
	}{
		{"asset passes through", "120.00", models.NatureAsset, SignAssetStyle, "120.00"},
		{"overdrawn asset passes through", "-30.00", models.NatureAsset, SignAssetStyle, "-30.00"},
		{"debt reported negative flips", "-500.00", models.NatureLiability, SignDebtNegative, "500.00"},
		{"debt reported positive stays", "500.00", models.NatureLiability, SignDebtPositive, "500.00"},
		{"asset style liability flips", "-500.00", models.NatureLiability, SignAssetStyle, "500.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanonicalBalance(decimal.RequireFromString(tt.raw), tt.nature, tt.conv)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestNatureFromType(t *testing.T) {
	if NatureFromType("credit_card") != models.NatureLiability {
		t.Error("credit_card should be a liability")
	}
	if NatureFromType("checking") != models.NatureAsset {
		t.Error("checking should be an asset")
	}
	if NatureFromType(" Loan ") != models.NatureLiability {
		t.Error("loan should be a liability regardless of casing and spacing")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("missing"); err == nil {
		t.Fatal("expected error for unknown adapter")
	}
}
