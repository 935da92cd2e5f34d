package policy

import (
	"strings"

	"github.com/seal-agent/backend/internal/config"
)

// Currencies
const (
	CurrencyCKB  = "CKB"
	CurrencySeal = "SEAL"
	CurrencyTON  = "TON"
)

// Band is an inclusive [Min, Max] reward range for one currency.
type Band struct {
	Min int64
	Max int64
}

func (b Band) Contains(amount int64) bool {
	return amount >= b.Min && amount <= b.Max
}

// Bands maps upper-case currency codes to their reward range.
type Bands map[string]Band

func BandsFromConfig(cfg *config.Config) Bands {
	b := Bands{
		CurrencyCKB:  {Min: cfg.CKBMin, Max: cfg.CKBMax},
		CurrencySeal: {Min: cfg.SealMin, Max: cfg.SealMax},
	}
	if cfg.TONEnabled() {
		b[CurrencyTON] = Band{Min: cfg.TONMin, Max: cfg.TONMax}
	}
	return b
}

// Lookup resolves a currency code case-insensitively.
func (b Bands) Lookup(currency string) (Band, bool) {
	band, ok := b[NormalizeCurrency(currency)]
	return band, ok
}

func NormalizeCurrency(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}
