package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// CryptoConfig is one tradable asset entry in the portfolio file.
type CryptoConfig struct {
	Name          string  `toml:"name"`           // Asset name, e.g. SOL
	Symbol        string  `toml:"symbol"`         // Trading pair; defaults to name + quote asset
	ProfitTarget  float64 `toml:"profit_target"`  // Take-profit distance, percent
	MaxAllocation float64 `toml:"max_allocation"` // Portfolio fraction this asset may occupy, (0, 1]
	Active        bool    `toml:"active"`
}

// Portfolio is the parsed cryptos.toml file: the assets the bot trades and
// their per-asset limits.
type Portfolio struct {
	QuoteAsset          string         `toml:"quote_asset"`           // Settlement asset, defaults to USDC
	DefaultProfitTarget float64        `toml:"default_profit_target"` // Used when an entry has no profit_target
	Cryptos             []CryptoConfig `toml:"cryptos"`
}

// LoadPortfolio reads and validates the portfolio file at path. Entry
// symbols default to name + quote asset and profit targets default to the
// file-level default.
func LoadPortfolio(path string) (*Portfolio, error) {
	p := &Portfolio{}
	if _, err := toml.DecodeFile(path, p); err != nil {
		return nil, fmt.Errorf("reading portfolio file '%s': %w", path, err)
	}

	if p.QuoteAsset == "" {
		p.QuoteAsset = "USDC"
	}
	if p.DefaultProfitTarget == 0 {
		p.DefaultProfitTarget = 3.0
	}

	var errs []string
	if p.DefaultProfitTarget <= 0 {
		errs = append(errs, "default_profit_target must be positive")
	}
	if len(p.Cryptos) == 0 {
		errs = append(errs, "at least one [[cryptos]] entry is required")
	}

	seen := make(map[string]bool, len(p.Cryptos))
	for i := range p.Cryptos {
		c := &p.Cryptos[i]
		if c.Name == "" {
			errs = append(errs, fmt.Sprintf("cryptos[%d]: name is required", i))
			continue
		}
		if seen[c.Name] {
			errs = append(errs, fmt.Sprintf("cryptos[%d]: duplicate name %s", i, c.Name))
		}
		seen[c.Name] = true

		if c.Symbol == "" {
			c.Symbol = c.Name + p.QuoteAsset
		}
		if c.ProfitTarget == 0 {
			c.ProfitTarget = p.DefaultProfitTarget
		}
		if c.ProfitTarget <= 0 {
			errs = append(errs, fmt.Sprintf("cryptos[%d] (%s): profit_target must be positive", i, c.Name))
		}
		if c.MaxAllocation <= 0 || c.MaxAllocation > 1.0 {
			errs = append(errs, fmt.Sprintf("cryptos[%d] (%s): max_allocation must be between 0.0 and 1.0", i, c.Name))
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("portfolio validation failed: %s", strings.Join(errs, "; "))
	}
	return p, nil
}

// Active returns the entries the bot currently trades.
func (p *Portfolio) Active() []CryptoConfig {
	active := make([]CryptoConfig, 0, len(p.Cryptos))
	for _, c := range p.Cryptos {
		if c.Active {
			active = append(active, c)
		}
	}
	return active
}

// TotalAllocation sums the max allocations of the active entries. Values
// above 1.0 mean the targets cannot all be reached at once; the caller
// decides whether that deserves a warning.
func (p *Portfolio) TotalAllocation() float64 {
	var total float64
	for _, c := range p.Active() {
		total += c.MaxAllocation
	}
	return total
}

// ProfitTargetFor returns the profit target for a symbol, falling back to
// the file-level default for symbols not in the portfolio.
func (p *Portfolio) ProfitTargetFor(symbol string) float64 {
	for _, c := range p.Cryptos {
		if c.Symbol == symbol {
			return c.ProfitTarget
		}
	}
	return p.DefaultProfitTarget
}

// MaxAllocationFor returns the allocation cap for a symbol. Symbols not in
// the portfolio get a conservative 5%.
func (p *Portfolio) MaxAllocationFor(symbol string) float64 {
	for _, c := range p.Cryptos {
		if c.Symbol == symbol {
			return c.MaxAllocation
		}
	}
	return 0.05
}
