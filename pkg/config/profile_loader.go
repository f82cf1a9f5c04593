package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MarketProfile is a per-market deployment profile: the currency, gateway
// defaults, and checkout policy for one storefront region. Environment
// variables override profile values at wiring time.
type MarketProfile struct {
	Name     string         `yaml:"name" json:"name"`
	Code     string         `yaml:"code" json:"code"`
	Currency string         `yaml:"currency" json:"currency"`
	Gateway  GatewayProfile `yaml:"gateway" json:"gateway"`
	Checkout CheckoutPolicy `yaml:"checkout" json:"checkout"`
}

// GatewayProfile holds per-market payment gateway defaults.
type GatewayProfile struct {
	Kind             string `yaml:"kind" json:"kind"` // "hosted" | "onchain"
	BaseURL          string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Network          string `yaml:"network,omitempty" json:"network,omitempty"`
	MinConfirmations uint64 `yaml:"min_confirmations,omitempty" json:"min_confirmations,omitempty"`
}

// CheckoutPolicy holds per-market checkout behavior.
type CheckoutPolicy struct {
	PendingOrderTTL string `yaml:"pending_order_ttl,omitempty" json:"pending_order_ttl,omitempty"`
	MaxCartLines    int    `yaml:"max_cart_lines,omitempty" json:"max_cart_lines,omitempty"`
}

// LoadProfile loads a market profile YAML by market code. It reads
// profile_<code>.yaml from the profiles directory.
func LoadProfile(profilesDir, code string) (*MarketProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", code, err)
	}

	var profile MarketProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", code, err)
	}

	if profile.Code == "" {
		profile.Code = code
	}
	return &profile, nil
}

// LoadAllProfiles loads every profile_*.yaml in the profiles directory.
func LoadAllProfiles(profilesDir string) (map[string]*MarketProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*MarketProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var profile MarketProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		if profile.Code == "" {
			base := filepath.Base(path)
			profile.Code = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}
		profiles[profile.Code] = &profile
	}
	return profiles, nil
}

// Apply layers profile defaults under the config: only fields the
// environment left unset are taken from the profile.
func (p *MarketProfile) Apply(cfg *Config) {
	if os.Getenv("GATEWAY_KIND") == "" && p.Gateway.Kind != "" {
		cfg.GatewayKind = p.Gateway.Kind
	}
	if cfg.GatewayBaseURL == "" {
		cfg.GatewayBaseURL = p.Gateway.BaseURL
	}
	if os.Getenv("CHAIN_NETWORK") == "" && p.Gateway.Network != "" {
		cfg.ChainNetwork = p.Gateway.Network
	}
	if os.Getenv("CHAIN_MIN_CONFIRMATIONS") == "" && p.Gateway.MinConfirmations > 0 {
		cfg.MinConfirmations = p.Gateway.MinConfirmations
	}
	if os.Getenv("PENDING_ORDER_TTL") == "" && p.Checkout.PendingOrderTTL != "" {
		if d, err := time.ParseDuration(p.Checkout.PendingOrderTTL); err == nil {
			cfg.PendingOrderTTL = d
		}
	}
	if os.Getenv("DEFAULT_CURRENCY") == "" && p.Currency != "" {
		cfg.Currency = p.Currency
	}
	if os.Getenv("MAX_CART_LINES") == "" && p.Checkout.MaxCartLines > 0 {
		cfg.MaxCartLines = p.Checkout.MaxCartLines
	}
}
