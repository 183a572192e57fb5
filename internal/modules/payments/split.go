package payments

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type SplitConfig struct {
	Percent         decimal.Decimal
	MasterAccountID string
}

// Split sends Percent of an invoice to the master account.
type Split struct {
	RecipientAccountID string
	Percent            decimal.Decimal
}

// ComputeSplit returns nil unless the charge runs on a sub-account token and
// a master account with a percent in (0, 100] is configured.
func ComputeSplit(cfg SplitConfig, usingSubAccountToken bool) *Split {
	if !usingSubAccountToken {
		return nil
	}
	master := strings.TrimSpace(cfg.MasterAccountID)
	if master == "" || cfg.Percent.Sign() <= 0 || cfg.Percent.GreaterThan(hundred) {
		return nil
	}
	return &Split{RecipientAccountID: master, Percent: cfg.Percent}
}

type settingsSource interface {
	Settings(ctx context.Context) (GatewaySettings, error)
}

type SplitPolicy struct {
	settings settingsSource
	logger   *slog.Logger
}

func NewSplitPolicy(settings settingsSource) *SplitPolicy {
	return &SplitPolicy{settings: settings, logger: slog.Default()}
}

func (p *SplitPolicy) SetLogger(logger *slog.Logger) {
	p.logger = logger
}

func (p *SplitPolicy) Compute(ctx context.Context, tenantID string, usingSubAccountToken bool) *Split {
	if !usingSubAccountToken {
		return nil
	}
	gs, err := p.settings.Settings(ctx)
	if err != nil {
		p.logger.WarnContext(ctx, "split settings unavailable, invoice goes without split", "tenant_id", tenantID, "err", err)
		return nil
	}
	pct, err := decimal.NewFromString(strings.TrimSpace(gs.SplitPercent))
	if err != nil {
		p.logger.WarnContext(ctx, "invalid split percent", "tenant_id", tenantID, "percent", gs.SplitPercent)
		return nil
	}
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		p.logger.WarnContext(ctx, "split percent out of range", "tenant_id", tenantID, "percent", gs.SplitPercent)
		return nil
	}
	return ComputeSplit(SplitConfig{Percent: pct, MasterAccountID: gs.MasterAccountID}, true)
}
