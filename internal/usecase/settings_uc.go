package usecase

import (
	"context"
	"encoding/json"
	"strconv"

	"fanpay/internal/domain"
	"fanpay/internal/domain/ports/repository"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Platform-tunable setting keys. Defaults apply when the row is absent.
const (
	SettingMaxDailyWithdrawals = "max_daily_withdrawals"
	SettingMaxDailyAmount      = "max_daily_amount"
	SettingCooldownHours       = "cooldown_hours"
	SettingManualThreshold     = "manual_approval_threshold"
	SettingMinPayout           = "min_payout"
	SettingCoinToBRL           = "coin_to_brl"
	SettingApprovalScore       = "risk_approval_score"
)

var settingDefaults = map[string]string{
	SettingMaxDailyWithdrawals: "3",
	SettingMaxDailyAmount:      "10000",
	SettingCooldownHours:       "24",
	SettingManualThreshold:     "500",
	SettingMinPayout:           "50",
	SettingCoinToBRL:           "0.01",
	SettingApprovalScore:       "50",
}

// Compile-time check
var _ SettingsUseCase = (*settingsUC)(nil)

type SettingsUseCase interface {
	Int(ctx context.Context, key string) int
	Decimal(ctx context.Context, key string) decimal.Decimal
	All(ctx context.Context) (map[string]string, error)
	Update(ctx context.Context, updates map[string]string, adminID string) error
}

type settingsUC struct {
	repo repository.SettingsRepository
	log  *zerolog.Logger
}

func NewSettingsUseCase(repo repository.SettingsRepository, logger *zerolog.Logger) *settingsUC {
	l := logger.With().Str("component", "SettingsUC").Logger()
	return &settingsUC{repo: repo, log: &l}
}

func (s *settingsUC) raw(ctx context.Context, key string) string {
	v, err := s.repo.Get(ctx, nil, key)
	if err != nil || v == "" {
		return settingDefaults[key]
	}
	return v
}

func (s *settingsUC) Int(ctx context.Context, key string) int {
	v := s.raw(ctx, key)
	n, err := strconv.Atoi(v)
	if err != nil {
		s.log.Warn().Str("key", key).Str("value", v).Msg("non-integer setting, using default")
		n, _ = strconv.Atoi(settingDefaults[key])
	}
	return n
}

func (s *settingsUC) Decimal(ctx context.Context, key string) decimal.Decimal {
	v := s.raw(ctx, key)
	d, err := decimal.NewFromString(v)
	if err != nil {
		s.log.Warn().Str("key", key).Str("value", v).Msg("non-decimal setting, using default")
		d, _ = decimal.NewFromString(settingDefaults[key])
	}
	return d
}

func (s *settingsUC) All(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string, len(settingDefaults))
	for k, v := range settingDefaults {
		out[k] = v
	}
	stored, err := s.repo.All(ctx, nil)
	if err != nil {
		// Table may be empty or unreachable; defaults still stand.
		s.log.Warn().Err(err).Msg("settings read failed, serving defaults")
		return out, nil
	}
	for k, v := range stored {
		if _, known := settingDefaults[k]; known {
			out[k] = v
		}
	}
	return out, nil
}

func (s *settingsUC) Update(ctx context.Context, updates map[string]string, adminID string) error {
	for k, v := range updates {
		if _, known := settingDefaults[k]; !known {
			return domain.ErrInvalidArgument
		}
		if !json.Valid([]byte(v)) {
			return domain.ErrInvalidArgument
		}
		if err := s.repo.Set(ctx, nil, k, v, adminID); err != nil {
			return err
		}
	}
	return nil
}
