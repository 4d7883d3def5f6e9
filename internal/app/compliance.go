/**
 * @description
 * This file contains the compliance evaluator for on-ramp settlements. It is a
 * pure function over (user, amount, partner) and an immutable configuration
 * snapshot: no side effects, deterministic given its inputs. Checks run in a
 * fixed order and the first failure wins; no further checks run after it.
 *
 * @dependencies
 * - github.com/shopspring/decimal: Exact decimal NGN amounts.
 * - internal/domain: User model.
 */

package app

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nairagate/onramp-service/internal/domain"
)

// DefaultMaxRiskScore is the AML risk ceiling applied when none is configured.
const DefaultMaxRiskScore = 0.7

// ComplianceConfig is the immutable rule configuration the evaluator runs
// against. It is built once at startup from the process configuration.
type ComplianceConfig struct {
	DailyLimit    decimal.Decimal // NGN
	LicensedVASPs map[string]struct{}
	MaxRiskScore  float64
}

// NewComplianceConfig builds a ComplianceConfig from the raw settings.
func NewComplianceConfig(dailyLimit decimal.Decimal, licensedVASPs []string, maxRiskScore float64) ComplianceConfig {
	licensed := make(map[string]struct{}, len(licensedVASPs))
	for _, id := range licensedVASPs {
		licensed[id] = struct{}{}
	}
	if maxRiskScore <= 0 {
		maxRiskScore = DefaultMaxRiskScore
	}
	return ComplianceConfig{
		DailyLimit:    dailyLimit,
		LicensedVASPs: licensed,
		MaxRiskScore:  maxRiskScore,
	}
}

// EvaluateCompliance gates a settlement request. It returns nil when every
// check passes, or the first failing check's rejection. Check order is fixed:
// amount validity, partner licensing, user active flag, daily limit, AML risk.
func EvaluateCompliance(user *domain.User, amount decimal.Decimal, vaspID string, cfg ComplianceConfig) *RejectionError {
	if amount.Sign() <= 0 {
		return reject(CodeInvalidAmount, "amount must be a positive value")
	}
	if _, ok := cfg.LicensedVASPs[vaspID]; !ok {
		return reject(CodeUnlicensedPartner, fmt.Sprintf("partner %q is not a licensed VASP", vaspID))
	}
	if !user.Active {
		return reject(CodeUserInactive, "user account is deactivated")
	}
	if amount.Cmp(cfg.DailyLimit) > 0 {
		return reject(CodeLimitExceeded, fmt.Sprintf("amount exceeds the daily limit of %s NGN", cfg.DailyLimit.String()))
	}
	if user.RiskScore > cfg.MaxRiskScore {
		return reject(CodeAMLRisk, "user risk score exceeds the AML threshold")
	}
	return nil
}
