package trader

import (
	"errors"
	"fmt"
	"math"

	"tradeidea/config"
)

// ErrInvalidRequest 调用方输入不合法，对应 HTTP 400
var ErrInvalidRequest = errors.New("invalid request")

// InvalidRequestError 指出具体哪个字段不合法
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidRequestError) Unwrap() error { return ErrInvalidRequest }

// Invalid 构造字段级 InvalidRequestError
func Invalid(field, format string, args ...interface{}) error {
	return &InvalidRequestError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// RiskInputs 账户规模与单笔风险百分比
type RiskInputs struct {
	AccountSize float64 `json:"accountSize"`
	RiskPercent float64 `json:"riskPercent"`
}

// Validate 使用默认风控配置校验
func (in RiskInputs) Validate() error {
	return in.ValidateWith(nil)
}

// ValidateWith 账户规模必须为有限正数，风险百分比必须在 (0, MaxDirectRiskPercent]。
// 上限最高为 100，配置更大的值也按 100 处理。
func (in RiskInputs) ValidateWith(cfg *config.RiskConfig) error {
	if cfg == nil {
		cfg = config.DefaultRiskConfig()
	}
	limit := cfg.MaxDirectRiskPercent
	if !finite(limit) || limit <= 0 || limit > 100 {
		limit = 100
	}

	if !finite(in.AccountSize) || in.AccountSize <= 0 {
		return Invalid("accountSize", "must be a finite number greater than 0")
	}
	if !finite(in.RiskPercent) || in.RiskPercent <= 0 {
		return Invalid("tradeRiskPercent", "must be a finite number greater than 0")
	}
	if in.RiskPercent > limit {
		return Invalid("tradeRiskPercent", "%.2f exceeds %g%%", in.RiskPercent, limit)
	}
	return nil
}

// RiskAmount 单笔风险金额，始终由账户规模重新计算。
// 先把百分比换算成比例再相乘，接近 MaxFloat64 的账户规模也不会溢出。
func (in RiskInputs) RiskAmount() float64 {
	return in.AccountSize * (in.RiskPercent / 100)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// safe 把 NaN 和 ±Inf 映射为 0
func safe(v float64) float64 {
	if !finite(v) {
		return 0
	}
	return v
}
