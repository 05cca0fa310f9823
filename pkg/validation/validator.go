package validation

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/zama-ai/testnet-dispatcher/pkg/config"
	"github.com/zama-ai/testnet-dispatcher/pkg/logger"
)

// ValidationError represents a validation error with a specific field and message
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors holds multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var errMsgs []string
	for _, err := range e {
		errMsgs = append(errMsgs, err.Error())
	}
	return strings.Join(errMsgs, "; ")
}

// ConfigValidator handles validation of the entire configuration
type ConfigValidator struct {
	ethereum *EthereumValidator
	BaseValidator
}

func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{
		ethereum: NewEthereumValidator(),
	}
}

// ValidateConfig validates a normalized configuration and returns every
// problem found as a single ValidationErrors value.
func (v *ConfigValidator) ValidateConfig(cfg *config.Schema) error {
	var allErrors ValidationErrors

	allErrors = append(allErrors, v.validateGlobal(&cfg.Global)...)
	allErrors = append(allErrors, v.ethereum.ValidateNetwork(&cfg.Network)...)
	allErrors = append(allErrors, v.ethereum.ValidateUnit(&cfg.Network)...)
	allErrors = append(allErrors, v.ethereum.ValidateDispatch(&cfg.Dispatch)...)
	allErrors = append(allErrors, v.validateWallets(&cfg.Wallets)...)
	allErrors = append(allErrors, v.validatePacing(&cfg.Pacing)...)
	if cfg.Faucet != nil && cfg.Faucet.Enabled {
		allErrors = append(allErrors, v.validateFaucet(cfg.Faucet)...)
	}
	allErrors = append(allErrors, v.validateSchedule(&cfg.Schedule)...)

	if len(allErrors) > 0 {
		return allErrors
	}
	return nil
}

func (v *ConfigValidator) validateGlobal(global *config.Global) ValidationErrors {
	var errors ValidationErrors
	logger.Debugf("validating global config: %+v", *global)

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(global.LogLevel)] {
		errors = append(errors, ValidationError{
			Field:   "global.logLevel",
			Message: "must be one of: debug, info, warn, error",
		})
	}

	return errors
}

func (v *ConfigValidator) validateWallets(wallets *config.Wallets) ValidationErrors {
	var errors ValidationErrors
	if wallets.Path == "" {
		errors = append(errors, ValidationError{
			Field:   "wallets.path",
			Message: "cannot be empty",
		})
	}
	if wallets.Limit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "wallets.limit",
			Message: "must be positive",
		})
	}
	return errors
}

func (v *ConfigValidator) validatePacing(pacing *config.Pacing) ValidationErrors {
	var errors ValidationErrors
	if r := pacing.BetweenTransactions; r != nil {
		errors = append(errors, v.ValidateRange("pacing.betweenTransactions", int64(r.Min), int64(r.Max))...)
	}
	if r := pacing.BetweenWallets; r != nil {
		errors = append(errors, v.ValidateRange("pacing.betweenWallets", int64(r.Min), int64(r.Max))...)
	}
	if pacing.MaxPerMinute < 0 {
		errors = append(errors, ValidationError{
			Field:   "pacing.maxPerMinute",
			Message: "cannot be negative",
		})
	}
	return errors
}

func (v *ConfigValidator) validateFaucet(faucet *config.Faucet) ValidationErrors {
	var errors ValidationErrors
	errors = append(errors, v.ValidateURL("faucet.url", faucet.URL)...)
	if faucet.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "faucet.timeout",
			Message: "must be positive",
		})
	}
	if faucet.Retries != nil && *faucet.Retries < 0 {
		errors = append(errors, ValidationError{
			Field:   "faucet.retries",
			Message: "cannot be negative",
		})
	}
	return errors
}

func (v *ConfigValidator) validateSchedule(schedule *config.Schedule) ValidationErrors {
	if _, err := cron.ParseStandard(schedule.Cron); err != nil {
		return ValidationErrors{{
			Field:   "schedule.cron",
			Message: fmt.Sprintf("invalid schedule %q: %v", schedule.Cron, err),
		}}
	}
	return nil
}
