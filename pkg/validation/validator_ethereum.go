package validation

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zama-ai/testnet-dispatcher/pkg/config"
)

// maxUnitDecimals bounds unitDecimals so ToBaseUnits stays well inside uint256.
const maxUnitDecimals = 36

type EthereumValidator struct {
	BaseValidator
}

func NewEthereumValidator() *EthereumValidator {
	return &EthereumValidator{}
}

func (v *EthereumValidator) ValidateNetwork(network *config.Network) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, v.ValidateURL("network.rpcUrl", network.RpcURL)...)
	if network.FallbackRpcURL != "" {
		errors = append(errors, v.ValidateURL("network.fallbackRpcUrl", network.FallbackRpcURL)...)
	}

	if network.ChainIDValue() == nil {
		errors = append(errors, ValidationError{
			Field:   "network.chainId",
			Message: "must be a positive integer",
		})
	}

	if network.HttpSSLVerify != "" && network.HttpSSLVerify != "true" && network.HttpSSLVerify != "false" {
		errors = append(errors, ValidationError{
			Field:   "network.httpSSLVerify",
			Message: "SSL verification must be either 'true' or 'false'",
		})
	}

	if network.UnitDecimals != nil && (*network.UnitDecimals < 0 || *network.UnitDecimals > maxUnitDecimals) {
		errors = append(errors, ValidationError{
			Field:   "network.unitDecimals",
			Message: fmt.Sprintf("must be between 0 and %d", maxUnitDecimals),
		})
	}

	if network.ConnectDelay < 0 {
		errors = append(errors, ValidationError{
			Field:   "network.connectDelay",
			Message: "cannot be negative",
		})
	}

	return errors
}

func (v *EthereumValidator) ValidateDispatch(dispatch *config.Dispatch) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, v.ValidateAddress("dispatch.destination", dispatch.Destination)...)
	if common.IsHexAddress(dispatch.Destination) && common.HexToAddress(dispatch.Destination) == (common.Address{}) {
		errors = append(errors, ValidationError{
			Field:   "dispatch.destination",
			Message: "zero address is not a valid destination",
		})
	}

	if dispatch.GasLimit < 21000 {
		errors = append(errors, ValidationError{
			Field:   "dispatch.gasLimit",
			Message: "must be at least 21000",
		})
	}

	if dispatch.GasPriceGwei.Min == 0 {
		errors = append(errors, ValidationError{
			Field:   "dispatch.gasPriceGwei.min",
			Message: "must be positive",
		})
	} else if dispatch.GasPriceGwei.Max < dispatch.GasPriceGwei.Min {
		errors = append(errors, ValidationError{
			Field:   "dispatch.gasPriceGwei",
			Message: fmt.Sprintf("max (%d) must not be less than min (%d)", dispatch.GasPriceGwei.Max, dispatch.GasPriceGwei.Min),
		})
	}

	min, max := dispatch.Amount.Bounds()
	switch {
	case min.Sign() <= 0:
		errors = append(errors, ValidationError{
			Field:   "dispatch.amount.min",
			Message: "must be positive",
		})
	case max.LessThan(min):
		errors = append(errors, ValidationError{
			Field:   "dispatch.amount",
			Message: fmt.Sprintf("max (%s) must not be less than min (%s)", max, min),
		})
	}
	if precision := dispatch.Amount.Precision; precision != nil && (*precision < 0 || *precision > 18) {
		errors = append(errors, ValidationError{
			Field:   "dispatch.amount.precision",
			Message: "must be between 0 and 18",
		})
	}

	if dispatch.TxPerWallet.Min < 1 {
		errors = append(errors, ValidationError{
			Field:   "dispatch.txPerWallet.min",
			Message: "must be at least 1",
		})
	} else {
		errors = append(errors, v.ValidateRange("dispatch.txPerWallet", int64(dispatch.TxPerWallet.Min), int64(dispatch.TxPerWallet.Max))...)
	}

	return errors
}

// ValidateUnit checks the unit name is usable as a metric label.
func (v *EthereumValidator) ValidateUnit(network *config.Network) ValidationErrors {
	if strings.TrimSpace(network.Unit) == "" {
		return ValidationErrors{{Field: "network.unit", Message: "unit cannot be empty"}}
	}
	if strings.ContainsAny(network.Unit, " \t\"") {
		return ValidationErrors{{Field: "network.unit", Message: "unit cannot contain whitespace or quotes"}}
	}
	return nil
}
