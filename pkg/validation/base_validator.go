package validation

import (
	"fmt"
	"net/url"

	"github.com/ethereum/go-ethereum/common"
)

// BaseValidator provides field checks shared by the section validators
type BaseValidator struct{}

// ValidateURL requires an absolute http(s) URL.
func (v *BaseValidator) ValidateURL(field, raw string) ValidationErrors {
	if raw == "" {
		return ValidationErrors{{Field: field, Message: "cannot be empty"}}
	}
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return ValidationErrors{{Field: field, Message: "invalid URL"}}
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return ValidationErrors{{Field: field, Message: "URL scheme must be either http or https"}}
	}
	if parsedURL.Host == "" {
		return ValidationErrors{{Field: field, Message: "URL host cannot be empty"}}
	}
	return nil
}

// ValidateAddress requires a hex address in checksum format.
func (v *BaseValidator) ValidateAddress(field, address string) ValidationErrors {
	if address == "" {
		return ValidationErrors{{Field: field, Message: "address cannot be empty"}}
	}
	if !common.IsHexAddress(address) {
		return ValidationErrors{{Field: field, Message: "invalid Ethereum address format"}}
	}
	checksumAddr := common.HexToAddress(address).Hex()
	if address != checksumAddr {
		return ValidationErrors{{Field: field, Message: fmt.Sprintf("address should be in checksum format: %s", checksumAddr)}}
	}
	return nil
}

func (v *BaseValidator) ValidateRange(field string, min, max int64) ValidationErrors {
	if min < 0 {
		return ValidationErrors{{Field: field + ".min", Message: "cannot be negative"}}
	}
	if max < min {
		return ValidationErrors{{Field: field, Message: fmt.Sprintf("max (%d) must not be less than min (%d)", max, min)}}
	}
	return nil
}
