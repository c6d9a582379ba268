// Package validation provides input validation for mintdeploy configuration.
package validation

import (
	"errors"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// Solidity identifiers: letters, digits, '_' and '$', not starting with a digit
var identifierRegex = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Environment names: lowercase alphanumeric with hyphens or underscores
var environmentRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,62}$`)

// ValidateContractName validates a contract name, either bare ("ERC721AMinter")
// or fully qualified ("contracts/ERC721AMinter.sol:ERC721AMinter")
func ValidateContractName(name string) error {
	if name == "" {
		return errors.New("contract name cannot be empty")
	}

	contract := name
	if idx := strings.LastIndex(name, ":"); idx != -1 {
		source := name[:idx]
		contract = name[idx+1:]
		if !strings.HasSuffix(source, ".sol") {
			return errors.New("invalid contract name: source path must end in .sol")
		}
		if strings.Contains(source, "..") {
			return errors.New("invalid contract name: source path cannot contain '..'")
		}
	}

	if !identifierRegex.MatchString(contract) {
		return errors.New("invalid contract name: must be a Solidity identifier")
	}
	return nil
}

// ValidateEnvironmentName validates an environment name such as "local" or "testnet"
func ValidateEnvironmentName(name string) error {
	if name == "" {
		return errors.New("environment name cannot be empty")
	}
	if !environmentRegex.MatchString(name) {
		return errors.New("invalid environment name: must be lowercase alphanumeric with hyphens or underscores")
	}
	return nil
}

// ValidateCompilerVersion validates a solc version: "0.8.9" or "0.8.9+commit.e5eed63a"
func ValidateCompilerVersion(v string) error {
	normalized := strings.TrimPrefix(v, "v")
	if normalized == "" {
		return errors.New("compiler version cannot be empty")
	}
	if !semver.IsValid("v" + normalized) {
		return errors.New("invalid compiler version: must be in format X.Y.Z or X.Y.Z+commit.HASH")
	}

	mainPart := strings.SplitN(strings.SplitN(normalized, "+", 2)[0], "-", 2)[0]
	if strings.Count(mainPart, ".") < 2 {
		return errors.New("invalid compiler version: must be in format X.Y.Z (major.minor.patch)")
	}
	return nil
}

// SameCompilerVersion reports whether two solc versions name the same release,
// ignoring any "+commit" build suffix
func SameCompilerVersion(a, b string) bool {
	va := "v" + strings.TrimPrefix(a, "v")
	vb := "v" + strings.TrimPrefix(b, "v")
	if !semver.IsValid(va) || !semver.IsValid(vb) {
		return false
	}
	return semver.Compare(va, vb) == 0
}

// ValidateAddress validates an Ethereum address
func ValidateAddress(addr string) error {
	if len(addr) != 42 {
		return errors.New("invalid address length: must be 42 characters (0x + 40 hex)")
	}
	if !strings.HasPrefix(addr, "0x") {
		return errors.New("invalid address: must start with 0x")
	}
	for _, c := range addr[2:] {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return errors.New("invalid address: contains non-hex characters")
		}
	}
	return nil
}

// ValidateChainID validates a chain ID
func ValidateChainID(chainID int64) error {
	if chainID <= 0 {
		return errors.New("chain ID must be positive")
	}
	return nil
}
