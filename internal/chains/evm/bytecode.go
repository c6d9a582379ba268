package evm

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/pendergraft/mintdeploy/internal/chains"
)

// CBOR metadata marker (Solidity >=0.6.0) - "ipfs" in CBOR
var metadataMarker = []byte{0xa2, 0x64, 0x69, 0x70, 0x66, 0x73}

// Library placeholder pattern: __$<34 hex chars>$__
var libraryPlaceholder = regexp.MustCompile(`__\$[a-f0-9]{34}\$__`)

// Match types reported by CompareBytecode
const (
	MatchFull    = "full"
	MatchPartial = "partial"
	MatchNone    = "none"
)

// DecodeHex decodes a 0x-prefixed (or bare) hex string.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd length hex string")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding hex: %w", err)
	}
	return b, nil
}

// StripMetadata removes the CBOR metadata appended to bytecode.
//
// solc appends a CBOR map followed by its big-endian uint16 length. When the
// trailing length does not describe a CBOR map the last "ipfs" marker is used.
func StripMetadata(bytecode []byte) []byte {
	if n := len(bytecode); n >= 2 {
		cborLen := int(bytecode[n-2])<<8 | int(bytecode[n-1])
		start := n - 2 - cborLen
		if cborLen > 0 && start >= 0 && bytecode[start]&0xe0 == 0xa0 {
			return bytecode[:start]
		}
	}

	idx := bytes.LastIndex(bytecode, metadataMarker)
	if idx == -1 {
		return bytecode
	}
	return bytecode[:idx]
}

// CompareBytecode compares deployed runtime bytecode to the artifact's deployed bytecode
func CompareBytecode(deployed, expected []byte) *chains.VerifyResult {
	if bytes.Equal(deployed, expected) {
		return &chains.VerifyResult{
			Match:     true,
			MatchType: MatchFull,
			Message:   "Bytecode matches exactly including metadata",
		}
	}

	if bytes.Equal(StripMetadata(deployed), StripMetadata(expected)) {
		return &chains.VerifyResult{
			Match:     true,
			MatchType: MatchPartial,
			Message:   "Executable code matches, metadata differs (different source paths, comments, or build environment)",
		}
	}

	return &chains.VerifyResult{
		Match:     false,
		MatchType: MatchNone,
		Message:   "Bytecode does not match (immutable values or compiler settings may differ)",
	}
}

// HasLibraryPlaceholders reports whether hex bytecode still needs library linking
func HasLibraryPlaceholders(bytecode string) bool {
	return libraryPlaceholder.MatchString(bytecode)
}
