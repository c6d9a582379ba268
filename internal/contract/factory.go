// Package contract turns compiled artifacts into deployable factories and binds
// configured constructor arguments to the constructor ABI.
package contract

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/pendergraft/mintdeploy/internal/chains"
	"github.com/pendergraft/mintdeploy/internal/chains/evm"
)

// Errors returned while building factories and binding arguments.
var (
	ErrArgumentCount       = errors.New("constructor argument count mismatch")
	ErrArgumentType        = errors.New("constructor argument type mismatch")
	ErrNoBytecode          = errors.New("artifact has no creation bytecode")
	ErrUnlinkedLibraries   = errors.New("bytecode has unlinked library placeholders")
	ErrUnsupportedArtifact = errors.New("artifact is not an EVM contract")
)

// ConstructorArgs are constructor values in declaration order.
type ConstructorArgs []any

// Factory is a resolved contract: its ABI and creation bytecode.
type Factory struct {
	Artifact         *chains.Artifact
	ABI              abi.ABI
	Bytecode         []byte
	DeployedBytecode []byte
}

// NewFactory parses the ABI and bytecode of artifact.
func NewFactory(artifact *chains.Artifact) (*Factory, error) {
	if artifact == nil || artifact.EVM == nil {
		return nil, ErrUnsupportedArtifact
	}
	if evm.HasLibraryPlaceholders(artifact.EVM.Bytecode) {
		return nil, fmt.Errorf("%w: %s", ErrUnlinkedLibraries, artifact.FullyQualifiedName())
	}

	bytecode, err := evm.DecodeHex(artifact.EVM.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("decoding bytecode of %s: %w", artifact.Name, err)
	}
	if len(bytecode) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoBytecode, artifact.Name)
	}

	deployed, err := evm.DecodeHex(artifact.EVM.DeployedBytecode)
	if err != nil {
		return nil, fmt.Errorf("decoding deployed bytecode of %s: %w", artifact.Name, err)
	}

	parsed, err := abi.JSON(bytes.NewReader(artifact.EVM.ABI))
	if err != nil {
		return nil, fmt.Errorf("parsing ABI of %s: %w", artifact.Name, err)
	}

	return &Factory{
		Artifact:         artifact,
		ABI:              parsed,
		Bytecode:         bytecode,
		DeployedBytecode: deployed,
	}, nil
}

// Name returns the contract name.
func (f *Factory) Name() string {
	return f.Artifact.Name
}

// FullyQualifiedName returns "sourcePath:Name".
func (f *Factory) FullyQualifiedName() string {
	return f.Artifact.FullyQualifiedName()
}

// Convert checks args against the constructor inputs and converts each value
// to the Go type the ABI encoder expects.
func (f *Factory) Convert(args ConstructorArgs) ([]any, error) {
	inputs := f.ABI.Constructor.Inputs
	if len(args) != len(inputs) {
		return nil, fmt.Errorf("%w: %s expects %d, got %d", ErrArgumentCount, f.Name(), len(inputs), len(args))
	}

	out := make([]any, len(args))
	for i, input := range inputs {
		v, err := convert(input.Type, args[i])
		if err != nil {
			name := input.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i)
			}
			return nil, fmt.Errorf("%w: argument %d (%s %s): %v", ErrArgumentType, i, input.Type.String(), name, err)
		}
		out[i] = v
	}
	return out, nil
}

// Pack converts args and returns the converted values together with their ABI encoding.
func (f *Factory) Pack(args ConstructorArgs) ([]any, []byte, error) {
	converted, err := f.Convert(args)
	if err != nil {
		return nil, nil, err
	}
	encoded, err := f.ABI.Pack("", converted...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrArgumentType, err)
	}
	return converted, encoded, nil
}
