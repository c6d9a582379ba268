// Package foundry reads contract artifacts produced by `forge build`.
package foundry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pendergraft/mintdeploy/internal/chains"
)

// Builder implements chains.Builder for Foundry projects
type Builder struct{}

// New creates a new Foundry builder
func New() *Builder {
	return &Builder{}
}

// Name returns the builder identifier
func (b *Builder) Name() string {
	return "foundry"
}

// DisplayName returns a human-readable name
func (b *Builder) DisplayName() string {
	return "Foundry"
}

// Chain returns the chain this builder targets
func (b *Builder) Chain() string {
	return "evm"
}

// ConfigFile returns the config file name
func (b *Builder) ConfigFile() string {
	return "foundry.toml"
}

// Detect checks if a directory is a Foundry project
func (b *Builder) Detect(dir string) (bool, error) {
	_, err := os.Stat(filepath.Join(dir, b.ConfigFile()))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Resolve finds the artifact for contractName under out/.
// contractName may be fully qualified ("src/Minter.sol:Minter").
func (b *Builder) Resolve(dir string, contractName string) (*chains.Artifact, error) {
	outDir := filepath.Join(dir, "out")
	if _, err := os.Stat(outDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("out directory not found - run 'forge build' first")
	}

	wantSource, name := chains.SplitFullyQualifiedName(contractName)

	var matches []*chains.Artifact
	err := filepath.WalkDir(outDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}

		// out/{Source}.sol/{Contract}.json
		if !strings.HasSuffix(filepath.Dir(path), ".sol") || d.Name() != name+".json" {
			return nil
		}

		artifact, err := b.Parse(path)
		if err != nil {
			if errors.Is(err, chains.ErrNoBytecode) {
				return nil
			}
			return err
		}
		if wantSource != "" && artifact.EVM.SourcePath != wantSource {
			return nil
		}
		matches = append(matches, artifact)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("searching artifacts: %w", err)
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", chains.ErrContractNotFound, contractName)
	case 1:
		return matches[0], nil
	default:
		paths := make([]string, 0, len(matches))
		for _, m := range matches {
			paths = append(paths, m.FullyQualifiedName())
		}
		sort.Strings(paths)
		return nil, fmt.Errorf("%w: %s matches %s", chains.ErrAmbiguousContract, contractName, strings.Join(paths, ", "))
	}
}

// Parse parses a Foundry artifact file
func (b *Builder) Parse(artifactPath string) (*chains.Artifact, error) {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}

	var raw FoundryArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing artifact JSON: %w", err)
	}

	// Interfaces and abstract contracts
	if raw.Bytecode.Object == "" || raw.Bytecode.Object == "0x" {
		return nil, fmt.Errorf("%w: %s", chains.ErrNoBytecode, artifactPath)
	}

	var metadata FoundryMetadata
	if raw.RawMetadata != "" {
		_ = json.Unmarshal([]byte(raw.RawMetadata), &metadata) // Non-fatal, continue without metadata
	}

	return &chains.Artifact{
		Name:  strings.TrimSuffix(filepath.Base(artifactPath), ".json"),
		Chain: "evm",
		EVM: &chains.EVMArtifact{
			SourcePath:       getFirstKey(metadata.Settings.CompilationTarget),
			License:          metadata.Sources.FirstLicense(),
			ABI:              raw.ABI,
			Bytecode:         raw.Bytecode.Object,
			DeployedBytecode: raw.DeployedBytecode.Object,
			ArtifactPath:     artifactPath,
			Compiler: chains.EVMCompiler{
				Version:    metadata.Compiler.Version,
				EVMVersion: metadata.Settings.EVMVersion,
				ViaIR:      metadata.Settings.ViaIR,
				Optimizer: chains.OptimizerConfig{
					Enabled: metadata.Settings.Optimizer.Enabled,
					Runs:    metadata.Settings.Optimizer.Runs,
				},
			},
		},
	}, nil
}

// VerificationInput returns the standard JSON input for artifact. The build-info
// that produced the contract is preferred; without one a per-contract input is
// assembled from rawMetadata and the sources on disk.
func (b *Builder) VerificationInput(dir string, artifact *chains.Artifact) (*chains.VerificationInput, error) {
	if artifact.EVM == nil {
		return nil, fmt.Errorf("artifact %s has no EVM data", artifact.Name)
	}

	vi, err := b.buildInfoInput(dir, artifact.Name, artifact.EVM.SourcePath)
	if err == nil {
		return vi, nil
	}
	if !errors.Is(err, chains.ErrBuildInfoNotFound) {
		return nil, err
	}

	stdJSON, genErr := b.GeneratePerContractStandardJSON(dir, artifact.EVM.ArtifactPath)
	if genErr != nil {
		return nil, fmt.Errorf("%w (fallback failed: %v)", err, genErr)
	}
	return &chains.VerificationInput{
		StandardJSON:    stdJSON,
		SolcLongVersion: artifact.EVM.Compiler.Version,
	}, nil
}

// buildInfoOutputContracts represents output.contracts from Solidity compiler output
type buildInfoOutputContracts map[string]map[string]json.RawMessage

// buildInfoInput finds the build-info whose output contains contracts[sourcePath][contractName].
func (b *Builder) buildInfoInput(dir string, contractName string, sourcePath string) (*chains.VerificationInput, error) {
	buildInfoDir := filepath.Join(dir, "out", "build-info")

	entries, err := os.ReadDir(buildInfoDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: run 'forge build --build-info'", chains.ErrBuildInfoNotFound)
		}
		return nil, fmt.Errorf("reading build-info directory: %w", err)
	}

	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(buildInfoDir, entry.Name()))
		if err != nil {
			continue
		}

		var buildInfo BuildInfo
		if err := json.Unmarshal(data, &buildInfo); err != nil {
			continue
		}

		var output struct {
			Contracts buildInfoOutputContracts `json:"contracts"`
		}
		if err := json.Unmarshal(buildInfo.Output, &output); err != nil {
			continue
		}
		if _, ok := output.Contracts[sourcePath][contractName]; !ok {
			continue
		}

		stdJSON, err := stripFoundryStandardJSONKeys(buildInfo.Input)
		if err != nil {
			return nil, fmt.Errorf("reading standard JSON input from %s: %w", entry.Name(), err)
		}
		return &chains.VerificationInput{
			StandardJSON:    stdJSON,
			SolcLongVersion: buildInfo.SolcLongVersion,
		}, nil
	}

	return nil, fmt.Errorf("%w for %s:%s", chains.ErrBuildInfoNotFound, sourcePath, contractName)
}

// foundryStandardJSONKeysToStrip are top-level keys Foundry adds that the Solidity compiler rejects.
// The standard JSON input format only allows: language, sources, settings.
var foundryStandardJSONKeysToStrip = []string{"allowPaths", "basePath", "includePaths", "version"}

func stripFoundryStandardJSONKeys(input json.RawMessage) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(input, &m); err != nil {
		return nil, err
	}
	for _, key := range foundryStandardJSONKeysToStrip {
		delete(m, key)
	}
	return json.Marshal(m)
}

// standardJSONInput is the structure we build for per-contract verification input
type standardJSONInput struct {
	Language string                   `json:"language"`
	Sources  map[string]sourceContent `json:"sources"`
	Settings standardJSONSettings     `json:"settings"`
}

type sourceContent struct {
	Content string `json:"content"`
}

type standardJSONSettings struct {
	Optimizer       chains.OptimizerConfig         `json:"optimizer"`
	EVMVersion      string                         `json:"evmVersion,omitempty"`
	ViaIR           bool                           `json:"viaIR,omitempty"`
	Libraries       map[string]map[string]string   `json:"libraries,omitempty"`
	Remappings      []string                       `json:"remappings,omitempty"`
	Metadata        MetadataSettings               `json:"metadata,omitempty"`
	OutputSelection map[string]map[string][]string `json:"outputSelection"`
}

// GeneratePerContractStandardJSON builds a minimal standard JSON input from the artifact's
// rawMetadata, containing only the contract's actual dependencies.
func (b *Builder) GeneratePerContractStandardJSON(dir, artifactPath string) ([]byte, error) {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}

	var raw FoundryArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing artifact: %w", err)
	}
	if raw.RawMetadata == "" {
		return nil, fmt.Errorf("artifact has no rawMetadata")
	}

	var metadata FoundryMetadata
	if err := json.Unmarshal([]byte(raw.RawMetadata), &metadata); err != nil {
		return nil, fmt.Errorf("parsing rawMetadata: %w", err)
	}
	if len(metadata.Sources) == 0 {
		return nil, fmt.Errorf("metadata has no sources")
	}

	sources := make(map[string]sourceContent, len(metadata.Sources))
	for srcPath := range metadata.Sources {
		content, err := os.ReadFile(filepath.Join(dir, srcPath))
		if err != nil {
			return nil, fmt.Errorf("reading source %s: %w", srcPath, err)
		}
		sources[srcPath] = sourceContent{Content: string(content)}
	}

	lang := metadata.Language
	if lang == "" {
		lang = "Solidity"
	}

	opt := chains.OptimizerConfig{
		Enabled: metadata.Settings.Optimizer.Enabled,
		Runs:    metadata.Settings.Optimizer.Runs,
	}
	// Runs=0 is only meaningful with the optimizer disabled
	if opt.Enabled && opt.Runs == 0 {
		opt.Runs = 200
	}

	meta := MetadataSettings{BytecodeHash: "ipfs"}
	if m := metadata.Settings.Metadata; m != nil {
		if m.BytecodeHash != "" {
			meta.BytecodeHash = m.BytecodeHash
		}
		meta.UseLiteralContent = m.UseLiteralContent
		meta.AppendCBOR = m.AppendCBOR
	}

	input := standardJSONInput{
		Language: lang,
		Sources:  sources,
		Settings: standardJSONSettings{
			Optimizer:  opt,
			EVMVersion: metadata.Settings.EVMVersion,
			ViaIR:      metadata.Settings.ViaIR,
			Libraries:  metadata.Settings.Libraries,
			Remappings: metadata.Settings.Remappings,
			Metadata:   meta,
			OutputSelection: map[string]map[string][]string{
				"*": {"*": {"abi", "evm.bytecode", "evm.deployedBytecode", "metadata"}},
			},
		},
	}

	return json.MarshalIndent(input, "", "  ")
}

// FoundryArtifact represents the structure of a Foundry artifact JSON file
type FoundryArtifact struct {
	ABI              json.RawMessage `json:"abi"`
	Bytecode         BytecodeObject  `json:"bytecode"`
	DeployedBytecode BytecodeObject  `json:"deployedBytecode"`
	RawMetadata      string          `json:"rawMetadata"`
}

// BytecodeObject represents bytecode in a Foundry artifact
type BytecodeObject struct {
	Object string `json:"object"`
}

// FoundryMetadata represents the parsed rawMetadata field
type FoundryMetadata struct {
	Compiler struct {
		Version string `json:"version"`
	} `json:"compiler"`
	Language string       `json:"language"`
	Settings SettingsMeta `json:"settings"`
	Sources  SourcesMeta  `json:"sources"`
}

// MetadataSettings contains metadata options for standard JSON (bytecodeHash, useLiteralContent, etc.)
type MetadataSettings struct {
	BytecodeHash      string `json:"bytecodeHash,omitempty"`
	UseLiteralContent bool   `json:"useLiteralContent,omitempty"`
	AppendCBOR        *bool  `json:"appendCBOR,omitempty"`
}

// SettingsMeta contains compiler settings
type SettingsMeta struct {
	CompilationTarget map[string]string            `json:"compilationTarget"`
	EVMVersion        string                       `json:"evmVersion"`
	Libraries         map[string]map[string]string `json:"libraries"` // source path -> library name -> address
	Metadata          *MetadataSettings            `json:"metadata,omitempty"`
	Optimizer         chains.OptimizerConfig       `json:"optimizer"`
	Remappings        []string                     `json:"remappings"`
	ViaIR             bool                         `json:"viaIR"`
}

// SourcesMeta contains source file information keyed by path
type SourcesMeta map[string]struct {
	License string `json:"license"`
}

// FirstLicense returns the first license found in sources
func (s SourcesMeta) FirstLicense() string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s[k].License != "" {
			return s[k].License
		}
	}
	return ""
}

// BuildInfo represents a Foundry build-info file
type BuildInfo struct {
	ID              string          `json:"id"`
	SolcVersion     string          `json:"solcVersion"`     // Short: "0.8.9"
	SolcLongVersion string          `json:"solcLongVersion"` // Full: "0.8.9+commit.e5eed63a"
	Input           json.RawMessage `json:"input"`
	Output          json.RawMessage `json:"output"`
}

// compilationTarget has exactly one entry
func getFirstKey(m map[string]string) string {
	for k := range m {
		return k
	}
	return ""
}
