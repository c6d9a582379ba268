// Package hardhat reads contract artifacts produced by `npx hardhat compile`.
//
// Layout:
//
//	artifacts/<sourceName>/<Contract>.json      ABI and bytecode
//	artifacts/<sourceName>/<Contract>.dbg.json  pointer to the build-info
//	artifacts/build-info/<id>.json              standard JSON input and solc version
package hardhat

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

// configFiles are the hardhat config names in detection order.
var configFiles = []string{"hardhat.config.ts", "hardhat.config.js", "hardhat.config.cjs", "hardhat.config.mjs"}

// Builder implements chains.Builder for Hardhat projects
type Builder struct{}

// New creates a new Hardhat builder
func New() *Builder {
	return &Builder{}
}

// Name returns the builder identifier
func (b *Builder) Name() string {
	return "hardhat"
}

// DisplayName returns a human-readable name
func (b *Builder) DisplayName() string {
	return "Hardhat"
}

// Chain returns the chain this builder targets
func (b *Builder) Chain() string {
	return "evm"
}

// ConfigFile returns the primary config file name
func (b *Builder) ConfigFile() string {
	return configFiles[0]
}

// Detect checks if a directory is a Hardhat project
func (b *Builder) Detect(dir string) (bool, error) {
	for _, name := range configFiles {
		_, err := os.Stat(filepath.Join(dir, name))
		if err == nil {
			return true, nil
		}
		if !os.IsNotExist(err) {
			return false, err
		}
	}
	return false, nil
}

// Resolve finds the artifact for contractName under artifacts/.
// contractName may be fully qualified ("contracts/ERC721AMinter.sol:ERC721AMinter").
func (b *Builder) Resolve(dir string, contractName string) (*chains.Artifact, error) {
	artifactsDir := filepath.Join(dir, "artifacts")
	if _, err := os.Stat(artifactsDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("artifacts directory not found - run 'npx hardhat compile' first")
	}

	wantSource, name := chains.SplitFullyQualifiedName(contractName)

	var matches []*chains.Artifact
	err := filepath.WalkDir(artifactsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != name+".json" || !strings.HasSuffix(filepath.Dir(path), ".sol") {
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
	default:
		names := make([]string, 0, len(matches))
		for _, m := range matches {
			names = append(names, m.FullyQualifiedName())
		}
		sort.Strings(names)
		return nil, fmt.Errorf("%w: %s matches %s", chains.ErrAmbiguousContract, contractName, strings.Join(names, ", "))
	}

	artifact := matches[0]
	if err := b.attachBuildInfo(artifact); err != nil {
		return nil, err
	}
	return artifact, nil
}

// Parse parses a Hardhat artifact file
func (b *Builder) Parse(artifactPath string) (*chains.Artifact, error) {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}

	var raw Artifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing artifact JSON: %w", err)
	}
	if raw.Format != "" && !strings.HasPrefix(raw.Format, "hh-sol-artifact") {
		return nil, fmt.Errorf("%s: unexpected artifact format %q", artifactPath, raw.Format)
	}
	if raw.Bytecode == "" || raw.Bytecode == "0x" {
		return nil, fmt.Errorf("%w: %s", chains.ErrNoBytecode, artifactPath)
	}

	name := raw.ContractName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(artifactPath), ".json")
	}

	return &chains.Artifact{
		Name:  name,
		Chain: "evm",
		EVM: &chains.EVMArtifact{
			SourcePath:       raw.SourceName,
			ABI:              raw.ABI,
			Bytecode:         raw.Bytecode,
			DeployedBytecode: raw.DeployedBytecode,
			ArtifactPath:     artifactPath,
		},
	}, nil
}

// attachBuildInfo follows the .dbg.json pointer and fills in compiler settings.
// A missing debug file leaves the compiler settings empty.
func (b *Builder) attachBuildInfo(artifact *chains.Artifact) error {
	dbgPath := strings.TrimSuffix(artifact.EVM.ArtifactPath, ".json") + ".dbg.json"
	data, err := os.ReadFile(dbgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading debug file: %w", err)
	}

	var dbg DebugFile
	if err := json.Unmarshal(data, &dbg); err != nil {
		return fmt.Errorf("parsing debug file %s: %w", dbgPath, err)
	}
	if dbg.BuildInfo == "" {
		return nil
	}

	buildInfoPath := dbg.BuildInfo
	if !filepath.IsAbs(buildInfoPath) {
		buildInfoPath = filepath.Join(filepath.Dir(dbgPath), filepath.FromSlash(buildInfoPath))
	}
	artifact.EVM.BuildInfoPath = buildInfoPath

	info, err := readBuildInfo(buildInfoPath)
	if err != nil {
		if errors.Is(err, chains.ErrBuildInfoNotFound) {
			return nil
		}
		return err
	}

	var input struct {
		Settings struct {
			Optimizer  chains.OptimizerConfig `json:"optimizer"`
			EVMVersion string                 `json:"evmVersion"`
			ViaIR      bool                   `json:"viaIR"`
		} `json:"settings"`
	}
	if err := json.Unmarshal(info.Input, &input); err != nil {
		return fmt.Errorf("parsing build-info input: %w", err)
	}

	artifact.EVM.Compiler = chains.EVMCompiler{
		Version:    info.SolcLongVersion,
		Optimizer:  input.Settings.Optimizer,
		EVMVersion: input.Settings.EVMVersion,
		ViaIR:      input.Settings.ViaIR,
	}
	return nil
}

// VerificationInput returns the standard JSON input recorded in the artifact's build-info
func (b *Builder) VerificationInput(dir string, artifact *chains.Artifact) (*chains.VerificationInput, error) {
	if artifact.EVM == nil {
		return nil, fmt.Errorf("artifact %s has no EVM data", artifact.Name)
	}
	if artifact.EVM.BuildInfoPath == "" {
		return nil, fmt.Errorf("%w for %s: run 'npx hardhat compile'", chains.ErrBuildInfoNotFound, artifact.FullyQualifiedName())
	}

	info, err := readBuildInfo(artifact.EVM.BuildInfoPath)
	if err != nil {
		return nil, err
	}
	if len(info.Input) == 0 {
		return nil, fmt.Errorf("build-info %s has no input", artifact.EVM.BuildInfoPath)
	}

	return &chains.VerificationInput{
		StandardJSON:    info.Input,
		SolcLongVersion: info.SolcLongVersion,
	}, nil
}

func readBuildInfo(path string) (*BuildInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", chains.ErrBuildInfoNotFound, path)
		}
		return nil, fmt.Errorf("reading build-info: %w", err)
	}

	var info BuildInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parsing build-info %s: %w", path, err)
	}
	return &info, nil
}

// Artifact is the hh-sol-artifact-1 file format
type Artifact struct {
	Format           string          `json:"_format"`
	ContractName     string          `json:"contractName"`
	SourceName       string          `json:"sourceName"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         string          `json:"bytecode"`
	DeployedBytecode string          `json:"deployedBytecode"`
}

// DebugFile is the hh-sol-dbg-1 file format
type DebugFile struct {
	Format    string `json:"_format"`
	BuildInfo string `json:"buildInfo"` // relative to the debug file
}

// BuildInfo is the hh-sol-build-info-1 file format
type BuildInfo struct {
	Format          string          `json:"_format"`
	ID              string          `json:"id"`
	SolcVersion     string          `json:"solcVersion"`
	SolcLongVersion string          `json:"solcLongVersion"`
	Input           json.RawMessage `json:"input"`
}
