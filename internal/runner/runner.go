// Package runner holds the deploy, verify and check entry points. Each one
// returns an error; only the process driver turns it into an exit code.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pendergraft/mintdeploy/internal/chains"
	"github.com/pendergraft/mintdeploy/internal/config"
	"github.com/pendergraft/mintdeploy/internal/contract"
	"github.com/pendergraft/mintdeploy/internal/deployer"
	"github.com/pendergraft/mintdeploy/internal/deployments/domain"
)

// Errors returned by the entry points.
var (
	ErrNoAddress        = errors.New("no deployed address configured or journaled")
	ErrBytecodeMismatch = errors.New("on-chain bytecode does not match artifact")
)

// Deployer deploys a contract by name.
type Deployer interface {
	Deploy(ctx context.Context, contractName string, args contract.ConstructorArgs) (*deployer.Result, error)
}

// Verifier verifies a deployed contract.
type Verifier interface {
	Verify(ctx context.Context, address string, args contract.ConstructorArgs) error
}

// Journal finds previous deployments of an environment.
type Journal interface {
	Latest(ctx context.Context, environment string, chainID int64, contractName string) (*domain.Deployment, error)
}

// FactoryResolver resolves contract names to factories.
type FactoryResolver interface {
	Factory(name string) (*contract.Factory, error)
}

// Checker compares deployed code with an expected runtime bytecode.
type Checker interface {
	VerifyDeployment(ctx context.Context, opts chains.VerifyOptions) (*chains.VerifyResult, error)
}

// RunDeploy deploys the environment's contract with its configured arguments
// and prints the new address.
func RunDeploy(ctx context.Context, out io.Writer, env *config.Environment, d Deployer) error {
	res, err := d.Deploy(ctx, env.Contract, env.PassArgs())
	if err != nil {
		return fmt.Errorf("deploying %s to %s: %w", env.Contract, env.NetworkName, err)
	}

	fmt.Fprintf(out, "%s deployed to: %s\n", contractLabel(env.Contract), res.Address.Hex())
	return nil
}

// RunVerify verifies the environment's deployed contract. The address comes
// from configuration, or the newest confirmed journal record when unset.
func RunVerify(ctx context.Context, out io.Writer, env *config.Environment, v Verifier, journal Journal) error {
	address, err := resolveAddress(ctx, env, journal)
	if err != nil {
		return err
	}

	if err := v.Verify(ctx, address, env.PassArgs()); err != nil {
		return err
	}

	fmt.Fprintf(out, "Successfully verified %s at %s\n", contractLabel(env.Contract), address)
	if url := browserURL(env, address); url != "" {
		fmt.Fprintf(out, "%s\n", url)
	}
	return nil
}

// RunCheck compares the code at the environment's address with the artifact.
func RunCheck(ctx context.Context, out io.Writer, env *config.Environment, resolver FactoryResolver, checker Checker, journal Journal) error {
	address, err := resolveAddress(ctx, env, journal)
	if err != nil {
		return err
	}

	factory, err := resolver.Factory(env.Contract)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", env.Contract, err)
	}

	result, err := checker.VerifyDeployment(ctx, chains.VerifyOptions{
		RPC:          env.Network.RPCURL,
		Address:      address,
		ExpectedCode: factory.DeployedBytecode,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s at %s: %s match\n", factory.Name(), address, result.MatchType)
	fmt.Fprintf(out, "  %s\n", result.Message)
	if !result.Match {
		return ErrBytecodeMismatch
	}
	return nil
}

// ExitCode maps an entry point result to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

func resolveAddress(ctx context.Context, env *config.Environment, journal Journal) (string, error) {
	if address := env.PassAddress(); address != "" {
		return address, nil
	}
	if journal == nil {
		return "", fmt.Errorf("%w for environment %q", ErrNoAddress, env.Name)
	}

	// The journal stores the short contract name
	latest, err := journal.Latest(ctx, env.Name, env.Network.ChainID, contractLabel(env.Contract))
	if errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("%w for environment %q on %s", ErrNoAddress, env.Name, env.NetworkName)
	}
	if err != nil {
		return "", fmt.Errorf("reading deployment journal: %w", err)
	}
	return latest.Address, nil
}

// contractLabel drops the source path from a fully qualified name.
func contractLabel(name string) string {
	_, short := chains.SplitFullyQualifiedName(name)
	return short
}

func browserURL(env *config.Environment, address string) string {
	if env.Network.Explorer == nil || env.Network.Explorer.BrowserURL == "" {
		return ""
	}
	return strings.TrimSuffix(env.Network.Explorer.BrowserURL, "/") + "/address/" + address + "#code"
}
