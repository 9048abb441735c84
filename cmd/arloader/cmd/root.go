// Package cmd implements the arloader CLI surface: argument parsing,
// flag wiring, and table rendering, with every subcommand delegating
// to pkg/wallet.
package cmd

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liteseed/arloader/internal/pipeline"
	"github.com/liteseed/arloader/internal/signer"
	"github.com/liteseed/arloader/internal/solana"
	"github.com/liteseed/arloader/internal/status"
	"github.com/liteseed/arloader/pkg/wallet"
)

var (
	flagGatewayURL        string
	flagKeypairPath       string
	flagARDefaultKeypair  bool
	flagLogDir            string
	flagBundleSizeMiB     int64
	flagRewardMultiplier  float64
	flagWithSol           bool
	flagSolKeypairPath    string
	flagSolCoSignerURL    string
	flagNoBundle          bool
	flagStatuses          []string
	flagMaxConfirms       int64
	flagFilePaths         []string
	flagManifestPath      string
	flagLinkFile          string
)

var rootCmd = &cobra.Command{
	Use:   "arloader",
	Short: "Upload files to the Arweave permanent-storage network",
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&flagGatewayURL, "gateway", envOr("AR_BASE_URL", "https://arweave.net"), "Arweave gateway base URL")
	f.StringVar(&flagKeypairPath, "ar-keypair-path", os.Getenv("AR_KEYPAIR_PATH"), "path to the Arweave wallet JWK file")
	f.BoolVar(&flagARDefaultKeypair, "ar-default-keypair", false, "use the default Arweave keypair location")
	f.StringVar(&flagLogDir, "log-dir", "", "status directory (default: arloader_<6 random chars> next to the first input)")
	f.Int64Var(&flagBundleSizeMiB, "bundle-size", pipeline.DefaultBundleSize/pipeline.MiB, "bundle size cap in MiB")
	f.Float64Var(&flagRewardMultiplier, "reward-multiplier", 1.0, "multiplier applied to the quoted winston price")
	f.BoolVar(&flagWithSol, "with-sol", false, "co-sign transactions via a Solana co-signer instead of self-signing")
	f.StringVar(&flagSolKeypairPath, "sol-keypair-path", "", "path to the Solana payer keypair's public key")
	f.StringVar(&flagSolCoSignerURL, "sol-cosigner-url", "", "Solana co-signer RPC endpoint")
	f.BoolVar(&flagNoBundle, "no-bundle", false, "upload each file as its own transaction instead of bundling")
	f.StringSliceVar(&flagStatuses, "statuses", nil, "status values to select for reupload")
	f.Int64Var(&flagMaxConfirms, "max-confirms", 0, "reupload files with fewer than this many confirmations")
	f.StringSliceVar(&flagFilePaths, "file-paths", nil, "files to operate on")
	f.StringVar(&flagManifestPath, "manifest-path", "", "local path the path manifest indexes")
	f.StringVar(&flagLinkFile, "link-file", "", "file to write the resulting manifest/transaction link to")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// expandHome expands a leading "~" to the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// defaultLogDir builds "arloader_<6 random base64url chars>" next to
// firstInput, used when --log-dir is omitted.
func defaultLogDir(firstInput string) (string, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate log dir suffix: %w", err)
	}
	suffix := base64.RawURLEncoding.EncodeToString(buf[:])[:6]
	return filepath.Join(filepath.Dir(firstInput), "arloader_"+suffix), nil
}

// resolveLogDir returns --log-dir if set, else the default relative to
// the first file in paths.
func resolveLogDir(paths []string) (string, error) {
	if flagLogDir != "" {
		return expandHome(flagLogDir), nil
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("--log-dir is required when no input files are given")
	}
	return defaultLogDir(paths[0])
}

// resolveKeypairPath applies --ar-default-keypair/--ar-keypair-path/
// AR_KEYPAIR_PATH precedence (flags win over the environment).
func resolveKeypairPath() (string, error) {
	if flagARDefaultKeypair {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve default keypair location: %w", err)
		}
		return filepath.Join(home, ".arweave", "keyfile.json"), nil
	}
	if flagKeypairPath != "" {
		return expandHome(flagKeypairPath), nil
	}
	return "", fmt.Errorf("no keypair configured: set --ar-keypair-path, --ar-default-keypair, or AR_KEYPAIR_PATH")
}

// loadWallet builds a wallet.Wallet from the persistent flags.
func loadWallet(logDir string) (*wallet.Wallet, error) {
	keypairPath, err := resolveKeypairPath()
	if err != nil {
		return nil, err
	}
	s, err := signer.FromPath(keypairPath)
	if err != nil {
		return nil, fmt.Errorf("load keypair: %w", err)
	}
	return wallet.New(s, flagGatewayURL, logDir)
}

// coSignerFromFlags builds a pipeline.SolanaCoSigner when --with-sol is
// set, or nil otherwise (self-signing).
func coSignerFromFlags() (pipeline.SolanaCoSigner, error) {
	if !flagWithSol {
		return nil, nil
	}
	if flagSolKeypairPath == "" || flagSolCoSignerURL == "" {
		return nil, fmt.Errorf("--with-sol requires --sol-keypair-path and --sol-cosigner-url")
	}
	payerPub, err := os.ReadFile(expandHome(flagSolKeypairPath))
	if err != nil {
		return nil, fmt.Errorf("read sol keypair: %w", err)
	}
	return solana.New(flagSolCoSignerURL, payerPub), nil
}

// parseStatuses converts --statuses string flags into status.State
// values, matching case-insensitively and ignoring underscores (so
// "NotFound" selects status.StateNotFound).
func parseStatuses(raw []string) []status.State {
	known := []status.State{status.StateSubmitted, status.StatePending, status.StateConfirmed, status.StateNotFound}
	out := make([]status.State, 0, len(raw))
	for _, s := range raw {
		state := status.State(strings.ToLower(s))
		for _, k := range known {
			if strings.ReplaceAll(string(k), "_", "") == strings.ReplaceAll(string(state), "_", "") {
				state = k
			}
		}
		out = append(out, state)
	}
	return out
}

func pipelineConfig() pipeline.Config {
	return pipeline.Config{
		BundleSize:       flagBundleSizeMiB * pipeline.MiB,
		RewardMultiplier: flagRewardMultiplier,
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
