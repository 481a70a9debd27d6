// Package cli implements the cidian command-line interface.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cidian/internal/config"
	"github.com/mesh-intelligence/cidian/internal/logging"
	"github.com/mesh-intelligence/cidian/internal/paths"
	"github.com/mesh-intelligence/cidian/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// envFileName is loaded from the config directory before config.json so
// CIDIAN_* overrides can live next to it.
const envFileName = ".env"

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
}

// app carries the state resolved once per invocation by the root command.
type app struct {
	flags     rootFlags
	configDir string
	dataDir   string
	repo      *config.Repository
	cfg       config.Config
	logger    *slog.Logger
}

// NewRootCmd creates the top-level "cidian" command with global flags and
// all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "cidian",
		Short: "A local vocabulary store for studying Chinese",
		Long: `Cidian keeps your Chinese vocabulary notes, looks up pronunciations in a
prebuilt dictionary, records test results and picks notes to study.`,
		Version: Version,
		// Do not print usage on errors returned by subcommands.
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&a.flags.dataDir, "data-dir", "", "data directory (default: platform data dir)")
	root.PersistentFlags().BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")

	root.AddCommand(newVersionCmd())
	root.AddCommand(a.newInitCmd())
	root.AddCommand(a.newNoteCmd())
	root.AddCommand(a.newDictCmd())
	root.AddCommand(a.newTestCmd())
	root.AddCommand(a.newBackupCmd())
	root.AddCommand(a.newConfigCmd())

	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
	os.Exit(exitSuccess)
}

// exitCode maps caller mistakes to exitUserError and everything else to
// exitSysError.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case errors.Is(err, types.ErrInvalidInput),
		errors.Is(err, types.ErrNotFound),
		errors.Is(err, types.ErrDictionaryNotLoaded),
		errors.Is(err, errUsage):
		return exitUserError
	default:
		return exitSysError
	}
}

// setup resolves directories, loads the config file and installs the logger.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	a.configDir = configDir

	envPath := filepath.Join(configDir, envFileName)
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load %s: %w", envPath, err)
		}
	}

	dataDir, err := paths.ResolveDataDir(a.flags.dataDir)
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}
	a.dataDir = dataDir

	a.repo = config.NewRepository(configDir)
	cfg, err := a.repo.Get()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.NewLogger(cmd.ErrOrStderr(), cfg.Log)
	return nil
}
