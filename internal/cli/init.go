package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cidian/internal/paths"
)

func (a *app) newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize cidian storage",
		Long: `Create the configuration and data directories, write a default config.json
if none exists and migrate the notes database.`,
		Args: cobra.NoArgs,
		RunE: a.runInit,
	}
}

func (a *app) runInit(cmd *cobra.Command, args []string) error {
	// The config file already exists: setup created it on first read.
	store, err := a.attachBackend()
	if err != nil {
		return err
	}
	if err := store.Detach(); err != nil {
		return fmt.Errorf("finalize storage: %w", err)
	}

	dictPath, err := paths.ResolveDictionaryPath(a.cfg.DictionaryPath, a.dataDir)
	if err != nil {
		return err
	}

	if a.flags.jsonMode {
		return printJSON(cmd.OutOrStdout(), map[string]string{
			"config":     a.repo.Path(),
			"data":       a.dataDir,
			"dictionary": dictPath,
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Cidian initialized successfully")
	fmt.Fprintln(out, "  config:    ", a.repo.Path())
	fmt.Fprintln(out, "  data:      ", a.dataDir)
	if dictPath == "" {
		fmt.Fprintln(out, "  dictionary: none (set dictionary_path to enable lookups)")
	} else {
		fmt.Fprintln(out, "  dictionary:", dictPath)
	}
	return nil
}
