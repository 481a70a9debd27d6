package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/cidian/internal/config"
)

func (a *app) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and change configuration",
		Long: fmt.Sprintf(`Config reads and writes config.json in the configuration directory.
CIDIAN_* environment variables override values from the file.

Keys: %s`, strings.Join(config.Keys, ", ")),
	}
	cmd.AddCommand(a.newConfigShowCmd())
	cmd.AddCommand(a.newConfigGetCmd())
	cmd.AddCommand(a.newConfigSetCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the location of config.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), a.repo.Path())
			return nil
		},
	})
	return cmd
}

func (a *app) newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), a.cfg)
			}
			out, err := yaml.Marshal(a.cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func (a *app) newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := a.cfg.Value(args[0])
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]string{args[0]: value})
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
}

func (a *app) newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one configuration value",
		Long: `Set validates the value, writes config.json atomically and prints the new
value.

Example:
  cidian config set backup_directory ~/Dropbox/cidian
  cidian config set backup_retention 5
  cidian config set log.level debug`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.repo.Set(args[0], args[1])
			if err != nil {
				return err
			}
			a.cfg = cfg
			value, _ := cfg.Value(args[0])
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]string{args[0]: value})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], value)
			return nil
		},
	}
}
