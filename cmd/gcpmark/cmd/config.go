package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/gcpmark/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or create configuration files",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration as YAML",
	Long: `Print the configuration after merging defaults, the config file,
GCPMARK_ environment variables (and .env) and command-line flags.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		out := cmd.OutOrStdout()

		if used := GetConfigLoader().GetConfigFileUsed(); used != "" {
			_, _ = fmt.Fprintf(out, "# config file: %s\n", used)
		} else {
			_, _ = fmt.Fprintln(out, "# config file: none (defaults and environment)")
		}

		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("encode configuration: %w", err)
		}
		return enc.Close()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [file]",
	Short: "Write a configuration file with the defaults",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file := config.ConfigFileName + ".yaml"
		if len(args) == 1 {
			file = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(file); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", file)
		}
		if err := config.GenerateDefaultConfigFile(file); err != nil {
			return fmt.Errorf("write configuration: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", file)
		return nil
	},
}

var configPathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "List the directories searched for gcpmark.yaml",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, p := range config.GetConfigSearchPaths() {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), p)
		}
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configInitCmd, configPathsCmd)
	configInitCmd.Flags().BoolP("force", "f", false, "overwrite an existing file")
}
