package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/fanout/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify fanout configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the value in the user config file.

Configuration is stored at ~/.config/fanout/config.yaml
Project-specific overrides can be placed in .fanout.yaml
Environment variables override both, e.g. FANOUT_DISPATCH_TIMEOUT=5m`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		if len(args) == 2 {
			return setConfigKey(out, args[0], args[1])
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		if len(args) == 1 {
			value, err := cfg.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, value)
			return nil
		}

		for _, key := range config.Keys() {
			value, _ := cfg.Get(key)
			fmt.Fprintf(out, "%s: %s\n", key, value)
		}
		fmt.Fprintln(out)
		fmt.Fprintf(out, "%s\n", dimStyle.Render("user config: "+config.GetUserConfigPath()))
		if p := config.GetProjectConfigPath(); p != "" {
			fmt.Fprintf(out, "%s\n", dimStyle.Render("project config: "+p))
		}
		return nil
	},
}

// setConfigKey updates one key in the user config file. Only the user file
// is read, so project overrides are not copied into it.
func setConfigKey(out io.Writer, key, value string) error {
	cfg := config.Default()
	path := config.GetUserConfigPath()
	if _, err := os.Stat(path); err == nil {
		if cfg, err = config.LoadFromPath(path); err != nil {
			return err
		}
	}

	if err := cfg.Set(key, value); err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Fprintf(out, "Set %s = %s\n", key, value)
	return nil
}
