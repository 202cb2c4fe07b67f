package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		shown := *cfg
		shown.Google.Key = redact(shown.Google.Key)
		shown.Geoapify.Key = redact(shown.Geoapify.Key)
		shown.PlaceKit.Key = redact(shown.PlaceKit.Key)

		out, err := yaml.Marshal(shown)
		if err != nil {
			return eris.Wrap(err, "config: marshal")
		}
		fmt.Print(string(out))
		return nil
	},
}

func redact(key string) string {
	if key == "" {
		return ""
	}
	return "<set>"
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
