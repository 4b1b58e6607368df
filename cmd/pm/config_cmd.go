package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/ccpm/internal/config"
	"github.com/untoldecay/ccpm/internal/ui"
)

var configCmd = &cobra.Command{
	Use:         "config",
	GroupID:     "maint",
	Short:       "Inspect the effective configuration",
	Annotations: map[string]string{noDB: "true"},
}

// flattenSettings turns viper's nested map into dotted keys.
func flattenSettings(prefix string, m map[string]interface{}, out map[string]interface{}) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]interface{}); ok {
			flattenSettings(key, sub, out)
			continue
		}
		out[key] = v
	}
}

func displayValue(key string, v interface{}) string {
	s := fmt.Sprint(v)
	if strings.HasSuffix(key, "token") && s != "" {
		return "****"
	}
	return s
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every setting with where its value came from",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flat := map[string]interface{}{}
		flattenSettings("", config.AllSettings(), flat)
		keys := make([]string, 0, len(flat))
		for k := range flat {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		if jsonOutput {
			out := make(map[string]map[string]string, len(keys))
			for _, k := range keys {
				out[k] = map[string]string{"value": displayValue(k, flat[k]), "source": string(config.GetValueSource(k))}
			}
			return outputJSON(cmd, map[string]interface{}{"file": config.ConfigFileUsed(), "settings": out})
		}
		rows := make([][]string, 0, len(keys))
		for _, k := range keys {
			rows = append(rows, []string{k, displayValue(k, flat[k]), string(config.GetValueSource(k))})
		}
		file := config.ConfigFileUsed()
		if file == "" {
			file = "(none)"
		}
		printf(cmd, "Config file: %s\n%s\n", file, ui.NewTable(ui.GetWidth(), "Key", "Value", "Source").Rows(rows...).String())
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		flat := map[string]interface{}{}
		flattenSettings("", config.AllSettings(), flat)
		v, ok := flat[key]
		if !ok {
			return fmt.Errorf("unknown config key %q", key)
		}
		if jsonOutput {
			return outputJSON(cmd, map[string]string{"key": key, "value": displayValue(key, v), "source": string(config.GetValueSource(key))})
		}
		printf(cmd, "%s\n", displayValue(key, v))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configListCmd, configGetCmd)
	rootCmd.AddCommand(configCmd)
}
