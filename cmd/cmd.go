package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/fluxlora/loraconv/convert"
	"github.com/fluxlora/loraconv/envconfig"
	"github.com/fluxlora/loraconv/logutil"
)

func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

func envDocs(names ...string) []envconfig.EnvVar {
	all := envconfig.AsMap()
	envs := make([]envconfig.EnvVar, 0, len(names))
	for _, name := range names {
		envs = append(envs, all[name])
	}
	return envs
}

// newTranslator builds a Translator from the --rules flag, LORACONV_RULES or
// the built-in rule table, in that order.
func newTranslator(cmd *cobra.Command) (*convert.Translator, error) {
	path, _ := cmd.Flags().GetString("rules")
	if path == "" {
		path = envconfig.Rules()
	}

	rules := convert.DefaultRules()
	if path != "" {
		var err error
		if rules, err = convert.LoadRules(path); err != nil {
			return nil, err
		}
		slog.Debug("loaded rules", "path", path, "topologies", len(rules.Topologies))
	}

	return convert.NewTranslator(rules, nil)
}

func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:   "loraconv",
		Short: "Convert slider LoRA checkpoints to ostris key names",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
			slog.SetDefault(logutil.NewLogger(cmd.ErrOrStderr(), envconfig.LogLevel()))
		},
	}

	rootCmd.AddCommand(
		NewConvertCmd(),
		NewTranslateCmd(),
		NewInspectCmd(),
	)

	return rootCmd
}
