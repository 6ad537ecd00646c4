package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/bigcats-cc/email-sieve/internal/core/config"
	"github.com/bigcats-cc/email-sieve/internal/rules"
)

var validateCmd = &cobra.Command{
	Use:   "validate [rules-file]",
	Short: "Check a routing rules file",
	Long: `Parse the rules file and check every condition against the message schema.
All problems are reported, followed by warnings for constructs that are legal
but probably unintended.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := rulesFile
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		cfg, err := loadServiceConfig()
		if err != nil {
			return err
		}
		path = cfg.Rules.File
	}

	out := cmd.OutOrStdout()
	rulesCfg, err := config.LoadRules(path, config.DefaultPredicates())
	if err != nil {
		return err
	}

	if err := rules.Validate(rulesCfg); err != nil {
		problems := multierr.Errors(err)
		for _, p := range problems {
			fmt.Fprintf(out, "error: %v\n", p)
		}
		return fmt.Errorf("%s: %d problem(s)", path, len(problems))
	}

	for _, w := range rules.Warnings(rulesCfg) {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
	fmt.Fprintf(out, "%s: ok (%d rules, %d forward addresses)\n", path, len(rulesCfg.Rules), len(rulesCfg.ForwardAddresses))
	return nil
}
