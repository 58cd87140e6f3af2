package cmd

import (
	"fmt"
	"net/url"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/inercia/scanblock/internal/rules"
)

var rulesTier string

// rulesCmd represents the rules parent command
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect the configured rule set",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the signatures of every tier with their scores",
	Args:  cobra.NoArgs,
	RunE:  runRulesList,
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check <url>...",
	Short: "Show which rule, if any, a request URL would match",
	Long: `Classify one or more request URLs against the configured rule set.

Examples:
  scanblock rules check /wp-login.php
  scanblock rules check '/search?q=1+or+1' /index.html`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRulesCheck,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesCheckCmd)

	rulesListCmd.Flags().StringVar(&rulesTier, "tier", "", "Only list one tier (full_path, partial_url, bad_suffix, bad_partial_path)")
}

func runRulesList(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	found := false
	for _, tier := range rules.Tiers {
		if rulesTier != "" && tier.String() != rulesTier {
			continue
		}
		found = true
		sigs := cfg.Rules.Signatures(tier)
		fmt.Fprintf(out, "%s (score %d, %d signatures)\n", tier, cfg.Rules.Scores.For(tier), len(sigs))
		for _, sig := range sigs {
			fmt.Fprintf(out, "  %s\n", sig)
		}
	}
	if !found {
		return fmt.Errorf("unknown tier %q", rulesTier)
	}
	return nil
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	classifier, err := rules.Compile(cfg.Rules)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	for _, arg := range args {
		u, err := url.Parse(arg)
		if err != nil {
			return fmt.Errorf("invalid url %q: %w", arg, err)
		}
		m, ok := classifier.Classify(u.Path, u.RequestURI())
		if !ok {
			fmt.Fprintf(w, "%s\t-\t0\tno match\n", arg)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", arg, m.Tier, m.Score, m.Reason)
	}
	return w.Flush()
}
