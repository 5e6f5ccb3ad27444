package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"licensemedic/internal/flags"
	"licensemedic/internal/rules"
)

var rulesListQuiet bool
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and validate rulesets",
	Long: `Inspect and validate licensemedic rulesets.

This command group helps you discover which rules a ruleset defines, what each
rule checks, and whether a ruleset document is valid. The ruleset is selected
with --ruleset (a file path or builtin:<name>).

Examples:
  # List the rules of the built-in ruleset
  licensemedic rules list

  # Validate a ruleset document
  licensemedic rules validate rules.yaml

  # List the condition kinds a ruleset may use
  licensemedic rules kinds
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the rules of a ruleset",
	Long: `List the rules of the selected ruleset, in document order.

Examples:
  licensemedic rules list
  licensemedic rules list --ruleset rules.yaml -q

Output:
  A vertical list of rules:
    ----------------------------------------
    RULE: {ID}
    ----------------------------------------
    {TITLE}
    {DESCRIPTION}
    Severity / Condition / Dedup
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rs, err := rules.Configure(cfg.Inputs.Ruleset)
		if err != nil {
			return err
		}

		for _, r := range rs.Rules() {
			if rulesListQuiet {
				fmt.Fprintln(cmd.OutOrStdout(), r.ID)
			} else {
				printRule(cmd.OutOrStdout(), r)
			}
		}
		return nil
	},
}

var rulesShowCmd = &cobra.Command{
	Use:   "show [rule-id]",
	Short: "Show details of a specific rule",
	Long: `Show details of a specific rule by its ID, including its allow list options.

Examples:
  licensemedic rules show strong-copyleft
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rs, err := rules.Configure(cfg.Inputs.Ruleset)
		if err != nil {
			return err
		}
		r, ok := rs.Rule(args[0])
		if !ok {
			return fmt.Errorf("rule not found: %s (available: %s)", args[0], strings.Join(rs.IDs(), ", "))
		}
		printRule(cmd.OutOrStdout(), r)
		printOptions(cmd.OutOrStdout(), r)
		return nil
	},
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate [ruleset]",
	Short: "Validate a ruleset document",
	Long: `Load a ruleset and report every configuration problem it has.

Without an argument the ruleset selected by --ruleset is validated.

Examples:
  licensemedic rules validate rules.yaml
`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		location := cfg.Inputs.Ruleset
		if len(args) == 1 {
			location = args[0]
		}
		rs, err := rules.Configure(location)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rules OK\n", rs.Provenance(), rs.Len())
		return nil
	},
}

var rulesKindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List the condition kinds rules may use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		bold := color.New(color.Bold)
		for _, k := range rules.Kinds() {
			bold.Fprintf(w, "%s\n", k.Kind)
			fmt.Fprintf(w, "  %s\n", k.Description)
			if len(k.Params) > 0 {
				fmt.Fprintf(w, "  Params: %s\n", strings.Join(k.Params, ", "))
			}
		}
		return nil
	},
}

func printRule(w io.Writer, r rules.Rule) {
	bold := color.New(color.Bold)
	fmt.Fprintln(w, "----------------------------------------")
	bold.Fprintf(w, "RULE: %s\n", r.ID)
	fmt.Fprintln(w, "----------------------------------------")
	if r.Title != "" {
		fmt.Fprintln(w, r.Title)
	}
	if r.Description != "" {
		fmt.Fprintln(w, r.Description)
	}
	fmt.Fprintf(w, "Severity:  %s\n", r.Severity)
	fmt.Fprintf(w, "Condition: %s\n", r.Condition.Kind())
	fmt.Fprintf(w, "Dedup:     %s\n", r.Dedup)
	if !r.Allow.Empty() {
		fmt.Fprintln(w, "Allow list configured")
	}
	fmt.Fprintln(w)
}

// printOptions lists the --set options every rule accepts.
func printOptions(w io.Writer, r rules.Rule) {
	fmt.Fprintln(w, "Options:")
	for _, opt := range rules.AllowListOptions() {
		fmt.Fprintf(w, "  %s\n", opt.Name)
		fmt.Fprintf(w, "    Description: %s\n", opt.Description)
		fmt.Fprintf(w, "    Usage:       --%s %s.%s=...\n", flags.FlagSet, r.ID, opt.Name)
	}
	fmt.Fprintln(w)
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.PersistentFlags().StringVar(&cfg.Inputs.Ruleset, flags.FlagRuleset, cfg.Inputs.Ruleset, "Ruleset document path, or builtin:<name>")
	rulesCmd.AddCommand(rulesListCmd)
	rulesListCmd.Flags().BoolVarP(&rulesListQuiet, "quiet", "q", false, "Only print rule IDs")
	rulesCmd.AddCommand(rulesShowCmd)
	rulesCmd.AddCommand(rulesValidateCmd)
	rulesCmd.AddCommand(rulesKindsCmd)
}
