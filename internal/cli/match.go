package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/overpassql/internal/bridge"
)

// MatchOptions holds flags for the match command.
type MatchOptions struct {
	*RootOptions
	Tags []string // k=v pairs
}

// MatchResult is the outcome of matching tags against selectors.
type MatchResult struct {
	Selectors string   `json:"selectors" yaml:"selectors"`
	Matches   bool     `json:"matches" yaml:"matches"`
	Failing   []string `json:"failing" yaml:"failing"`
}

// NewMatchCommand creates the match command.
func NewMatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "match [file|-]",
		Short: "Test a tag set against the first statement's selectors",
		Long: `Test a tag set against the selectors of the query's first statement.

Tags are given as repeated --tag key=value flags. The keys of the predicates
the tags violate are reported in definition order.

Exit codes:
  0 - The tags satisfy every predicate
  1 - At least one predicate failed
  2 - Command error (invalid query, malformed --tag, etc.)

Examples:
  overpassql match query.overpassql --tag amenity=cafe --tag name=Central`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatch(opts, args, cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Tags, "tag", "t", nil, "tag as key=value (repeatable)")

	return cmd
}

func runMatch(opts *MatchOptions, args []string, cmd *cobra.Command) error {
	if _, err := opts.settings(cmd); err != nil {
		return err
	}
	formatter := opts.formatter(cmd)

	tags, err := parseTags(opts.Tags)
	if err != nil {
		return commandError(formatter, ErrCodeInvalidFlag, err.Error())
	}

	query, err := LoadQuery(cmd, args)
	if err != nil {
		return loadError(formatter, err)
	}
	req, err := bridge.Parse(query.Text)
	if err != nil {
		return queryError(formatter, query.Name, err)
	}
	sel, err := req.FirstSelectors()
	if err != nil {
		return queryError(formatter, query.Name, err)
	}

	failing, failed := sel.Matches(tags)
	result := MatchResult{
		Selectors: sel.Source(),
		Matches:   !failed,
		Failing:   failing,
	}
	if result.Failing == nil {
		result.Failing = []string{}
	}

	if formatter.Structured() {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else if failed {
		fmt.Fprintf(formatter.Writer, "✗ %s\n  failing: %s\n", result.Selectors, strings.Join(failing, ", "))
	} else {
		fmt.Fprintf(formatter.Writer, "✓ %s\n", result.Selectors)
	}

	if failed {
		return NewExitError(ExitFailure, fmt.Sprintf("%d predicate key(s) failed", len(failing)))
	}
	return nil
}

// parseTags parses key=value pairs. Values may contain '='; the key may not
// be empty.
func parseTags(pairs []string) (map[string]string, error) {
	tags := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid tag %q: expected key=value", pair)
		}
		tags[key] = value
	}
	return tags, nil
}
