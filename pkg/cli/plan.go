package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/plugman/pkg/plugins"
)

const (
	outputText = "text"
	outputJSON = "json"
)

// planResult is the JSON output of `plugman plan`
type planResult struct {
	Order          []string                           `json:"order"`
	Excluded       map[string]plugins.ExclusionReason `json:"excluded,omitempty"`
	MetadataErrors []string                           `json:"metadata_errors,omitempty"`
}

func newPlanCommand(o *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the resolved load order without loading anything",
		Long: `Plan runs discovery and dependency resolution and prints the order plugins
would load in, followed by every excluded plugin and the reason it was excluded.

Example:
  plugman plan --plugin-dir ./plugins
  plugman plan -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := o.setup(cmd)
			if err != nil {
				return err
			}
			manager, err := o.manager(cfg, logger)
			if err != nil {
				return err
			}

			resolution, metadataErrs, err := manager.Plan(cmd.Context())
			if err != nil {
				return err
			}

			result := planResult{
				Order:    resolution.IDs(),
				Excluded: resolution.Excluded,
			}
			for _, merr := range metadataErrs {
				result.MetadataErrors = append(result.MetadataErrors, merr.Error())
			}

			return writePlan(cmd.OutOrStdout(), output, result)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format (text, json)")
	return cmd
}

func writePlan(w io.Writer, output string, result planResult) error {
	switch output {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case outputText:
	default:
		return fmt.Errorf("unknown output format: %s", output)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tPLUGIN")
	for i, id := range result.Order {
		fmt.Fprintf(tw, "%d\t%s\n", i+1, id)
	}

	if len(result.Excluded) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "EXCLUDED\tREASON")
		for _, id := range sortedKeys(result.Excluded) {
			fmt.Fprintf(tw, "%s\t%s\n", id, result.Excluded[id])
		}
	}

	for _, msg := range result.MetadataErrors {
		fmt.Fprintf(tw, "\nwarning: %s\n", msg)
	}
	return tw.Flush()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
