package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/plugman/pkg/plugins"
)

func newLoadCommand(o *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Discover, resolve and load all plugins once",
		Long: `Load runs a full load pass and prints the final state of every discovered
plugin. It exits non-zero when a plugin fails to instantiate or activate.

Example:
  plugman load --plugin-dir ./plugins --log-level debug`,
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

			loadErr := manager.LoadAllPlugins(cmd.Context())
			if report := manager.LastReport(); report != nil {
				if err := writeReport(cmd.OutOrStdout(), output, report); err != nil {
					return err
				}
			}
			return loadErr
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format (text, json)")
	return cmd
}

// reportOutput is the JSON output of `plugman load`
type reportOutput struct {
	PassID   string                             `json:"pass_id"`
	Order    []string                           `json:"order"`
	Loaded   []string                           `json:"loaded"`
	Skipped  []string                           `json:"skipped,omitempty"`
	States   map[string]plugins.LoadState       `json:"states"`
	Excluded map[string]plugins.ExclusionReason `json:"excluded,omitempty"`
	Error    string                             `json:"error,omitempty"`
}

func writeReport(w io.Writer, output string, report *plugins.LoadReport) error {
	switch output {
	case outputJSON:
		out := reportOutput{
			PassID:   report.PassID,
			Order:    report.Order,
			Loaded:   report.Loaded,
			Skipped:  report.Skipped,
			States:   report.States,
			Excluded: report.Excluded,
		}
		if report.Err != nil {
			out.Error = report.Err.Error()
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case outputText:
	default:
		return fmt.Errorf("unknown output format: %s", output)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PLUGIN\tSTATE\tDETAIL")
	for _, id := range sortedKeys(report.States) {
		detail := ""
		if reason, ok := report.Excluded[id]; ok {
			detail = string(reason)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", id, report.States[id], detail)
	}
	fmt.Fprintf(tw, "\n%d loaded, %d skipped, %d excluded in %s\n",
		len(report.Loaded), len(report.Skipped), len(report.Excluded), report.Duration)
	return tw.Flush()
}
