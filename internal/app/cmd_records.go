package app

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"tokasu/internal/domain"
	"tokasu/internal/incident"
	slackbot "tokasu/internal/integrations/slack"
	"tokasu/internal/report"
)

func newQuotaCmd(e *env) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Show a reporter's remaining classifications this month",
		RunE: func(cmd *cobra.Command, _ []string) error {
			remaining, err := e.service.Remaining(cmd.Context(), userID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d/%d remaining this month\n", userID, remaining, e.service.Limit())
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "reporter ID (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newIncidentsCmd(e *env) *cobra.Command {
	var (
		userID string
		stats  bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "incidents",
		Short: "List saved incidents, or summarize them with --stats",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				records []domain.IncidentRecord
				err     error
			)
			if userID != "" {
				records, err = e.incidents.ListByReporter(cmd.Context(), userID)
			} else {
				records, err = e.incidents.ListAll(cmd.Context())
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if stats {
				s := incident.Summarize(records)
				if asJSON {
					return json.NewEncoder(out).Encode(s)
				}
				fmt.Fprintln(out, slackbot.FormatDigest("all", s))
				return nil
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No incidents recorded.")
				return nil
			}
			for _, rec := range records {
				fmt.Fprintf(out, "%s  %s  %3d%%  %-8s  %s  %s\n",
					rec.ID, rec.Date.In(e.cfg.Location).Format("2006/01/02 15:04"),
					rec.Severity, rec.Result.Source, rec.ReporterID, rec.Category)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&userID, "user", "", "only this reporter's incidents")
	f.BoolVar(&stats, "stats", false, "print severity statistics instead of the list")
	f.BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newReportCmd(e *env) *cobra.Command {
	var (
		userID    string
		id        string
		format    string
		outputDir string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render an incident judgment report to a file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			renderer, ok := e.renderers()[format]
			if !ok {
				return fmt.Errorf("unsupported format %q (html or pdf)", format)
			}
			rec, err := e.incidents.Get(cmd.Context(), userID, id)
			if err != nil {
				return err
			}
			data, err := renderer.Render(cmd.Context(), rec)
			if err != nil {
				return err
			}
			dir := outputDir
			if dir == "" {
				dir = e.cfg.ReportOutputDir
			}
			path, err := report.WriteReportFile(dir, rec, renderer.Extension(), data)
			if err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&userID, "user", "", "reporter ID (required)")
	f.StringVar(&id, "id", "", "incident ID (required)")
	f.StringVar(&format, "format", "html", "html or pdf")
	f.StringVar(&outputDir, "out", "", "output directory (default report_output_dir)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newPruneCmd(e *env) *cobra.Command {
	var digest bool
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Run housekeeping once: prune old quota counters and summarize last month",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := e.housekeeper()
			if !digest {
				r.Digest = nil
			}
			res, err := r.RunOnce(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Pruned %d quota counters\n", res.QuotaKeysPruned)
			fmt.Fprintln(out, slackbot.FormatDigest(res.DigestMonth, res.Stats))
			if digest && !res.DigestPosted {
				log.Println("Digest not posted: Slack is not configured")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&digest, "digest", false, "also post last month's digest to Slack")
	return cmd
}
