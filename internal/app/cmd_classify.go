package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"tokasu/internal/classify"
	"tokasu/internal/domain"
	"tokasu/internal/evidence"
)

type classifyFlags struct {
	userID   string
	userName string
	category string
	checked  []string
	files    []string
}

func newClassifyCmd(e *env) *cobra.Command {
	var flags classifyFlags
	cmd := &cobra.Command{
		Use:   "classify [description | -]",
		Short: "Classify one incident and save it",
		Long: `Composes a description from the argument (or stdin with "-") and any
--file attachments, classifies it and saves the incident record.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(cmd, e, flags, args)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.userID, "user", "", "reporter ID (required)")
	f.StringVar(&flags.userName, "name", "", "reporter display name")
	f.StringVar(&flags.category, "category", "", "incident category, e.g. 威嚇・脅迫 (default 未分類)")
	f.StringSliceVar(&flags.checked, "check", nil, "checked rubric item as axis:index (repeatable)")
	f.StringSliceVar(&flags.files, "file", nil, "text or audio file to attach (repeatable)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runClassify(cmd *cobra.Command, e *env, flags classifyFlags, args []string) error {
	comp := evidence.NewComposer()
	if len(args) == 1 {
		text := args[0]
		if text == "-" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			text = string(data)
		}
		comp.AppendText(text)
	}
	for _, raw := range flags.checked {
		ref, err := domain.ParseItemRef(raw)
		if err != nil {
			return err
		}
		if err := comp.Check(ref); err != nil {
			return err
		}
	}
	flags.category = strings.TrimSpace(flags.category)
	if flags.category != "" && !domain.IsKnownCategory(flags.category) {
		return fmt.Errorf("unknown category %q (one of: %s)", flags.category, strings.Join(domain.Categories(), ", "))
	}

	var files []evidence.File
	for _, path := range flags.files {
		files = append(files, evidence.File{
			Name: filepath.Base(path),
			Open: func() (io.ReadCloser, error) { return os.Open(path) },
		})
	}
	ingest, err := comp.IngestFiles(cmd.Context(), files)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, sk := range ingest.Skipped {
		fmt.Fprintf(out, "skipped %s: %v\n", sk.Name, sk.Err)
	}

	reporter := domain.Reporter{ID: flags.userID, Name: flags.userName}
	outcome, err := e.service.Submit(cmd.Context(), reporter, comp.Snapshot(flags.category))
	if err != nil && !errors.Is(err, domain.ErrPersistenceFailed) {
		return err
	}
	printOutcome(out, outcome)
	return err
}

func printOutcome(w io.Writer, o classify.Outcome) {
	r := o.Result
	tier := r.Tier()
	fmt.Fprintf(w, "Severity:  %d%% (%s)\n", r.Severity, tier.Label)
	fmt.Fprintf(w, "Kasuhara:  %t\n", r.IsHarassment)
	if o.Fallback {
		fmt.Fprintf(w, "Source:    fallback (%s)\n", o.FallbackReason)
	} else {
		fmt.Fprintf(w, "Source:    %s\n", r.Source)
	}
	fmt.Fprintf(w, "Summary:   %s\n", r.Summary)
	fmt.Fprintf(w, "Analysis:  %s\n", r.Analysis)
	fmt.Fprintf(w, "Action:    %s\n", r.Recommendation)
	fmt.Fprintf(w, "Legal:     %s\n", r.LegalRisk)
	fmt.Fprintf(w, "Flow:      %s\n", r.ResponseFlow)
	if o.Saved {
		fmt.Fprintf(w, "Saved:     %s\n", o.Record.ID)
	} else {
		fmt.Fprintf(w, "Saved:     no\n")
	}
	fmt.Fprintf(w, "Remaining: %d\n", o.Remaining)
}
