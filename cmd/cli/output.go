package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/sevigo/scan-dispatch/internal/core"
)

var (
	titleColor   = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	dimColor     = color.New(color.FgHiBlack)
)

// printStructured writes v as JSON or YAML. It returns false for the table format.
func printStructured(w io.Writer, v any) (bool, error) {
	switch outputFormat {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return true, encoder.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return true, enc.Encode(v)
	case "table", "":
		return false, nil
	default:
		return true, fmt.Errorf("unknown output format %q", outputFormat)
	}
}

func statusColor(s core.JobStatus) *color.Color {
	switch s {
	case core.JobStatusCompleted:
		return successColor
	case core.JobStatusFailed:
		return errorColor
	case core.JobStatusRunning:
		return warnColor
	default:
		return dimColor
	}
}

func printJobs(jobs []*core.Job) error {
	if ok, err := printStructured(os.Stdout, jobs); ok {
		return err
	}
	if len(jobs) == 0 {
		dimColor.Println("No jobs found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "JOB ID\tSTATUS\tPLAN\tCOMMIT\tPR\tCREATED\tCOMPLETED")
	for _, j := range jobs {
		pr := "-"
		if j.PRNumber != nil {
			pr = fmt.Sprintf("#%d", *j.PRNumber)
		}
		completed := "-"
		if j.CompletedAt != nil {
			completed = j.CompletedAt.Format(time.RFC822)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			j.ID,
			statusColor(j.Status).Sprint(j.Status),
			j.PlanLevel,
			shortSHA(j.CommitSHA),
			pr,
			j.CreatedAt.Format(time.RFC822),
			completed,
		)
	}
	return w.Flush()
}

func printRepositories(repos []*core.Repository) error {
	if ok, err := printStructured(os.Stdout, repos); ok {
		return err
	}
	if len(repos) == 0 {
		dimColor.Println("No repositories are registered.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "REPOSITORY\tPROVIDER\tEXTERNAL ID\tPLAN\tID")
	for _, r := range repos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.Provider, r.ExternalID, r.PlanLevel, r.ID)
	}
	return w.Flush()
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
