package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/suPer8Hu/cesar/internal/httpapi/middleware"
	"github.com/suPer8Hu/cesar/internal/jobs"
	"github.com/suPer8Hu/cesar/internal/pipeline"
)

func newSubmitCmd() *cobra.Command {
	var (
		model       string
		diarize     bool
		minSpeakers int
		maxSpeakers int
	)
	cmd := &cobra.Command{
		Use:   "submit <file-or-url>",
		Short: "Queue a transcription job",
		Long: `Queue a transcription job for a local file or a remote source (http(s) URL,
YouTube link, s3://bucket/key). A running "serve" picks it up on its next poll.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := args[0]
			if !pipeline.IsRemote(source) {
				abs, err := filepath.Abs(source)
				if err != nil {
					return err
				}
				source = abs
			}
			p := jobs.CreateParams{Source: source, Model: model, Diarize: diarize}
			if cmd.Flags().Changed("min-speakers") {
				p.MinSpeakers = &minSpeakers
			}
			if cmd.Flags().Changed("max-speakers") {
				p.MaxSpeakers = &maxSpeakers
			}

			svc, closeFn, err := openService(loadConfig())
			if err != nil {
				return err
			}
			defer closeFn()

			j, err := svc.CreateJob(cmd.Context(), p)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), j.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", jobs.DefaultModel, "Model size: tiny, base, small, medium, large")
	cmd.Flags().BoolVarP(&diarize, "diarize", "d", false, "Identify speakers")
	cmd.Flags().IntVar(&minSpeakers, "min-speakers", 0, "Lower bound on speaker count")
	cmd.Flags().IntVar(&maxSpeakers, "max-speakers", 0, "Upper bound on speaker count")
	return cmd
}

func newListCmd() *cobra.Command {
	var status []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var statuses []jobs.Status
			for _, s := range status {
				st, ok := jobs.ParseStatus(strings.ToLower(strings.TrimSpace(s)))
				if !ok {
					return fmt.Errorf("unknown status %q", s)
				}
				statuses = append(statuses, st)
			}

			svc, closeFn, err := openService(loadConfig())
			if err != nil {
				return err
			}
			defer closeFn()

			list, err := svc.ListJobs(cmd.Context(), statuses...)
			if err != nil {
				return err
			}
			return writeJobTable(cmd.OutOrStdout(), list)
		},
	}
	cmd.Flags().StringSliceVarP(&status, "status", "s", nil, "Only show jobs in these statuses")
	return cmd
}

func writeJobTable(out io.Writer, list []jobs.Job) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPROGRESS\tCREATED\tSOURCE")
	for _, j := range list {
		progress := "-"
		if j.ProgressOverall != nil {
			progress = fmt.Sprintf("%d%%", *j.ProgressOverall)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			j.ID, j.Status, progress, j.CreatedAt.Local().Format(time.DateTime), j.Source)
	}
	return tw.Flush()
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openService(loadConfig())
			if err != nil {
				return err
			}
			defer closeFn()

			j, err := svc.GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(j)
		},
	}
}

func newRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Requeue a partial job for a full re-run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openService(loadConfig())
			if err != nil {
				return err
			}
			defer closeFn()

			j, err := svc.RetryJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", j.ID, j.Status)
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the HTTP API (needs CESAR_API_SECRET)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if cfg.APISecret == "" {
				return fmt.Errorf("CESAR_API_SECRET is not set")
			}
			now := time.Now()
			claims := jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(now)}
			if ttl > 0 {
				claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
			}
			tok, err := middleware.SignToken(cfg.APISecret, subject, claims)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "cli", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "Token lifetime, 0 for no expiry")
	return cmd
}
