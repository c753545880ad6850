package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/nijaru/yt-summarizer/coordinator"
	apperrors "github.com/nijaru/yt-summarizer/errors"
)

func newSummarizeCmd() *cobra.Command {
	var (
		language string
		save     bool
	)
	cmd := &cobra.Command{
		Use:   "summarize <video-url-or-id>",
		Short: "Summarize one video and print the markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if language != "" {
				cfg.Summary.Language = language
			}

			st, err := buildStack(cfg, save)
			if err != nil {
				return err
			}
			defer st.closer.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), st.requestTimeout)
			defer cancel()

			result, err := st.coordinator.Summarize(ctx, coordinator.SummarizeRequest{VideoURL: args[0]})
			if err != nil {
				return errors.New(apperrors.PublicMessage(err))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s\n\n%s\n", result.Title, result.Summary)
			return nil
		},
	}
	cmd.Flags().StringVar(&language, "language", "", "summary language code (overrides SUMMARY_LANGUAGE)")
	cmd.Flags().BoolVar(&save, "save", false, "store the summary in DB_PATH")
	return cmd
}
