package cli

import (
	"fmt"
	"slices"
	"text/tabwriter"
	"time"

	"emotionserver/internal/app"
	"emotionserver/internal/dto"

	"github.com/spf13/cobra"
)

func newHistoryCmd(e *env) *cobra.Command {
	var (
		filter   dto.PredictionFilter
		since    string
		clearAll bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored predictions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if since != "" {
				t, err := time.Parse(time.RFC3339, since)
				if err != nil {
					return fmt.Errorf("--since must be RFC3339: %w", err)
				}
				filter.Since = t
			}

			repo, err := app.OpenRepository(ctx, e.cfg)
			if err != nil {
				return err
			}
			defer repo.Close()

			if clearAll {
				n, err := repo.DeleteAll(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d predictions.\n", n)
				return nil
			}

			records, err := repo.GetAll(ctx, &filter)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No predictions found.")
				return nil
			}
			total, err := repo.GetTotalCount(ctx, &filter)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tEMOTION\tCONFIDENCE\tSOURCE\tCREATED")
			fmt.Fprintln(w, "--\t-------\t----------\t------\t-------")
			for _, p := range records {
				fmt.Fprintf(w, "%d\t%s\t%.2f\t%s\t%s\n", p.ID, p.Emotion, p.Confidence, p.Source, p.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			}
			w.Flush()
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d\n", len(records), total)
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.Emotion, "emotion", "", "only this label")
	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "maximum rows")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "rows to skip")
	cmd.Flags().StringVar(&since, "since", "", "only predictions at or after this RFC3339 time")
	cmd.Flags().BoolVar(&clearAll, "clear", false, "delete every stored prediction")
	return cmd
}

func newStatsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize stored predictions per emotion",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, err := app.OpenRepository(ctx, e.cfg)
			if err != nil {
				return err
			}
			defer repo.Close()

			stats, err := repo.GetStats(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if stats.Total == 0 {
				fmt.Fprintln(out, "No predictions found.")
				return nil
			}

			labels := make([]string, 0, len(stats.PerEmotion))
			for l := range stats.PerEmotion {
				labels = append(labels, l)
			}
			slices.Sort(labels)

			w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "EMOTION\tCOUNT\tAVG CONFIDENCE")
			fmt.Fprintln(w, "-------\t-----\t--------------")
			for _, l := range labels {
				s := stats.PerEmotion[l]
				fmt.Fprintf(w, "%s\t%d\t%.2f\n", l, s.Count, s.AverageConfidence)
			}
			fmt.Fprintf(w, "total\t%d\t%.2f\n", stats.Total, stats.AverageConfidence)
			w.Flush()

			if stats.First != nil && stats.Last != nil {
				fmt.Fprintf(out, "From %s to %s\n", stats.First.Local().Format(time.DateTime), stats.Last.Local().Format(time.DateTime))
			}
			return nil
		},
	}
}
