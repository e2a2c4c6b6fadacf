package cli

import (
	"fmt"
	"os"

	"emotionserver/internal/app"
	"emotionserver/internal/repository"
	"emotionserver/internal/repository/sqlite"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newMigrateCmd(e *env) *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the history schema and optionally import a SQLite history",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dst, err := app.OpenRepository(ctx, e.cfg)
			if err != nil {
				return err
			}
			defer dst.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Schema ready (%s)\n", e.cfg.DBDriver)

			if from == "" {
				return nil
			}
			src, err := sqlite.Open(from)
			if err != nil {
				return err
			}
			defer src.Close()

			var progress func()
			if term.IsTerminal(int(os.Stderr.Fd())) {
				bar := progressbar.NewOptions(-1,
					progressbar.OptionSetDescription("Importing"),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionShowCount(),
				)
				progress = func() { bar.Add(1) }
			}

			n, err := repository.Copy(ctx, dst, src, progress)
			if err != nil {
				return fmt.Errorf("imported %d predictions before failing: %w", n, err)
			}
			e.logger.Info("Imported %d predictions from %s", n, from)
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d predictions from %s\n", n, from)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "SQLite history database to import")
	return cmd
}
