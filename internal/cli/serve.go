package cli

import (
	"emotionserver/internal/app"

	"github.com/spf13/cobra"
)

func newServeCmd(e *env) *cobra.Command {
	var (
		addr   string
		camera bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the prediction API and the live viewer stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				e.cfg.Addr = addr
			}
			if cmd.Flags().Changed("camera") {
				e.cfg.CameraEnabled = camera
			}

			application, err := app.NewApp(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer application.Close()
			return application.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().BoolVar(&camera, "camera", false, "run the live loop in the background and stream it to /api/view")
	return cmd
}
