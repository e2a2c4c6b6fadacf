package cli

import (
	"emotionserver/internal/app"
	"emotionserver/internal/service/ai"
	"emotionserver/internal/service/live"

	"github.com/spf13/cobra"
)

func newLiveCmd(e *env) *cobra.Command {
	var (
		device   string
		noMirror bool
	)
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Annotate the camera feed in a window; press q to quit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if device != "" {
				e.cfg.CameraDevice = device
			}
			if noMirror {
				e.cfg.Mirror = false
			}

			locator, model, pipeline, err := app.NewPipeline(e.cfg, e.logger, nil)
			if err != nil {
				return err
			}
			defer locator.Close()
			defer model.Close()

			source, closer, err := app.OpenSource(e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer closer.Close()

			window := ai.NewWindowRenderer(e.cfg.WindowName)
			defer window.Close()

			return live.NewLoop(source, pipeline, e.cfg.Mirror, e.logger, window).Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&device, "device", "", `camera index, video file, stream URL or "udp://:port"`)
	cmd.Flags().BoolVar(&noMirror, "no-mirror", false, "do not flip frames horizontally")
	return cmd
}
