package main

import (
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trailmix-app/trailgeo/internal/server"
	"github.com/trailmix-app/trailgeo/internal/trails"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the location API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initGeo(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		trailSvc, err := initTrailService()
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := server.New(env.Pipeline, env.Flags, trailSvc)
		return srv.ListenAndServe(ctx, port, cfg.Server.AllowedOrigins)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// initTrailService builds the trail map service from config. The shapefile
// layer is optional.
func initTrailService() (*trails.Service, error) {
	httpClient := &http.Client{Timeout: 30 * time.Second}

	var shapeSrc *trails.ShapefileSource
	if cfg.Trails.ShapefilePath != "" {
		src, err := trails.LoadShapefile(cfg.Trails.ShapefilePath)
		if err != nil {
			return nil, err
		}
		shapeSrc = src
		zap.L().Info("shapefile loaded",
			zap.String("path", cfg.Trails.ShapefilePath),
			zap.Int("features", src.Len()),
		)
	}

	return trails.NewService(
		trails.NewOverpassClient(cfg.Trails.OverpassURL, httpClient),
		trails.NewTrailheadsClient(cfg.Trails.TrailheadsURL, httpClient),
		shapeSrc,
	), nil
}
