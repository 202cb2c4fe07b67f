package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/trailmix-app/trailgeo/internal/trails"
)

var (
	trailsLat       float64
	trailsLng       float64
	trailsRadius    float64
	trailsZoom      int
	trailsStyle     string
	trailsTitle     string
	trailsShapefile string
	trailsOut       string
)

var trailsCmd = &cobra.Command{
	Use:   "trails",
	Short: "Assemble trail map data around a point",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("trails"); err != nil {
			return err
		}
		if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lng") {
			return eris.New("trails: --lat and --lng are required")
		}

		if trailsShapefile != "" {
			cfg.Trails.ShapefilePath = trailsShapefile
		}
		svc, err := initTrailService()
		if err != nil {
			return err
		}

		data, err := svc.MapData(ctx, trails.MapRequest{
			Lat:      trailsLat,
			Lng:      trailsLng,
			Zoom:     trailsZoom,
			RadiusKm: trailsRadius,
			Style:    trailsStyle,
			Title:    trailsTitle,
		})
		if err != nil {
			return eris.Wrap(err, "trails")
		}

		out := os.Stdout
		if trailsOut != "" {
			f, err := os.Create(trailsOut)
			if err != nil {
				return eris.Wrap(err, "trails: create output")
			}
			defer f.Close()
			out = f
		}

		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	},
}

func init() {
	trailsCmd.Flags().Float64Var(&trailsLat, "lat", 0, "center latitude")
	trailsCmd.Flags().Float64Var(&trailsLng, "lng", 0, "center longitude")
	trailsCmd.Flags().Float64Var(&trailsRadius, "radius", 0, "search radius in km (default 2500)")
	trailsCmd.Flags().IntVar(&trailsZoom, "zoom", 0, "map zoom level 1-18 (default 12)")
	trailsCmd.Flags().StringVar(&trailsStyle, "style", "", "map style: terrain, satellite or streets")
	trailsCmd.Flags().StringVar(&trailsTitle, "title", "", "map title")
	trailsCmd.Flags().StringVar(&trailsShapefile, "shapefile", "", "state trails shapefile (overrides config)")
	trailsCmd.Flags().StringVar(&trailsOut, "out", "", "write JSON to file instead of stdout")
	rootCmd.AddCommand(trailsCmd)
}
