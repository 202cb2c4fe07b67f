package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/trailmix-app/trailgeo/pkg/geocode"
)

var (
	detailsProvider string
	detailsPlaceID  string
	detailsLat      float64
	detailsLng      float64
)

var detailsCmd = &cobra.Command{
	Use:   "details",
	Short: "Fetch full place details by provider id or coordinates",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initGeo(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		req := geocode.DetailsRequest{
			Provider: geocode.ProviderName(detailsProvider),
			PlaceID:  detailsPlaceID,
		}
		if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lng") {
			req.Location = &geocode.Location{Lat: detailsLat, Lng: detailsLng}
		}

		details, err := env.Pipeline.Details(ctx, req)
		if err != nil {
			return eris.Wrap(err, "details")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(details)
	},
}

func init() {
	detailsCmd.Flags().StringVar(&detailsProvider, "provider", "", "provider that issued the place id (google, geoapify)")
	detailsCmd.Flags().StringVar(&detailsPlaceID, "place-id", "", "provider place id")
	detailsCmd.Flags().Float64Var(&detailsLat, "lat", 0, "place latitude")
	detailsCmd.Flags().Float64Var(&detailsLng, "lng", 0, "place longitude")
	rootCmd.AddCommand(detailsCmd)
}
