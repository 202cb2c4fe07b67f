package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/trailmix-app/trailgeo/pkg/geocode"
)

var (
	suggestLimit   int
	suggestLat     float64
	suggestLng     float64
	suggestCountry string
)

var suggestCmd = &cobra.Command{
	Use:   "suggest <query>",
	Short: "Resolve a free-text query to ranked location suggestions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initGeo(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		opts := geocode.SuggestOptions{
			Limit:       suggestLimit,
			CountryCode: suggestCountry,
		}
		if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
			if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lng") {
				return eris.New("suggest: --lat and --lng must be set together")
			}
			opts.Location = &geocode.Location{Lat: suggestLat, Lng: suggestLng}
		}

		results, err := env.Pipeline.Suggest(ctx, strings.Join(args, " "), opts)
		if err != nil {
			return eris.Wrap(err, "suggest")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	},
}

func init() {
	suggestCmd.Flags().IntVar(&suggestLimit, "limit", 0, "max number of suggestions (default 5)")
	suggestCmd.Flags().Float64Var(&suggestLat, "lat", 0, "bias latitude")
	suggestCmd.Flags().Float64Var(&suggestLng, "lng", 0, "bias longitude")
	suggestCmd.Flags().StringVar(&suggestCountry, "country", "", "ISO 3166-1 alpha-2 country filter")
	rootCmd.AddCommand(suggestCmd)
}
