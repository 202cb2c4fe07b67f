package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/trailmix-app/trailgeo/pkg/geocode"
)

var reverseCmd = &cobra.Command{
	Use:   "reverse <lat> <lng>",
	Short: "Reverse geocode coordinates to an address",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		lat, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return eris.Wrapf(err, "reverse: parse latitude %q", args[0])
		}
		lng, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return eris.Wrapf(err, "reverse: parse longitude %q", args[1])
		}

		env, err := initGeo(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Reverse(ctx, geocode.Location{Lat: lat, Lng: lng})
		if err != nil {
			return eris.Wrap(err, "reverse")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	rootCmd.AddCommand(reverseCmd)
}
