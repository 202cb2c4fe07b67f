package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/trailmix-app/trailgeo/internal/flagstore"
)

var flagsCmd = &cobra.Command{
	Use:   "flags",
	Short: "Inspect and toggle feature flags",
}

var flagsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all feature flags",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFlagStore(cmd.Context(), func(ctx context.Context, store *flagstore.Store) error {
			flags, err := store.List(ctx)
			if err != nil {
				return err
			}
			for _, f := range flags {
				fmt.Printf("%s\t%t\n", f.Key, f.Value)
			}
			return nil
		})
	},
}

var flagsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a feature flag value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFlagStore(cmd.Context(), func(ctx context.Context, store *flagstore.Store) error {
			value, err := store.Bool(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		})
	},
}

var flagsSetCmd = &cobra.Command{
	Use:   "set <key> <true|false>",
	Short: "Set a feature flag",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := strconv.ParseBool(args[1])
		if err != nil {
			return eris.Wrapf(err, "flags: parse value %q", args[1])
		}
		return withFlagStore(cmd.Context(), func(ctx context.Context, store *flagstore.Store) error {
			return store.SetBool(ctx, args[0], value)
		})
	},
}

func withFlagStore(ctx context.Context, fn func(context.Context, *flagstore.Store) error) error {
	store, err := flagstore.Open(cfg.Flags.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	return fn(ctx, store)
}

func init() {
	flagsCmd.AddCommand(flagsListCmd, flagsGetCmd, flagsSetCmd)
	rootCmd.AddCommand(flagsCmd)
}
