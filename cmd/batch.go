package main

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/trailmix-app/trailgeo/pkg/geocode"
)

var (
	batchOut         string
	batchLimit       int
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch <queries.csv>",
	Short: "Geocode a CSV of queries and write an XLSX report",
	Long:  "Reads a CSV with columns query[,lat,lng], resolves each row through the provider chain, and writes the top match per query to an XLSX report.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("batch"); err != nil {
			return err
		}

		rows, err := readQueryCSV(args[0])
		if err != nil {
			return err
		}

		env, err := initGeo(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency := cfg.Batch.Concurrency
		if batchConcurrency > 0 {
			concurrency = batchConcurrency
		}

		results, err := processBatch(ctx, rows, batchLimit, concurrency, func(ctx context.Context, row queryRow) ([]geocode.Suggestion, error) {
			opts := geocode.SuggestOptions{Limit: 1, Location: row.location}
			return env.Pipeline.Suggest(ctx, row.query, opts)
		})
		if err != nil {
			return err
		}

		if err := writeBatchReport(batchOut, results); err != nil {
			return err
		}
		zap.L().Info("report written", zap.String("path", batchOut))
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchOut, "out", "batch_results.xlsx", "output report path")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of rows to process (0 = all)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "concurrent lookups (default from config)")
	rootCmd.AddCommand(batchCmd)
}

// queryRow is one input line: a free-text query with an optional bias point.
type queryRow struct {
	query    string
	location *geocode.Location
}

// batchResult pairs an input row with its top match or failure.
type batchResult struct {
	row   queryRow
	match *geocode.Suggestion
	err   error
}

// readQueryCSV parses the input file. A header row starting with "query" is
// skipped; lat/lng columns are optional.
func readQueryCSV(path string) ([]queryRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "batch: open input")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var rows []queryRow
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "batch: read csv")
		}
		if len(record) == 0 {
			continue
		}

		query := strings.TrimSpace(record[0])
		if query == "" || (len(rows) == 0 && strings.EqualFold(query, "query")) {
			continue
		}

		row := queryRow{query: query}
		if len(record) >= 3 {
			lat, latErr := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
			lng, lngErr := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
			if latErr == nil && lngErr == nil {
				row.location = &geocode.Location{Lat: lat, Lng: lng}
			}
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, eris.New("batch: no queries in input")
	}
	return rows, nil
}

// suggestFunc is the callback signature for resolving one batch row.
type suggestFunc func(ctx context.Context, row queryRow) ([]geocode.Suggestion, error)

// processBatch applies limit, then resolves rows concurrently. Individual
// failures are recorded per row and do not abort the batch.
func processBatch(ctx context.Context, rows []queryRow, limit, concurrency int, resolve suggestFunc) ([]batchResult, error) {
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	zap.L().Info("processing batch",
		zap.Int("queries", len(rows)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	results := make([]batchResult, len(rows))
	var succeeded, failed atomic.Int64

	for i, row := range rows {
		g.Go(func() error {
			log := zap.L().With(zap.String("query", row.query))

			suggestions, err := resolve(gctx, row)
			if err != nil {
				failed.Add(1)
				log.Error("geocode failed", zap.Error(err))
				results[i] = batchResult{row: row, err: err}
				return nil // don't abort batch on individual failure
			}

			result := batchResult{row: row}
			if len(suggestions) > 0 {
				result.match = &suggestions[0]
			}
			results[i] = result
			succeeded.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return results, nil
}

// writeBatchReport writes one row per input query to an XLSX workbook.
func writeBatchReport(path string, results []batchResult) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Results")
	if err != nil {
		return eris.Wrap(err, "batch: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range []string{"Query", "Status", "Display Name", "Latitude", "Longitude", "Provider", "Place ID", "Error"} {
		header.AddCell().SetString(col)
	}

	for _, res := range results {
		row := sheet.AddRow()
		row.AddCell().SetString(res.row.query)

		switch {
		case res.err != nil:
			row.AddCell().SetString("error")
			for i := 0; i < 5; i++ {
				row.AddCell()
			}
			row.AddCell().SetString(res.err.Error())
		case res.match == nil:
			row.AddCell().SetString("no_match")
		default:
			row.AddCell().SetString("ok")
			row.AddCell().SetString(res.match.DisplayName)
			row.AddCell().SetFloat(res.match.Latitude)
			row.AddCell().SetFloat(res.match.Longitude)
			row.AddCell().SetString(string(res.match.Provider))
			row.AddCell().SetString(res.match.PlaceID)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "batch: save report")
	}
	return nil
}
