package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/storm-alert-service/internal/adapter/counties"
	"github.com/couchcryptid/storm-alert-service/internal/adapter/nws"
	"github.com/couchcryptid/storm-alert-service/internal/domain"
	"github.com/spf13/cobra"
)

var (
	boundsCounties string
	boundsZoom     float64
	boundsNWSURL   string
	boundsSeverity string
)

var boundsCmd = &cobra.Command{
	Use:   "bounds [file]",
	Short: "Show the map extent derived for alerts",
	Long: `Bounds prints the bounding box and the zoomed render extent for each alert
in a feed file (a FeatureCollection or a single Feature). Without a file the
active alerts are fetched from the feed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBounds,
}

func init() {
	rootCmd.AddCommand(boundsCmd)
	boundsCmd.Flags().StringVar(&boundsCounties, "counties", "", "county GeoJSON file for county-coded alerts")
	boundsCmd.Flags().Float64Var(&boundsZoom, "zoom", domain.DefaultZoom, "zoom factor applied to the extent")
	boundsCmd.Flags().StringVar(&boundsNWSURL, "nws-url", nws.DefaultBaseURL, "feed base URL")
	boundsCmd.Flags().StringVar(&boundsSeverity, "severity", "Extreme,Severe", "severity filter for fetched alerts")
}

type boundsRow struct {
	ID     string         `json:"id"`
	Event  string         `json:"event"`
	Source string         `json:"source,omitempty"`
	Bounds *domain.Bounds `json:"bounds,omitempty"`
	Zoomed *domain.Bounds `json:"zoomed,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func runBounds(cmd *cobra.Command, args []string) error {
	if boundsZoom <= 0 {
		return fmt.Errorf("zoom must be positive, got %v", boundsZoom)
	}

	var lookup domain.CountyLookup
	if boundsCounties != "" {
		l, err := counties.LoadFile(boundsCounties, counties.DefaultProperty)
		if err != nil {
			return err
		}
		lookup = l
	}

	var features []domain.Feature
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		if features, err = decodeFeatures(data); err != nil {
			return err
		}
	} else {
		logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
		client := nws.NewClient(nws.Options{
			BaseURL:   boundsNWSURL,
			UserAgent: "storm-alert-service/alertctl",
			Severity:  boundsSeverity,
			Timeout:   10 * time.Second,
			RetryMax:  2,
		}, logger)
		var err error
		if features, err = client.Active(cmd.Context()); err != nil {
			return err
		}
	}

	rows := describeBounds(features, lookup, boundsZoom)
	if output == "json" {
		return writeJSON(cmd.OutOrStdout(), rows)
	}
	return writeBoundsTable(cmd.OutOrStdout(), rows)
}

// decodeFeatures accepts either a FeatureCollection or a single Feature.
func decodeFeatures(data []byte) ([]domain.Feature, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode alerts: %w", err)
	}
	if probe.Type == "Feature" {
		var f domain.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode alert: %w", err)
		}
		return []domain.Feature{f}, nil
	}
	feed, err := domain.DecodeFeed(data)
	if err != nil {
		return nil, err
	}
	return feed.Features, nil
}

func describeBounds(features []domain.Feature, lookup domain.CountyLookup, zoom float64) []boundsRow {
	rows := make([]boundsRow, 0, len(features))
	for _, f := range features {
		row := boundsRow{ID: f.ID, Event: f.Properties.Event}
		alert, err := domain.ParseFeature(f)
		if err != nil {
			row.Error = err.Error()
			rows = append(rows, row)
			continue
		}
		row.Source = "counties"
		if alert.HasGeometry() {
			row.Source = "polygon"
		}
		// Invalid bounds are NaN and stay out of the JSON output.
		if b := domain.DeriveBounds(alert, lookup); b.Valid() {
			zoomed := b.Zoom(zoom)
			row.Bounds, row.Zoomed = &b, &zoomed
		} else {
			row.Error = "no extent"
		}
		rows = append(rows, row)
	}
	return rows
}

func writeBoundsTable(w io.Writer, rows []boundsRow) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EVENT\tSOURCE\tWEST\tSOUTH\tEAST\tNORTH\tID")
	for _, r := range rows {
		if r.Zoomed == nil {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t-\t%s (%s)\n", r.Event, r.Source, r.ID, r.Error)
			continue
		}
		z := r.Zoomed
		fmt.Fprintf(tw, "%s\t%s\t%.3f\t%.3f\t%.3f\t%.3f\t%s\n", r.Event, r.Source, z.West, z.South, z.East, z.North, r.ID)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
