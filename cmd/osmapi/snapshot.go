package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/advdv/osmhttp/osmapp"
	"github.com/advdv/osmhttp/selection/memstore"
	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace/noop"
)

var out io.Writer = os.Stdout

func init() {
	RootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(inspectCmd)

	flags := inspectCmd.Flags()
	flags.BoolP("json", "j", false, "format the counts in JSON")
	flags.String("region", "", "AWS region of the bucket, for s3 locations")
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Work with snapshots",
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <location>",
	Short: "Load a snapshot and print what it contains",
	Long:  "Load a snapshot from a file, s3://bucket/key or an http(s) url and print what it contains",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()

		jsonfmt, err := flags.GetBool("json")
		if err != nil {
			return err
		}

		region, err := flags.GetString("region")
		if err != nil {
			return err
		}

		client := osmapp.NewHTTPClient(http.DefaultTransport)
		cfg, err := osmapp.NewAWSConfig(osmapp.BaseEnvironment{AWSRegion: region}, client,
			noop.NewTracerProvider(), propagation.TraceContext{})
		if err != nil {
			return err
		}
		s3c := osmapp.NewS3Client(cfg)

		store := memstore.New(memstore.WithReadOnly(true))

		start := time.Now()
		if err := osmapp.LoadSnapshot(cmd.Context(), store, args[0], s3c, client); err != nil {
			return err
		}

		return printStats(out, store.Stats(), time.Since(start), jsonfmt)
	},
}

func printStats(w io.Writer, st memstore.Stats, took time.Duration, jsonfmt bool) error {
	if jsonfmt {
		return json.NewEncoder(w).Encode(st)
	}

	rows := []struct {
		name           string
		count, history int
	}{
		{"Nodes", st.Nodes, st.NodeVersions},
		{"Ways", st.Ways, st.WayVersions},
		{"Relations", st.Relations, st.RelationVersions},
	}

	for _, r := range rows {
		if _, err := fmt.Fprintf(w, "%s: %s (%s versions)\n", r.name,
			humanize.Comma(int64(r.count)), humanize.Comma(int64(r.history))); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "Changesets: %s\nUsers: %s\nLoaded in: %s\n",
		humanize.Comma(int64(st.Changesets)), humanize.Comma(int64(st.Users)), took.Round(time.Millisecond))
	return err
}
