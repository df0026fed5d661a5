package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/sarchlab/hypercube/analysis"
	"github.com/sarchlab/hypercube/datarecording"
	"github.com/sarchlab/hypercube/vertex"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report <recording>",
	Short: "Print the latency summary of a recorded run.",
	Long: "`report <recording>` reads a SQLite recording made with " +
		"--record and prints the inter-arrival latency of every vertex.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reader, err := datarecording.NewReader(args[0])
		if err != nil {
			return err
		}
		defer reader.Close()

		return report(cmd.Context(), reader, cmd.OutOrStdout())
	},
}

func report(ctx context.Context, reader datarecording.DataReader, w io.Writer) error {
	runs, err := datarecording.ReadRuns(ctx, reader)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		return errors.New("recording holds no run")
	}

	arrivals, err := datarecording.ReadTokenArrivals(ctx, reader, -1)
	if err != nil {
		return err
	}

	for _, run := range runs {
		analyzer := analysis.NewLatencyAnalyzer(run.Dimension)

		for _, a := range arrivals {
			if a.RunID != run.ID {
				continue
			}

			kind, err := vertex.ParseRecordKind(a.Kind)
			if err != nil {
				return err
			}

			analyzer.Add(vertex.Record{
				Vertex:  a.Vertex,
				Kind:    kind,
				Token:   a.Token,
				Elapsed: time.Duration(a.ElapsedUS) * time.Microsecond,
			})
		}

		overall := analyzer.Overall()
		fmt.Fprintf(w, "run %s, dimension %d, started %s\n",
			run.ID, run.Dimension,
			time.Unix(0, run.StartNS).Format(time.RFC3339))
		fmt.Fprintf(w, "%d visits, mean inter-arrival %.1f us over %d samples\n",
			overall.Visits, overall.MeanUS, overall.Samples)

		err = analysis.WriteTable(w, analyzer.Summary())
		if err != nil {
			return err
		}
	}

	return nil
}
