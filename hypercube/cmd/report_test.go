package cmd

import (
	"bytes"
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/hypercube/datarecording"
)

var _ = Describe("Report command", func() {
	var path string

	BeforeEach(func() {
		path = datarecording.Path(filepath.Join(GinkgoT().TempDir(), "rec"))
	})

	write := func(arrivals ...datarecording.TokenArrival) {
		recorder, err := datarecording.New(path)
		Expect(err).NotTo(HaveOccurred())

		_, err = datarecording.NewTokenTracer(datarecording.Run{
			ID:        "run-1",
			Dimension: 1,
			StartNS:   1,
		}, recorder)
		Expect(err).NotTo(HaveOccurred())

		for _, a := range arrivals {
			a.RunID = "run-1"
			Expect(recorder.InsertData(
				datarecording.TokenArrivalTable, a)).To(Succeed())
		}

		Expect(recorder.Close()).To(Succeed())
	}

	run := func() (string, error) {
		reader, err := datarecording.NewReader(path)
		Expect(err).NotTo(HaveOccurred())
		defer reader.Close()

		buf := new(bytes.Buffer)
		err = report(context.Background(), reader, buf)

		return buf.String(), err
	}

	It("should summarize the recorded arrivals", func() {
		write(
			datarecording.TokenArrival{Vertex: 0, Address: "0", Kind: "start", Token: 1},
			datarecording.TokenArrival{Vertex: 1, Address: "1", Kind: "first", Token: 2},
			datarecording.TokenArrival{Vertex: 0, Address: "0", Kind: "arrival", Token: 3, ElapsedUS: 40},
			datarecording.TokenArrival{Vertex: 1, Address: "1", Kind: "arrival", Token: 4, ElapsedUS: 60},
		)

		out, err := run()

		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("run run-1, dimension 1"))
		Expect(out).To(ContainSubstring("4 visits, mean inter-arrival 50.0 us over 2 samples"))
		Expect(out).To(ContainSubstring("mean(us)"))
	})

	It("should reject an unknown record kind", func() {
		write(datarecording.TokenArrival{Vertex: 0, Kind: "bogus", Token: 1})

		_, err := run()

		Expect(err).To(MatchError(ContainSubstring("unknown record kind")))
	})
})
