package sink

import (
	"os"
	"path/filepath"
	"time"

	"github.com/sarchlab/hypercube/vertex"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("FileSink", func() {
	var root string

	BeforeEach(func() {
		root = GinkgoT().TempDir()
	})

	It("should name files by dimension and binary address", func() {
		Expect(Path(root, 2, 1)).To(Equal(filepath.Join(root, "2", "01.txt")))
		Expect(Path(root, 3, 6)).To(Equal(filepath.Join(root, "3", "110.txt")))
	})

	It("should write one line per record", func() {
		s, err := OpenFile(root, 2, 0)
		Expect(err).NotTo(HaveOccurred())

		Expect(s.Write(vertex.Record{Kind: vertex.RecordStart, Token: 1})).To(Succeed())
		Expect(s.Write(vertex.Record{
			Kind:    vertex.RecordArrival,
			Token:   5,
			Elapsed: 42 * time.Microsecond,
		})).To(Succeed())

		content, err := os.ReadFile(s.Path())
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).To(Equal("starting token: 1\nToken: 5, Time : 42\n"))

		Expect(s.Close()).To(Succeed())
	})

	It("should truncate output left by a previous run", func() {
		s, err := OpenFile(root, 1, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Write(vertex.Record{Kind: vertex.RecordFirst, Token: 2})).To(Succeed())
		Expect(s.Close()).To(Succeed())

		opened, err := FileOpener(root, 1)(1)
		Expect(err).NotTo(HaveOccurred())
		Expect(opened.Close()).To(Succeed())

		content, err := os.ReadFile(Path(root, 1, 1))
		Expect(err).NotTo(HaveOccurred())
		Expect(content).To(BeEmpty())
	})

	It("should fail when the directory cannot be created", func() {
		blocker := filepath.Join(root, "file")
		Expect(os.WriteFile(blocker, nil, 0o644)).To(Succeed())

		_, err := OpenFile(blocker, 2, 0)
		Expect(err).To(HaveOccurred())
	})
})
