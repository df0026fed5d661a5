package fabric

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sarchlab/hypercube/topology"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Fabric", func() {
	var (
		ctx context.Context
		f   *Fabric
	)

	BeforeEach(func() {
		var err error

		ctx = context.Background()
		f, err = MakeBuilder().Build(2)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should allocate n*2^n channels", func() {
		Expect(f.NumChannels()).To(Equal(8))
		Expect(f.Dimension()).To(Equal(2))

		f3, err := MakeBuilder().Build(3)
		Expect(err).NotTo(HaveOccurred())
		Expect(f3.NumChannels()).To(Equal(24))
	})

	It("should allocate no channel for the single vertex cube", func() {
		f0, err := MakeBuilder().Build(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(f0.NumChannels()).To(Equal(0))

		e, err := f0.Acquire(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(e.Dimension()).To(Equal(0))
	})

	It("should fail on invalid parameters", func() {
		_, err := MakeBuilder().Build(-1)
		Expect(errors.Cause(err)).To(Equal(topology.ErrDimensionOutOfRange))

		_, err = MakeBuilder().WithCapacity(-1).Build(2)
		Expect(err).To(HaveOccurred())
	})

	It("should orient outgoing channels toward the neighbor", func() {
		for v := 0; v < 4; v++ {
			for j := 0; j < 2; j++ {
				out := f.Outgoing(v, j).Channel()
				Expect(out).To(Equal(ChannelID{Src: v, Dim: j}))

				in := f.Incoming(v, j).Channel()
				Expect(in).To(Equal(ChannelID{Src: topology.Neighbor(v, j), Dim: j}))
			}
		}
	})

	It("should deliver from a vertex to its neighbor", func() {
		e0, err := f.Acquire(0)
		Expect(err).NotTo(HaveOccurred())
		e2, err := f.Acquire(2)
		Expect(err).NotTo(HaveOccurred())

		Expect(e0.Out[1].Send(ctx, 7)).To(Succeed())
		Expect(e0.Out[1].Send(ctx, 8)).To(Succeed())

		Expect(<-e2.In[1].C()).To(Equal(7))
		Expect(<-e2.In[1].C()).To(Equal(8))
	})

	It("should only report EOF after every write handle is gone", func() {
		e0, err := f.Acquire(0)
		Expect(err).NotTo(HaveOccurred())
		e1, err := f.Acquire(1)
		Expect(err).NotTo(HaveOccurred())

		e0.Close()
		Consistently(e1.In[0].C()).ShouldNot(BeClosed())

		f.Release()
		Eventually(e1.In[0].C()).Should(BeClosed())

		e1.Close()
	})

	It("should break the pipe after every read handle is gone", func() {
		e0, err := f.Acquire(0)
		Expect(err).NotTo(HaveOccurred())
		e1, err := f.Acquire(1)
		Expect(err).NotTo(HaveOccurred())

		f.Release()
		Expect(e0.Out[0].Send(ctx, 1)).To(Succeed())

		e1.Close()
		err = e0.Out[0].Send(ctx, 2)
		Expect(errors.Is(err, ErrBrokenPipe)).To(BeTrue())
	})

	It("should refuse to acquire after release", func() {
		f.Release()
		f.Release()

		_, err := f.Acquire(0)
		Expect(errors.Is(err, ErrReleased)).To(BeTrue())
	})

	It("should leave no handle open once everyone closed", func() {
		var sets []*Endpoints
		for v := 0; v < 4; v++ {
			e, err := f.Acquire(v)
			Expect(err).NotTo(HaveOccurred())
			sets = append(sets, e)
		}

		Expect(f.Stats().OpenWriters).To(Equal(16))
		Expect(f.Stats().OpenReaders).To(Equal(16))

		f.Release()
		Expect(f.Stats().OpenWriters).To(Equal(8))

		for _, e := range sets {
			e.Close()
			e.Close()
		}

		stats := f.Stats()
		Expect(stats.OpenWriters).To(Equal(0))
		Expect(stats.OpenReaders).To(Equal(0))
		Expect(stats.ClosedToRead).To(Equal(8))
	})

	It("should reject handles used after close", func() {
		e0, err := f.Acquire(0)
		Expect(err).NotTo(HaveOccurred())

		Expect(e0.Out[0].Close()).To(Succeed())
		Expect(e0.Out[0].Close()).To(MatchError(ErrClosed))
		Expect(errors.Is(e0.Out[0].Send(ctx, 1), ErrClosed)).To(BeTrue())

		_, err = e0.Out[0].Dup()
		Expect(err).To(MatchError(ErrClosed))
	})

	It("should stop a blocked send when the context ends", func() {
		small, err := MakeBuilder().WithCapacity(0).Build(1)
		Expect(err).NotTo(HaveOccurred())

		e0, err := small.Acquire(0)
		Expect(err).NotTo(HaveOccurred())

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		err = e0.Out[0].Send(cancelled, 1)
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
	})
})
