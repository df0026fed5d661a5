package hooking

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type countingHook struct {
	positions []*HookPos
}

func (h *countingHook) Func(ctx HookCtx) {
	h.positions = append(h.positions, ctx.Pos)
}

var _ = Describe("HookableBase", func() {
	var (
		base *HookableBase
		pos  *HookPos
	)

	BeforeEach(func() {
		base = &HookableBase{}
		pos = &HookPos{Name: "Test"}
	})

	It("should invoke hooks in registration order", func() {
		var order []int
		base.AcceptHook(HookFunc(func(HookCtx) { order = append(order, 1) }))
		base.AcceptHook(HookFunc(func(HookCtx) { order = append(order, 2) }))

		base.InvokeHook(HookCtx{Pos: pos})

		Expect(order).To(Equal([]int{1, 2}))
		Expect(base.NumHooks()).To(Equal(2))
	})

	It("should fill in the time when it is not given", func() {
		var ctxSeen HookCtx
		base.AcceptHook(HookFunc(func(ctx HookCtx) { ctxSeen = ctx }))

		base.InvokeHook(HookCtx{Pos: pos, Item: 3})

		Expect(ctxSeen.Time.IsZero()).To(BeFalse())
		Expect(ctxSeen.Item).To(Equal(3))
		Expect(ctxSeen.Pos.String()).To(Equal("Test"))
	})

	It("should panic on duplicated hook", func() {
		hook := &countingHook{}
		base.AcceptHook(hook)

		Expect(func() { base.AcceptHook(hook) }).To(Panic())
	})

	It("should pass the position to struct hooks", func() {
		hook := &countingHook{}
		base.AcceptHook(hook)

		base.InvokeHook(HookCtx{Pos: pos})
		base.InvokeHook(HookCtx{Pos: pos})

		Expect(hook.positions).To(HaveLen(2))
	})
})
