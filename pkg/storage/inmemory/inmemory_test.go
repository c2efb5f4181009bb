package inmemory

import (
	"context"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercompute/fable/pkg/chat"
	"github.com/papercompute/fable/pkg/storage"
)

var _ = Describe("Driver", func() {
	var (
		ctx    context.Context
		driver *Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = NewDriver()
	})

	appendTurn := func(conversationID, role, text string) *chat.Turn {
		saved, err := driver.AppendTurn(ctx, &chat.Turn{
			ConversationID: conversationID,
			Role:           role,
			Text:           text,
		})
		Expect(err).NotTo(HaveOccurred())
		return saved
	}

	Describe("AppendTurn", func() {
		It("assigns id, seq, and timestamp", func() {
			saved := appendTurn("conv-1", chat.RoleUser, "hello")

			Expect(saved.ID).NotTo(BeEmpty())
			Expect(saved.Seq).To(Equal(1))
			Expect(saved.CreatedAt).NotTo(BeZero())
		})

		It("assigns monotonically increasing sequence numbers", func() {
			first := appendTurn("conv-1", chat.RoleUser, "one")
			second := appendTurn("conv-1", chat.RoleAssistant, "two")

			Expect(second.Seq).To(Equal(first.Seq + 1))
		})

		It("keeps conversations independent", func() {
			appendTurn("conv-1", chat.RoleUser, "one")
			other := appendTurn("conv-2", chat.RoleUser, "first here")

			Expect(other.Seq).To(Equal(1))
		})

		It("rejects a nil turn", func() {
			_, err := driver.AppendTurn(ctx, nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ListTurns", func() {
		BeforeEach(func() {
			for i := 0; i < 30; i++ {
				appendTurn("conv-1", chat.RoleUser, fmt.Sprintf("message %d", i))
			}
		})

		It("returns the most recent turns in chronological order", func() {
			turns, err := driver.ListTurns(ctx, "conv-1", 5)
			Expect(err).NotTo(HaveOccurred())

			Expect(turns).To(HaveLen(5))
			Expect(turns[0].Text).To(Equal("message 25"))
			Expect(turns[4].Text).To(Equal("message 29"))
		})

		It("falls back to the default limit for zero", func() {
			turns, err := driver.ListTurns(ctx, "conv-1", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(storage.DefaultTurnLimit))
		})

		It("returns everything when the limit exceeds the history", func() {
			turns, err := driver.ListTurns(ctx, "conv-1", 500)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(30))
		})

		It("returns nothing for an unknown conversation", func() {
			turns, err := driver.ListTurns(ctx, "missing", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(BeEmpty())
		})
	})

	Describe("AssistantTurns", func() {
		BeforeEach(func() {
			for i := 0; i < 4; i++ {
				appendTurn("conv-1", chat.RoleUser, fmt.Sprintf("user %d", i))
				appendTurn("conv-1", chat.RoleAssistant, fmt.Sprintf("assistant %d", i))
			}
		})

		It("returns only assistant turns", func() {
			turns, err := driver.AssistantTurns(ctx, "conv-1", 0)
			Expect(err).NotTo(HaveOccurred())

			Expect(turns).To(HaveLen(4))
			for _, turn := range turns {
				Expect(turn.Role).To(Equal(chat.RoleAssistant))
			}
		})

		It("skips the first offset assistant turns", func() {
			turns, err := driver.AssistantTurns(ctx, "conv-1", 2)
			Expect(err).NotTo(HaveOccurred())

			Expect(turns).To(HaveLen(2))
			Expect(turns[0].Text).To(Equal("assistant 2"))
			Expect(turns[1].Text).To(Equal("assistant 3"))
		})

		It("returns nothing when the offset covers everything", func() {
			turns, err := driver.AssistantTurns(ctx, "conv-1", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(BeEmpty())
		})
	})

	Describe("DeleteTurn", func() {
		It("removes the turn and returns the deleted record", func() {
			saved := appendTurn("conv-1", chat.RoleUser, "to delete")

			deleted, err := driver.DeleteTurn(ctx, "conv-1", saved.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted.ID).To(Equal(saved.ID))

			turns, err := driver.ListTurns(ctx, "conv-1", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(BeEmpty())
		})

		It("decrements the completed count for assistant turns", func() {
			saved := appendTurn("conv-1", chat.RoleAssistant, "reply")
			_, err := driver.IncrementTurnCount(ctx, "conv-1")
			Expect(err).NotTo(HaveOccurred())

			_, err = driver.DeleteTurn(ctx, "conv-1", saved.ID)
			Expect(err).NotTo(HaveOccurred())

			mem, err := driver.Memory(ctx, "conv-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(mem.CompletedTurnCount).To(Equal(0))
		})

		It("leaves the completed count alone for user turns", func() {
			saved := appendTurn("conv-1", chat.RoleUser, "question")
			_, err := driver.IncrementTurnCount(ctx, "conv-1")
			Expect(err).NotTo(HaveOccurred())

			_, err = driver.DeleteTurn(ctx, "conv-1", saved.ID)
			Expect(err).NotTo(HaveOccurred())

			mem, err := driver.Memory(ctx, "conv-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(mem.CompletedTurnCount).To(Equal(1))
		})

		It("never drives the completed count below zero", func() {
			saved := appendTurn("conv-1", chat.RoleAssistant, "reply")

			_, err := driver.DeleteTurn(ctx, "conv-1", saved.ID)
			Expect(err).NotTo(HaveOccurred())

			mem, err := driver.Memory(ctx, "conv-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(mem.CompletedTurnCount).To(Equal(0))
		})

		It("returns NotFoundError for an unknown turn", func() {
			appendTurn("conv-1", chat.RoleUser, "hello")

			_, err := driver.DeleteTurn(ctx, "conv-1", "nope")
			var notFound storage.NotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())
			Expect(notFound.TurnID).To(Equal("nope"))
		})
	})

	Describe("Memory", func() {
		It("creates an empty state on first access", func() {
			mem, err := driver.Memory(ctx, "conv-1")
			Expect(err).NotTo(HaveOccurred())

			Expect(mem.SummaryText).To(BeEmpty())
			Expect(mem.PlotPoints).To(BeEmpty())
			Expect(mem.CompletedTurnCount).To(BeZero())
			Expect(mem.LastCompactedAtTurn).To(BeZero())
		})

		It("returns an independent copy", func() {
			err := driver.UpdateMemory(ctx, "conv-1", "summary", []string{"a"}, 10)
			Expect(err).NotTo(HaveOccurred())

			mem, err := driver.Memory(ctx, "conv-1")
			Expect(err).NotTo(HaveOccurred())
			mem.PlotPoints[0] = "mutated"
			mem.SummaryText = "mutated"

			fresh, err := driver.Memory(ctx, "conv-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(fresh.PlotPoints).To(Equal([]string{"a"}))
			Expect(fresh.SummaryText).To(Equal("summary"))
		})
	})

	Describe("IncrementTurnCount", func() {
		It("returns the new count", func() {
			count, err := driver.IncrementTurnCount(ctx, "conv-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(1))

			count, err = driver.IncrementTurnCount(ctx, "conv-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(2))
		})
	})

	Describe("UpdateMemory", func() {
		It("replaces summary, plot points, and watermark in one write", func() {
			err := driver.UpdateMemory(ctx, "conv-1", "new summary", []string{"a", "b"}, 10)
			Expect(err).NotTo(HaveOccurred())

			mem, err := driver.Memory(ctx, "conv-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(mem.SummaryText).To(Equal("new summary"))
			Expect(mem.PlotPoints).To(Equal([]string{"a", "b"}))
			Expect(mem.LastCompactedAtTurn).To(Equal(10))
		})

		It("does not touch the completed turn count", func() {
			_, err := driver.IncrementTurnCount(ctx, "conv-1")
			Expect(err).NotTo(HaveOccurred())

			err = driver.UpdateMemory(ctx, "conv-1", "summary", nil, 1)
			Expect(err).NotTo(HaveOccurred())

			mem, err := driver.Memory(ctx, "conv-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(mem.CompletedTurnCount).To(Equal(1))
		})
	})
})
