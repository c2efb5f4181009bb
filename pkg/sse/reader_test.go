package sse

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Reader", func() {
	Describe("Next", func() {
		Context("with standard SSE events", func() {
			It("parses a single event", func() {
				r := NewReader(strings.NewReader("data: hello world\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("hello world"))
				Expect(ev.Type).To(BeEmpty())
				Expect(ev.ID).To(BeEmpty())

				ev, err = r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev).To(BeNil())
			})

			It("parses multiple events", func() {
				r := NewReader(strings.NewReader("data: first\n\ndata: second\n\n"))

				ev1, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev1.Data).To(Equal("first"))

				ev2, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev2.Data).To(Equal("second"))

				ev3, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev3).To(BeNil())
			})

			It("parses event type", func() {
				r := NewReader(strings.NewReader("event: content_block_delta\ndata: {\"type\":\"delta\"}\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Type).To(Equal("content_block_delta"))
				Expect(ev.Data).To(Equal("{\"type\":\"delta\"}"))
			})

			It("parses event id", func() {
				r := NewReader(strings.NewReader("id: 42\ndata: payload\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.ID).To(Equal("42"))
				Expect(ev.Data).To(Equal("payload"))
			})

			It("joins multiple data lines with a newline", func() {
				r := NewReader(strings.NewReader("data: line one\ndata: line two\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("line one\nline two"))
			})
		})

		Context("with irregular input", func() {
			It("skips comment lines", func() {
				r := NewReader(strings.NewReader(": keep-alive\ndata: real\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("real"))
			})

			It("skips leading blank lines", func() {
				r := NewReader(strings.NewReader("\n\ndata: after blanks\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("after blanks"))
			})

			It("yields a trailing event with no terminating blank line", func() {
				r := NewReader(strings.NewReader("data: truncated"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("truncated"))

				ev, err = r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev).To(BeNil())
			})

			It("strips only a single leading space after the colon", func() {
				r := NewReader(strings.NewReader("data:  double spaced\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal(" double spaced"))
			})

			It("treats a field with no colon as an empty value", func() {
				r := NewReader(strings.NewReader("data\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal(""))
			})
		})
	})
})
