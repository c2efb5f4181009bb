package provider

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("New", func() {
	It("creates each supported provider", func() {
		for _, name := range SupportedProviders() {
			prov, err := New(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(prov.Name()).To(Equal(name))
		}
	})

	It("rejects unknown provider names", func() {
		_, err := New("bedrock")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("unknown provider"))
	})

	It("only ollama runs keyless", func() {
		for _, name := range SupportedProviders() {
			prov, err := New(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(prov.RequiresKey()).To(Equal(name != Ollama))
		}
	})
})
