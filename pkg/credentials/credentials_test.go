package credentials

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercompute/fable/pkg/llm"
)

var _ = Describe("Manager", func() {
	BeforeEach(func() {
		// Keep the environment fallback out of the picture.
		GinkgoT().Setenv("OPENAI_API_KEY", "")
		GinkgoT().Setenv("ANTHROPIC_API_KEY", "")
	})

	Describe("Resolve", func() {
		It("prefers the explicit override key", func() {
			m := NewManager(map[string]string{"openai": "sk-config"}, nil)

			cred, err := m.Resolve("openai", "sk-override")
			Expect(err).NotTo(HaveOccurred())
			Expect(cred.APIKey).To(Equal("sk-override"))
		})

		It("falls back to the configured key", func() {
			m := NewManager(map[string]string{"openai": "sk-config"}, nil)

			cred, err := m.Resolve("openai", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(cred.APIKey).To(Equal("sk-config"))
		})

		It("falls back to the environment variable", func() {
			GinkgoT().Setenv("ANTHROPIC_API_KEY", "sk-env")
			m := NewManager(nil, nil)

			cred, err := m.Resolve("anthropic", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(cred.APIKey).To(Equal("sk-env"))
		})

		It("returns CredentialError when no key can be found", func() {
			m := NewManager(nil, nil)

			_, err := m.Resolve("openai", "")
			var credErr llm.CredentialError
			Expect(errors.As(err, &credErr)).To(BeTrue())
			Expect(credErr.Provider).To(Equal("openai"))
		})

		It("needs no key for ollama", func() {
			m := NewManager(nil, map[string]string{"ollama": "http://gpu-box:11434"})

			cred, err := m.Resolve("ollama", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(cred.APIKey).To(BeEmpty())
			Expect(cred.BaseURL).To(Equal("http://gpu-box:11434"))
		})

		It("carries the configured upstream override", func() {
			m := NewManager(map[string]string{"openai": "sk-config"}, map[string]string{"openai": "http://localhost:9999"})

			cred, err := m.Resolve("openai", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(cred.BaseURL).To(Equal("http://localhost:9999"))
		})
	})
})
