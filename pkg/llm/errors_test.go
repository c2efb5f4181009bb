package llm

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("error taxonomy", func() {
	It("matches through wrapping with errors.As", func() {
		wrapped := fmt.Errorf("calling upstream: %w", RateLimitError{Provider: "openai", Message: "slow down"})

		var rateErr RateLimitError
		Expect(errors.As(wrapped, &rateErr)).To(BeTrue())
		Expect(rateErr.Provider).To(Equal("openai"))
	})

	It("unwraps transport errors to the read failure", func() {
		cause := errors.New("connection reset by peer")
		transErr := TransportError{Provider: "openai", Err: cause}

		Expect(errors.Is(transErr, cause)).To(BeTrue())
		Expect(transErr.Error()).To(ContainSubstring("connection failed"))
	})

	It("unwraps malformed errors to the decode failure", func() {
		cause := errors.New("unexpected end of JSON input")
		malErr := MalformedError{Provider: "anthropic", Err: cause}

		Expect(errors.Is(malErr, cause)).To(BeTrue())
		Expect(malErr.Error()).To(ContainSubstring("malformed"))
	})

	Describe("EmptyCompletionError", func() {
		It("flags the length-limited case with an actionable message", func() {
			err := EmptyCompletionError{Provider: "anthropic", StopReason: StopLength}

			Expect(err.LengthLimited()).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("output length limit"))
			Expect(err.Error()).To(ContainSubstring("larger output window"))
		})

		It("reports the stop reason otherwise", func() {
			err := EmptyCompletionError{Provider: "ollama", StopReason: StopEnd}

			Expect(err.LengthLimited()).To(BeFalse())
			Expect(err.Error()).To(ContainSubstring(`stop reason "end"`))
		})
	})

	It("renders credential errors with the provider name", func() {
		err := CredentialError{Provider: "openai"}
		Expect(err.Error()).To(ContainSubstring(`"openai"`))
	})
})
