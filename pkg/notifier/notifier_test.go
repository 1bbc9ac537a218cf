package notifier

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jordigilh/territory-assignment-core/internal/apperrors"
	"github.com/jordigilh/territory-assignment-core/internal/config"
)

func TestNotifier(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Notifier Suite")
}

var _ = Describe("Slack", func() {
	It("wraps a delivery failure as notifier_unavailable", func() {
		s := NewSlack(config.NotifierConfig{SlackToken: "xoxb-invalid", DefaultChannel: "#territory-ops"})
		err := s.NotifyProposalRejected(context.Background(), "", "Acme Corp", "Jane SLM", "region mismatch")
		Expect(err).To(HaveOccurred())
		Expect(apperrors.IsType(err, apperrors.ErrorTypeNotifierUnavailable)).To(BeTrue())
	})

	It("trips the breaker after repeated failures and fails fast", func() {
		s := NewSlack(config.NotifierConfig{SlackToken: "xoxb-invalid", DefaultChannel: "#territory-ops"})
		for i := 0; i < 3; i++ {
			_ = s.NotifySuperseded(context.Background(), "", "Acme Corp", "RevOps Bot")
		}
		err := s.NotifySuperseded(context.Background(), "", "Acme Corp", "RevOps Bot")
		Expect(err).To(HaveOccurred())
		Expect(apperrors.IsType(err, apperrors.ErrorTypeNotifierUnavailable)).To(BeTrue())
	})
})
