package mail

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Mailer delivers operational digests. Implementations serialize the body
// themselves so callers can hand over domain structs directly.
type Mailer interface {
	Send(ctx context.Context, recipients []string, subject string, body any) error
}

// LogMailer records outgoing mail in the log instead of delivering it.
// Used until a transactional mail provider is wired in.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, recipients []string, subject string, _ any) error {
	log.Info().Msg(fmt.Sprintf("Mail digest '%s' queued for %s", subject, strings.Join(recipients, ", ")))
	return nil
}
