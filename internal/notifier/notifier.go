package notifier

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"go.uber.org/zap"

	"github.com/ibeckermayer/uibot/internal/config"
	"github.com/ibeckermayer/uibot/internal/notifier/providers"
	"github.com/ibeckermayer/uibot/internal/report"
)

// ErrNoRecipient means no to-address was configured.
var ErrNoRecipient = errors.New("no e-mail recipient configured")

// Notifier handles sending notifications
type Notifier struct {
	sender Sender
	to     string
	logger *zap.Logger
}

// Sender defines the interface for email sending
type Sender interface {
	Send(to, subject, htmlBody, plainBody string) error
}

// New creates a new notifier with the given sender and default recipient.
func New(sender Sender, to string, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{sender: sender, to: to, logger: logger.Named("notifier")}
}

// NewFromConfig creates a notifier based on configuration
func NewFromConfig(cfg config.EmailConfig, logger *zap.Logger) (*Notifier, error) {
	var sender Sender

	switch cfg.Provider {
	case "smtp":
		if cfg.SMTPHost == "" {
			return nil, errors.New("email.smtp_host is required")
		}
		sender = providers.NewSMTPSender(
			cfg.SMTPHost,
			cfg.SMTPPort,
			cfg.SMTPUser,
			cfg.SMTPPass,
			cfg.FromAddr,
		)
	default:
		return nil, fmt.Errorf("unknown email provider: %s", cfg.Provider)
	}

	return New(sender, cfg.ToAddr, logger), nil
}

func (n *Notifier) recipient(to string) (string, error) {
	if to == "" {
		to = n.to
	}
	if to == "" {
		return "", ErrNoRecipient
	}
	return to, nil
}

// NotifyMatch tells to (or the default recipient) about new matches.
func (n *Notifier) NotifyMatch(to string, names []string) error {
	to, err := n.recipient(to)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return nil
	}

	subject := "You have a new match on Tinder"
	if len(names) > 1 {
		subject = fmt.Sprintf("You have %d new matches on Tinder", len(names))
	}
	list := strings.Join(names, ", ")
	plain := fmt.Sprintf("New match: %s\n\nOpen https://tinder.com/app/matches to say hi.\n", list)
	body := fmt.Sprintf(`<p>New match: <strong>%s</strong></p><p><a href="https://tinder.com/app/matches">Say hi</a></p>`,
		html.EscapeString(list))

	if err := n.sender.Send(to, subject, body, plain); err != nil {
		return err
	}
	n.logger.Info("match notification sent", zap.String("to", to), zap.Int("matches", len(names)))
	return nil
}

// SendReport sends a rendered report.
func (n *Notifier) SendReport(to string, r *report.Report) error {
	to, err := n.recipient(to)
	if err != nil {
		return err
	}
	if err := n.sender.Send(to, r.Subject, r.HTMLBody, r.PlainBody); err != nil {
		return err
	}
	n.logger.Info("report sent", zap.String("to", to), zap.String("subject", r.Subject))
	return nil
}
