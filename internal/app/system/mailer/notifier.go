package mailer

import (
	"github.com/dalemusser/stratagate/internal/app/system/htmlsanitize"
	"go.uber.org/zap"
)

// Recipient is the user a status notification goes to.
type Recipient struct {
	Name  string
	Email string
}

// StatusNotifier emails users when their account is disabled or enabled.
// Sends run on their own goroutine; a failed send is logged and dropped.
type StatusNotifier struct {
	sender       Sender
	appName      string
	loginURL     string
	contactEmail string
	log          *zap.Logger
	async        bool
}

// NewStatusNotifier returns a notifier. A nil sender yields a notifier that
// does nothing.
func NewStatusNotifier(sender Sender, appName, loginURL, contactEmail string, log *zap.Logger) *StatusNotifier {
	return &StatusNotifier{
		sender:       sender,
		appName:      appName,
		loginURL:     loginURL,
		contactEmail: contactEmail,
		log:          log,
		async:        true,
	}
}

// Disabled notifies r that the account was disabled. notice is the
// configured disabled notice, which may contain HTML; it is reduced to text.
func (n *StatusNotifier) Disabled(r Recipient, notice string) {
	if !n.canSend(r) {
		return
	}
	text, html := AccountDisabledEmail(AccountDisabledEmailData{
		AppName:      n.appName,
		UserName:     r.Name,
		Notice:       htmlsanitize.PlainText(notice),
		ContactEmail: n.contactEmail,
	})
	n.dispatch(Email{To: r.Email, Subject: "Your " + n.appName + " account has been disabled", TextBody: text, HTMLBody: html})
}

// Enabled notifies r that the account was enabled.
func (n *StatusNotifier) Enabled(r Recipient) {
	if !n.canSend(r) {
		return
	}
	text, html := AccountEnabledEmail(AccountEnabledEmailData{
		AppName:  n.appName,
		UserName: r.Name,
		LoginURL: n.loginURL,
	})
	n.dispatch(Email{To: r.Email, Subject: "Your " + n.appName + " account has been enabled", TextBody: text, HTMLBody: html})
}

// canSend reports whether a notification to r would go anywhere. It is
// safe on a nil notifier.
func (n *StatusNotifier) canSend(r Recipient) bool {
	return n != nil && n.sender != nil && r.Email != ""
}

func (n *StatusNotifier) dispatch(e Email) {
	send := func() {
		if err := n.sender.Send(e); err != nil {
			n.log.Warn("status notification failed", zap.String("to", e.To), zap.Error(err))
		}
	}
	if n.async {
		go send()
		return
	}
	send()
}
