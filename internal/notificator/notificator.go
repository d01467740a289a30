package notificator

import (
	"context"
	"runtime/debug"

	"github.com/core-coin/pactum/internal/models"
	"github.com/core-coin/pactum/pkg/logger"
)

// Sender delivers a rendered message to one operator channel.
type Sender interface {
	Send(ctx context.Context, text string) error
}

type namedSender struct {
	name   string
	sender Sender
}

// Notificator fans subscription events out to every configured channel.
// Events are always logged, so a deployment without channels still has an audit trail.
type Notificator struct {
	logger *logger.Logger

	senders []namedSender
}

func NewNotificator(logger *logger.Logger, telNotif *TelegramNotificator) *Notificator {
	n := &Notificator{logger: logger.Named("notificator")}
	if telNotif != nil {
		n.senders = append(n.senders, namedSender{name: "telegram", sender: telNotif})
	}
	return n
}

// safeCall runs a function with panic recovery (synchronous, no goroutine spawning)
func (n *Notificator) safeCall(fn func(), context string) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Errorw("Function panicked",
				"context", context,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

// Notify is called from the manager's background goroutine, so channels are served synchronously.
func (n *Notificator) Notify(ctx context.Context, event *models.Event) {
	if !worthSending(event) {
		return
	}
	message := FormatEvent(event)
	n.logger.Infow("Subscription event", "kind", event.Kind, "user_id", event.UserID, "status", event.Status)

	for _, s := range n.senders {
		s := s
		n.safeCall(func() {
			if err := s.sender.Send(ctx, message); err != nil {
				n.logger.Errorw("Failed to send notification", "channel", s.name, "kind", event.Kind, "error", err)
			}
		}, s.name+"Notification")
	}
}

// worthSending drops sweeps that neither changed nor failed anything.
func worthSending(event *models.Event) bool {
	if event == nil {
		return false
	}
	if event.Kind != models.EventSweepCompleted {
		return true
	}
	s := event.Sweep
	return s != nil && s.Expired+s.GraceStarted+s.Cancelled+s.Failed > 0
}
