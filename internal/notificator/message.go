package notificator

import (
	"fmt"
	"strings"

	"github.com/core-coin/pactum/internal/models"
)

const dateLayout = "2006-01-02 15:04 MST"

// FormatEvent renders an event as a short plain-text message.
func FormatEvent(e *models.Event) string {
	var b strings.Builder
	switch e.Kind {
	case models.EventPaymentApplied:
		fmt.Fprintf(&b, "Payment received from %s: %s USDT on %s", e.UserID, e.Amount.String(), strings.ToUpper(string(e.Network)))
	case models.EventReactivated:
		fmt.Fprintf(&b, "Subscription reactivated for %s: %s USDT on %s", e.UserID, e.Amount.String(), strings.ToUpper(string(e.Network)))
	case models.EventGraceStarted:
		fmt.Fprintf(&b, "Subscription of %s expired, grace period started", e.UserID)
	case models.EventCancelled:
		fmt.Fprintf(&b, "Subscription of %s cancelled", e.UserID)
	case models.EventSweepCompleted:
		if e.Sweep == nil {
			return "Subscription sweep completed"
		}
		fmt.Fprintf(&b, "Subscription sweep: %d processed, %d expired, %d in grace, %d cancelled, %d failed",
			e.Sweep.Processed, e.Sweep.Expired, e.Sweep.GraceStarted, e.Sweep.Cancelled, e.Sweep.Failed)
		return b.String()
	default:
		fmt.Fprintf(&b, "Subscription event %s for %s", e.Kind, e.UserID)
	}

	if e.TxHash != "" {
		fmt.Fprintf(&b, "\nTx: %s", e.TxHash)
	}
	if !e.EndDate.IsZero() && e.Kind != models.EventCancelled {
		fmt.Fprintf(&b, "\nPaid until: %s", e.EndDate.UTC().Format(dateLayout))
	}
	return b.String()
}
