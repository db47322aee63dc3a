package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/model"
)

// Cancellation carries what both cancellation emails show.
type Cancellation struct {
	Appointment  model.Appointment
	Pet          model.Pet
	Service      model.Service
	Professional model.Professional
}

type Observer func(recipient string, err error)

type Notifier struct {
	sender   Sender
	logger   *slog.Logger
	locale   string
	location *time.Location
	observe  Observer
}

type NotifierConfig struct {
	Locale   string
	Location *time.Location
	Observe  Observer
}

func NewNotifier(sender Sender, logger *slog.Logger, cfg NotifierConfig) *Notifier {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Notifier{
		sender:   sender,
		logger:   logger,
		locale:   NormalizeLocale(cfg.Locale),
		location: cfg.Location,
		observe:  cfg.Observe,
	}
}

// NotifyCancellation emails the pet owner and the professional. Delivery
// failures are logged and never returned.
func (n *Notifier) NotifyCancellation(ctx context.Context, c Cancellation) {
	when := FormatDate(c.Appointment.Start, n.locale, n.location)
	for _, m := range n.cancellationMessages(c, when) {
		if m.msg.To == "" {
			n.logger.Warn("cancellation email skipped (no address)", "appointment_id", c.Appointment.ID, "recipient", m.recipient)
			continue
		}
		err := n.sender.Send(ctx, m.msg)
		if n.observe != nil {
			n.observe(m.recipient, err)
		}
		if err != nil {
			n.logger.Error("cancellation email failed",
				"appointment_id", c.Appointment.ID,
				"recipient", m.recipient,
				"err", err,
			)
		}
	}
}

type addressed struct {
	recipient string
	msg       Message
}

func (n *Notifier) cancellationMessages(c Cancellation, when string) []addressed {
	owner := Message{To: c.Pet.OwnerEmail, ToName: c.Pet.OwnerName}
	pro := Message{To: c.Professional.Email, ToName: c.Professional.Name}
	if n.locale == LocaleEN {
		owner.Subject = "Your appointment has been cancelled"
		owner.Body = fmt.Sprintf("Hello %s,\n\nThe %s appointment for %s on %s has been cancelled.\n",
			c.Pet.OwnerName, c.Service.Name, c.Pet.Name, when)
		pro.Subject = "Appointment cancelled"
		pro.Body = fmt.Sprintf("Hello %s,\n\nThe %s appointment for %s on %s has been cancelled. The slot is free again.\n",
			c.Professional.Name, c.Service.Name, c.Pet.Name, when)
	} else {
		owner.Subject = "Tu cita ha sido cancelada"
		owner.Body = fmt.Sprintf("Hola %s,\n\nLa cita de %s para %s del %s ha sido cancelada.\n",
			c.Pet.OwnerName, c.Service.Name, c.Pet.Name, when)
		pro.Subject = "Cita cancelada"
		pro.Body = fmt.Sprintf("Hola %s,\n\nLa cita de %s para %s del %s ha sido cancelada. El horario vuelve a estar libre.\n",
			c.Professional.Name, c.Service.Name, c.Pet.Name, when)
	}
	return []addressed{{"owner", owner}, {"professional", pro}}
}
