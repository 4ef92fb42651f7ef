// Package notify emails the office when an appointment is booked.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"

	"github.com/valenrosasc/chatbot/internal/config"
	"github.com/valenrosasc/chatbot/internal/events"
	"github.com/valenrosasc/chatbot/internal/metrics"
	"github.com/valenrosasc/chatbot/internal/models"
)

const bookedSubject = "Nueva cita agendada"

const sendTimeout = 30 * time.Second

var bookedHTML = template.Must(template.New("booked").Parse(`<h1>Nueva cita agendada</h1>
<p><strong>Cédula:</strong> {{.PersonID}}</p>
<p><strong>Nombre:</strong> {{.FullName}}</p>
<p><strong>Celular:</strong> {{.Phone}}</p>
<p><strong>Fecha:</strong> {{.Date}}</p>
<p><strong>Hora:</strong> {{.TimeSlot}}</p>`))

// Sender delivers prepared messages. *mail.Client satisfies it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Mailer sends booking notifications to the office address.
type Mailer struct {
	sender Sender
	from   string
	to     string
	logger *zerolog.Logger
	wg     sync.WaitGroup
}

// NewSMTPMailer builds a Mailer backed by an authenticated SMTP client.
func NewSMTPMailer(cfg config.EmailConfig, logger *zerolog.Logger) (*Mailer, error) {
	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(sendTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return NewMailer(client, cfg.From, cfg.To, logger), nil
}

func NewMailer(sender Sender, from, to string, logger *zerolog.Logger) *Mailer {
	l := logger.With().Str("component", "mailer").Logger()
	return &Mailer{sender: sender, from: from, to: to, logger: &l}
}

// NotifyBooked sends the "new appointment" email synchronously.
func (m *Mailer) NotifyBooked(ctx context.Context, appt models.Appointment) error {
	msg, err := m.bookedMessage(appt)
	if err != nil {
		return err
	}
	if err := m.sender.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send booking email: %w", err)
	}
	return nil
}

// HandleEvent is an events.EventHandler. Delivery happens in the background;
// failures are logged and counted, never reported to the publisher.
func (m *Mailer) HandleEvent(ctx context.Context, event events.Event) error {
	if event.Type != events.AppointmentBooked {
		return nil
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()

		if err := m.NotifyBooked(sendCtx, event.Appointment); err != nil {
			metrics.IncEmail("error")
			m.logger.Error().Err(err).Str("event_id", event.ID).Msg("Booking email failed")
			return
		}
		metrics.IncEmail("ok")
		m.logger.Info().Str("event_id", event.ID).Str("to", m.to).Msg("Booking email sent")
	}()
	return nil
}

// Wait blocks until background sends have finished.
func (m *Mailer) Wait() {
	m.wg.Wait()
}

func (m *Mailer) bookedMessage(appt models.Appointment) (*mail.Msg, error) {
	html, text, err := renderBooked(appt)
	if err != nil {
		return nil, err
	}

	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(m.to); err != nil {
		return nil, fmt.Errorf("invalid to address: %w", err)
	}
	msg.Subject(bookedSubject)
	msg.SetBodyString(mail.TypeTextHTML, html)
	msg.AddAlternativeString(mail.TypeTextPlain, text)
	return msg, nil
}

func renderBooked(appt models.Appointment) (string, string, error) {
	var buf bytes.Buffer
	if err := bookedHTML.Execute(&buf, appt); err != nil {
		return "", "", fmt.Errorf("render booking email: %w", err)
	}

	text := fmt.Sprintf("Nueva cita agendada\n\nCédula: %s\nNombre: %s\nCelular: %s\nFecha: %s\nHora: %s\n",
		appt.PersonID, appt.FullName, appt.Phone, appt.Date, appt.TimeSlot)
	return buf.String(), text, nil
}
