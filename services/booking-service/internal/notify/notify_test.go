package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/model"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []Message
	fail map[string]error
}

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return s.fail[msg.To]
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func sampleCancellation() Cancellation {
	return Cancellation{
		Appointment:  model.Appointment{ID: "a1", Start: time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)},
		Pet:          model.Pet{Name: "Luna", OwnerName: "Ana", OwnerEmail: "ana@example.test"},
		Service:      model.Service{Name: "Vacunación"},
		Professional: model.Professional{Name: "Dr. Vega", Email: "vega@clinic.test"},
	}
}

func TestFormatDate(t *testing.T) {
	ts := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	require.Equal(t, "martes, 10 de marzo de 2026 a las 09:30", strings.ToLower(FormatDate(ts, "es-ES", nil)))
	require.Equal(t, "Tuesday, March 10, 2026 at 09:30", FormatDate(ts, "en", nil))
	require.Equal(t, "Tuesday, March 10, 2026 at 09:30", FormatDate(ts, "en_GB", nil))

	madrid := time.FixedZone("CET", 3600)
	require.Equal(t, "martes, 10 de marzo de 2026 a las 10:30", strings.ToLower(FormatDate(ts, "", madrid)))
}

func TestNotifyCancellationSendsBoth(t *testing.T) {
	s := &recordingSender{}
	var observed []string
	n := NewNotifier(s, discard(), NotifierConfig{Locale: "es", Observe: func(r string, err error) {
		observed = append(observed, r)
	}})

	n.NotifyCancellation(context.Background(), sampleCancellation())

	require.Len(t, s.msgs, 2)
	require.Equal(t, "ana@example.test", s.msgs[0].To)
	require.Contains(t, s.msgs[0].Body, "Luna")
	require.Contains(t, s.msgs[0].Body, "Vacunación")
	require.Contains(t, strings.ToLower(s.msgs[0].Body), "10 de marzo de 2026")
	require.Equal(t, "vega@clinic.test", s.msgs[1].To)
	require.Equal(t, []string{"owner", "professional"}, observed)
}

func TestNotifyCancellationSwallowsFailures(t *testing.T) {
	s := &recordingSender{fail: map[string]error{"ana@example.test": errors.New("mailbox full")}}
	n := NewNotifier(s, discard(), NotifierConfig{Locale: "en"})

	n.NotifyCancellation(context.Background(), sampleCancellation())

	require.Len(t, s.msgs, 2, "a failed owner email must not stop the professional email")
	require.Equal(t, "Appointment cancelled", s.msgs[1].Subject)
}

func TestSMTPSenderBuildsMessage(t *testing.T) {
	s := NewSMTPSender("localhost", "1025", "")
	var gotAddr string
	var gotTo []string
	var gotMsg []byte
	s.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, msg
		return nil
	}

	require.NoError(t, s.Send(context.Background(), Message{To: "ana@example.test", ToName: "Ana", Subject: "Hi", Body: "Body"}))
	require.Equal(t, "localhost:1025", gotAddr)
	require.Equal(t, []string{"ana@example.test"}, gotTo)
	require.True(t, strings.HasPrefix(string(gotMsg), "From: no-reply@vetbook.local\r\nTo: \"Ana\" <ana@example.test>\r\nSubject: Hi\r\n"))
}

func TestSMTPMessageEncodesHeaders(t *testing.T) {
	raw := string(buildMessage("clinic@example.test", Message{
		To:      "jose@example.test",
		ToName:  "José",
		Subject: "Cita cancelada: Vacunación",
		Body:    "Hola",
	}))
	require.Contains(t, raw, "To: =?utf-8?q?Jos=C3=A9?= <jose@example.test>\r\n")
	require.Contains(t, raw, "Subject: =?utf-8?q?Cita_cancelada:_Vacunaci=C3=B3n?=\r\n")

	injected := string(buildMessage("clinic@example.test", Message{
		To:      "ana@example.test",
		ToName:  "Ana\r\nBcc: victim@example.test",
		Subject: "Hi\r\nBcc: victim@example.test",
	}))
	head, _, _ := strings.Cut(injected, "\r\n\r\n")
	require.NotContains(t, head, "\r\nBcc:")
	require.Equal(t, 5, strings.Count(head, "\r\n")+1, "exactly five header lines")
}

type fakeSendGrid struct {
	status int
	got    *mail.SGMailV3
}

func (f *fakeSendGrid) SendWithContext(_ context.Context, m *mail.SGMailV3) (*rest.Response, error) {
	f.got = m
	return &rest.Response{StatusCode: f.status}, nil
}

func TestSendGridSender(t *testing.T) {
	fake := &fakeSendGrid{status: 202}
	s := &SendGridSender{client: fake, fromEmail: "clinic@example.test", fromName: "Clinic"}
	require.NoError(t, s.Send(context.Background(), Message{To: "ana@example.test", Subject: "Hi", Body: "Body"}))
	require.Equal(t, "Hi", fake.got.Subject)

	fake.status = 401
	require.Error(t, s.Send(context.Background(), Message{To: "ana@example.test"}))
}

type fakeSES struct {
	in *sesv2.SendEmailInput
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	return &sesv2.SendEmailOutput{MessageId: aws.String("m-1")}, nil
}

func TestSESSender(t *testing.T) {
	fake := &fakeSES{}
	s := &SESSender{client: fake, fromEmail: "clinic@example.test", fromName: "Clinic"}
	require.NoError(t, s.Send(context.Background(), Message{To: "ana@example.test", Subject: "Hi", Body: "Body"}))
	require.Equal(t, "Clinic <clinic@example.test>", aws.ToString(fake.in.FromEmailAddress))
	require.Equal(t, []string{"ana@example.test"}, fake.in.Destination.ToAddresses)
	require.Equal(t, "Body", aws.ToString(fake.in.Content.Simple.Body.Text.Data))
}
