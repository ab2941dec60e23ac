package mailer

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/devmentor/devmentor-server/calendar"
	"github.com/devmentor/devmentor-server/cmd/models"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Mailer sends transactional email over SMTP.
type Mailer struct {
	host   string
	port   int
	user   string
	pass   string
	logger *zap.Logger
}

func NewFromEnv(logger *zap.Logger) *Mailer {
	port, err := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if err != nil {
		port = 587
	}
	return &Mailer{
		host:   os.Getenv("SMTP_HOST"),
		port:   port,
		user:   os.Getenv("SMTP_USER"),
		pass:   os.Getenv("SMTP_PASS"),
		logger: logger,
	}
}

// SendBookingConfirmation mails both parties the session details, the
// join link, and add-to-calendar links. The iCalendar file rides along
// as an attachment.
func (m *Mailer) SendBookingConfirmation(b *models.Booking, mentor, customer *models.User, links calendar.Links) error {
	subject := fmt.Sprintf("Session confirmed: %s with %s on %s",
		mentor.FullName(), customer.FullName(), b.SessionStart.Format("Jan 2, 2006"))

	body := fmt.Sprintf(
		"Your mentoring session is confirmed.\n\n"+
			"Mentor: %s\nCustomer: %s\nTime: %s to %s (UTC)\n\n"+
			"Join the session: %s\n\n"+
			"Add to Google Calendar: %s\nAdd to Outlook: %s\n",
		mentor.FullName(), customer.FullName(),
		b.SessionStart.Format(time.RFC1123), b.SessionEnd.Format(time.RFC1123),
		b.MeetingURL, links.Google, links.Outlook)

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.user)
	msg.SetHeader("To", customer.Email, mentor.Email)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	msg.Attach("session.ics", gomail.SetCopyFunc(func(w io.Writer) error {
		_, err := w.Write([]byte(links.ICalContent))
		return err
	}))

	if err := m.send(msg); err != nil {
		return fmt.Errorf("sending booking confirmation: %w", err)
	}
	m.logger.Info("booking confirmation sent",
		zap.Uint("booking_id", b.ID), zap.String("to", customer.Email))
	return nil
}

// SendBookingReminder nudges the customer before the session starts.
func (m *Mailer) SendBookingReminder(b *models.Booking, mentor, customer *models.User, until time.Duration) error {
	subject := fmt.Sprintf("Reminder: session with %s in %s", mentor.FullName(), humanDuration(until))
	body := fmt.Sprintf(
		"Your mentoring session with %s starts at %s (UTC).\n\nJoin here: %s\n",
		mentor.FullName(), b.SessionStart.Format(time.RFC1123), b.MeetingURL)

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.user)
	msg.SetHeader("To", customer.Email)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.send(msg); err != nil {
		return fmt.Errorf("sending booking reminder: %w", err)
	}
	return nil
}

func (m *Mailer) send(msg *gomail.Message) error {
	d := gomail.NewDialer(m.host, m.port, m.user, m.pass)
	return d.DialAndSend(msg)
}

func humanDuration(d time.Duration) string {
	if d >= time.Hour {
		return fmt.Sprintf("%d hours", int(d.Hours()))
	}
	return fmt.Sprintf("%d minutes", int(d.Minutes()))
}
