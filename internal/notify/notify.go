package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/tranthanhvu011/DTWH/internal/config"
	"github.com/tranthanhvu011/DTWH/internal/models"
)

// Notifier delivers an HTML status message
type Notifier interface {
	Send(ctx context.Context, subject, htmlBody string, recipients []string) error
}

// NopNotifier drops every message
type NopNotifier struct{}

func (NopNotifier) Send(ctx context.Context, subject, htmlBody string, recipients []string) error {
	return nil
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier sends mail through an SMTP relay
type SMTPNotifier struct {
	addr     string
	host     string
	username string
	password string
	from     string
	send     sendFunc
}

func NewSMTPNotifier(cfg config.NotifyConfig) *SMTPNotifier {
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &SMTPNotifier{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		host:     cfg.Host,
		username: cfg.Username,
		password: cfg.Password,
		from:     from,
		send:     smtp.SendMail,
	}
}

// New returns an SMTP notifier when notifications are configured and a
// NopNotifier otherwise.
func New(cfg config.NotifyConfig) Notifier {
	if !cfg.NotificationsEnabled() {
		return NopNotifier{}
	}
	return NewSMTPNotifier(cfg)
}

func (n *SMTPNotifier) Send(ctx context.Context, subject, htmlBody string, recipients []string) error {
	if len(recipients) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if n.username != "" {
		auth = smtp.PlainAuth("", n.username, n.password, n.host)
	}
	msg := BuildMessage(n.from, recipients, subject, htmlBody, time.Now())
	if err := n.send(n.addr, auth, n.from, recipients, msg); err != nil {
		return fmt.Errorf("send mail %q: %w", subject, err)
	}
	return nil
}

// BuildMessage renders an RFC 5322 message with an HTML body
func BuildMessage(from string, to []string, subject, htmlBody string, date time.Time) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", date.Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(htmlBody)
	return buf.Bytes()
}

var logTable = template.Must(template.New("logs").Parse(`<h2>{{.Title}}</h2>
<table border="1" cellpadding="4" cellspacing="0">
<tr><th>Config ID</th><th>Timestamp</th><th>Action</th><th>Details</th><th>Process</th><th>Status</th></tr>
{{- range .Entries}}
<tr><td>{{.ConfigID}}</td><td>{{.Timestamp.Format "2006-01-02 15:04:05"}}</td><td>{{.Action}}</td><td>{{.Details}}</td><td>{{.Process}}</td><td>{{.Status}}</td></tr>
{{- else}}
<tr><td colspan="6">No log entries available</td></tr>
{{- end}}
</table>
`))

// RenderLogTable renders log rows as an HTML table
func RenderLogTable(title string, entries []models.LogEntry) (string, error) {
	var buf bytes.Buffer
	err := logTable.Execute(&buf, struct {
		Title   string
		Entries []models.LogEntry
	}{Title: title, Entries: entries})
	if err != nil {
		return "", fmt.Errorf("render log table: %w", err)
	}
	return buf.String(), nil
}
