package notify

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"time"
)

// ErrNotConfigured is returned when the mailer lacks a server, sender or
// recipients.
var ErrNotConfigured = errors.New("notify: mail is not configured")

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// MailConfig holds the SMTP settings of the failure notifier.
type MailConfig struct {
	Server    string
	Port      int
	Sender    string
	Password  string
	Receivers []string
}

// Mailer sends failure notifications by mail.
type Mailer struct {
	cfg         MailConfig
	programName string
	programPath string
	runID       string

	send SendFunc
	now  func() time.Time
}

// NewMailer creates a Mailer sending through net/smtp.
func NewMailer(cfg MailConfig, programName, programPath, runID string) *Mailer {
	return &Mailer{
		cfg:         cfg,
		programName: programName,
		programPath: programPath,
		runID:       runID,
		send:        smtp.SendMail,
		now:         time.Now,
	}
}

// WithSendFunc replaces the transport, mainly for tests.
func (m *Mailer) WithSendFunc(fn SendFunc) *Mailer {
	m.send = fn
	return m
}

// NotifyFailure mails the error detail to the configured receivers. The
// caller decides what to do with a send error; it must not replace runErr.
func (m *Mailer) NotifyFailure(runErr error, detail string) error {
	if m.cfg.Server == "" || m.cfg.Sender == "" || len(m.cfg.Receivers) == 0 {
		return ErrNotConfigured
	}

	msg := m.buildMessage(runErr, detail)
	addr := fmt.Sprintf("%s:%d", m.cfg.Server, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Password != "" {
		auth = smtp.PlainAuth("", m.cfg.Sender, m.cfg.Password, m.cfg.Server)
	}
	if err := m.send(addr, auth, m.cfg.Sender, m.cfg.Receivers, msg); err != nil {
		return fmt.Errorf("notify: send to %s: %w", addr, err)
	}
	return nil
}

// Subject is the subject line of the failure mail.
func (m *Mailer) Subject() string {
	return fmt.Sprintf("【エラー通知】%s 実行中にエラーが発生しました", m.programName)
}

// Body is the plain-text body of the failure mail.
func (m *Mailer) Body(runErr error, detail string) string {
	info := detail
	if info == "" && runErr != nil {
		info = runErr.Error()
	}

	var b strings.Builder
	b.WriteString("defect-dashboard の実行中にエラーが発生しました。\n")
	b.WriteString("下記に詳細を記載します。\n\n---\n")
	fmt.Fprintf(&b, "プログラム名: %s\n\n", m.programName)
	fmt.Fprintf(&b, "ファイルパス: %s\n\n", m.programPath)
	fmt.Fprintf(&b, "日時: %s\n\n", m.now().Format("2006/01/02 15:04:05"))
	fmt.Fprintf(&b, "実行ID: %s\n\n", m.runID)
	fmt.Fprintf(&b, "エラー詳細:\n%s\n---\n\n", info)
	b.WriteString("お手数ですが、ご確認をお願いします。\n")
	return b.String()
}

func (m *Mailer) buildMessage(runErr error, detail string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.Sender)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(m.cfg.Receivers, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.BEncoding.Encode("UTF-8", m.Subject()))
	fmt.Fprintf(&b, "Date: %s\r\n", m.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")

	encoded := base64.StdEncoding.EncodeToString([]byte(m.Body(runErr, detail)))
	for len(encoded) > 76 {
		b.WriteString(encoded[:76])
		b.WriteString("\r\n")
		encoded = encoded[76:]
	}
	b.WriteString(encoded)
	b.WriteString("\r\n")
	return []byte(b.String())
}
