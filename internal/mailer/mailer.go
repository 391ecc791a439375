// Package mailer は通知メールの組み立てと送信を提供する。
// プロバイダー（Gmail / Brevo / none）は設定で明示的に選択され、
// 環境変数を直接参照するグローバル状態は持たない。
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/hitoshi/subauth/internal/config"
)

// Mailer は通知メール送信のインターフェース。
type Mailer interface {
	// SendWelcome は登録完了メールを送信する。
	SendWelcome(ctx context.Context, to, firstName, planName string) error
	// SendPaymentNotification は支払い完了通知を送信する。
	SendPaymentNotification(ctx context.Context, to, firstName, planName string, amountCents int) error
}

// sendFunc はsmtp.SendMail互換の送信関数。テストで差し替える。
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer はSMTP経由でメールを送信するMailerの実装。
type SMTPMailer struct {
	host string
	port string
	user string
	pass string
	send sendFunc
}

// smtpHosts はプロバイダーごとのSMTPホスト。
var smtpHosts = map[config.MailProvider]string{
	config.MailProviderGmail: "smtp.gmail.com",
	config.MailProviderBrevo: "smtp-relay.brevo.com",
}

// New は設定からMailerを生成する。
// MailProviderNoneの場合は送信せずログ出力のみ行うMailerを返す。
func New(cfg *config.Config) Mailer {
	if cfg.MailProvider == config.MailProviderNone {
		return &logMailer{}
	}
	return &SMTPMailer{
		host: smtpHosts[cfg.MailProvider],
		port: "587",
		user: cfg.MailUser,
		pass: cfg.MailPassword,
		send: smtp.SendMail,
	}
}

// SendWelcome は登録完了メールを送信する。
func (m *SMTPMailer) SendWelcome(ctx context.Context, to, firstName, planName string) error {
	subject := "Benvenuto! Il tuo account è attivo"
	body := fmt.Sprintf(
		"<p>Ciao %s,</p><p>il tuo account è stato creato con successo con il piano <b>%s</b>.</p>",
		firstName, planName,
	)
	return m.sendMail(ctx, to, subject, body)
}

// SendPaymentNotification は支払い完了通知を送信する。
func (m *SMTPMailer) SendPaymentNotification(ctx context.Context, to, firstName, planName string, amountCents int) error {
	subject := "Conferma di pagamento"
	body := fmt.Sprintf(
		"<p>Ciao %s,</p><p>abbiamo ricevuto il pagamento di <b>%.2f €</b> per il piano <b>%s</b>.</p>",
		firstName, float64(amountCents)/100, planName,
	)
	return m.sendMail(ctx, to, subject, body)
}

// sendMail はHTMLメールを組み立てて送信する。
// net/smtpは同期APIのため、呼び出し前にコンテキストの打ち切りだけ確認する。
func (m *SMTPMailer) sendMail(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg strings.Builder
	msg.WriteString("From: " + m.user + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	auth := smtp.PlainAuth("", m.user, m.pass, m.host)
	if err := m.send(m.host+":"+m.port, auth, m.user, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}

	slog.Info("mail sent", slog.String("to", to), slog.String("subject", subject))
	return nil
}

// logMailer はメールを送信せず内容をログに出力するMailer。
// 開発環境やメール未設定の環境で使用する。
type logMailer struct{}

func (m *logMailer) SendWelcome(ctx context.Context, to, firstName, planName string) error {
	slog.Info("mail not configured, logging welcome mail instead",
		slog.String("to", to),
		slog.String("plan", planName),
	)
	return nil
}

func (m *logMailer) SendPaymentNotification(ctx context.Context, to, firstName, planName string, amountCents int) error {
	slog.Info("mail not configured, logging payment notification instead",
		slog.String("to", to),
		slog.String("plan", planName),
		slog.Int("amount_cents", amountCents),
	)
	return nil
}

// compile-time interface checks
var _ Mailer = (*SMTPMailer)(nil)
var _ Mailer = (*logMailer)(nil)
