package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	gomail "github.com/go-mail/mail"
	"go.uber.org/zap"

	"github.com/MrEthical07/goIdentity/internal/logger"
)

// Message is a single outgoing email. HTML is optional.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig configures SMTPSender. TLSMode is one of auto, starttls, ssl or none.
type SMTPConfig struct {
	Host               string `mapstructure:"host" yaml:"host"`
	Port               int    `mapstructure:"port" yaml:"port"`
	From               string `mapstructure:"from" yaml:"from"`
	Username           string `mapstructure:"username" yaml:"username"`
	Password           string `mapstructure:"password" yaml:"-"`
	TLSMode            string `mapstructure:"tls_mode" yaml:"tls_mode"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// SMTPSender sends through an SMTP relay. A new connection is dialed per
// message.
type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.Port <= 0 {
		return nil, errors.New("mail: smtp host and port are required")
	}
	if cfg.From == "" {
		return nil, errors.New("mail: smtp from address is required")
	}
	switch cfg.TLSMode {
	case "":
		cfg.TLSMode = "auto"
	case "auto", "starttls", "ssl", "none":
	default:
		return nil, fmt.Errorf("mail: unknown tls mode %q", cfg.TLSMode)
	}
	return &SMTPSender{cfg: cfg}, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := s.message(msg)

	d := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: s.cfg.Host, InsecureSkipVerify: s.cfg.InsecureSkipVerify}
	switch s.cfg.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.StartTLSPolicy = gomail.NoStartTLS
	case "starttls":
		d.StartTLSPolicy = gomail.MandatoryStartTLS
	}
	if deadline, ok := ctx.Deadline(); ok {
		d.Timeout = time.Until(deadline)
	}

	log := logger.From(ctx).With(logger.Component("mail"), zap.String("host", s.cfg.Host))
	if err := d.DialAndSend(m); err != nil {
		log.Error("smtp send failed", logger.Err(err))
		return fmt.Errorf("mail: smtp send: %w", err)
	}
	log.Debug("email sent", zap.String("subject", msg.Subject))
	return nil
}

func (s *SMTPSender) message(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		m.SetBody("text/html", msg.HTML)
	default:
		m.SetBody("text/plain", msg.Text)
	}
	return m
}

// LogSender records messages in the log instead of delivering them. Bodies
// are logged only when Verbose is set since they carry one-time secrets.
type LogSender struct {
	Verbose bool
}

func (s LogSender) Send(ctx context.Context, msg Message) error {
	fields := []zap.Field{logger.Component("mail"), zap.String("to", msg.To), zap.String("subject", msg.Subject)}
	if s.Verbose {
		fields = append(fields, zap.String("body", msg.Text))
	}
	logger.From(ctx).Info("email not delivered (log sender)", fields...)
	return nil
}
