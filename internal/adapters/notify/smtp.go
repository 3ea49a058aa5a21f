package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/mikey/giveaway-engine/internal/config"
	"github.com/mikey/giveaway-engine/internal/core"
)

const sessionTimeout = 30 * time.Second

// SMTP mails escalations through a relay
type SMTP struct {
	cfg    config.SMTPNotifyConfig
	logger *zap.Logger
}

// NewSMTP creates a mail notifier
func NewSMTP(cfg config.SMTPNotifyConfig, logger *zap.Logger) (*SMTP, error) {
	if cfg.Address == "" || cfg.From == "" || len(cfg.To) == 0 {
		return nil, fmt.Errorf("smtp notifier needs address, from and to")
	}
	if cfg.Port == 0 {
		cfg.Port = 25
	}
	return &SMTP{cfg: cfg, logger: logger}, nil
}

// Escalate implements core.Notifier
func (n *SMTP) Escalate(ctx context.Context, e core.Escalation) error {
	addr := net.JoinHostPort(n.cfg.Address, strconv.Itoa(n.cfg.Port))

	c, err := n.dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("failed to connect to mail relay: %w", err)
	}
	defer c.Close()

	if n.cfg.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", n.cfg.Username, n.cfg.Password)); err != nil {
			return fmt.Errorf("AUTH failed: %w", err)
		}
	}

	if err := c.SendMail(n.cfg.From, n.cfg.To, bytes.NewReader(n.message(e))); err != nil {
		return fmt.Errorf("failed to send escalation: %w", err)
	}
	if err := c.Quit(); err != nil {
		n.logger.Warn("QUIT command failed", zap.Error(err))
	}

	n.logger.Info("Escalation mailed",
		zap.String("fingerprint", e.Fingerprint.Short()),
		zap.Strings("to", n.cfg.To))
	return nil
}

func (n *SMTP) dial(ctx context.Context, addr string) (*smtp.Client, error) {
	d := net.Dialer{Timeout: 10 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(sessionTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, err
	}

	if n.cfg.StartTLS {
		c, err := smtp.NewClientStartTLS(conn, &tls.Config{ServerName: n.cfg.Address})
		if err != nil {
			conn.Close()
			return nil, err
		}
		return c, nil
	}

	c := smtp.NewClient(conn)
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	if err := c.Hello(hostname); err != nil {
		c.Close()
		return nil, fmt.Errorf("EHLO failed: %w", err)
	}
	return c, nil
}

func (n *SMTP) message(e core.Escalation) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(n.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: Giveaway entry needs a human (%s)\r\n", e.Reason)
	fmt.Fprintf(&b, "Date: %s\r\n", e.At.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "The automated entry stopped and needs to be finished by hand.\r\n\r\n")
	fmt.Fprintf(&b, "Target:      %s\r\n", e.TargetURL)
	fmt.Fprintf(&b, "Reason:      %s\r\n", e.Reason)
	fmt.Fprintf(&b, "Attempts:    %d\r\n", e.Attempts)
	fmt.Fprintf(&b, "Candidate:   %s\r\n", e.CandidateID)
	fmt.Fprintf(&b, "Fingerprint: %s\r\n", e.Fingerprint)
	return b.Bytes()
}
