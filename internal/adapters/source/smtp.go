package source

import (
	"context"
	"errors"
	"io"
	"iter"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/mikey/giveaway-engine/internal/config"
	"github.com/mikey/giveaway-engine/internal/core"
)

var errQueueFull = &smtp.SMTPError{
	Code:         452,
	EnhancedCode: smtp.EnhancedCode{4, 3, 1},
	Message:      "Candidate queue full, try again later",
}

// SMTP accepts forwarded giveaway mail on a local listener and keeps it
// queued until the engine acknowledges it
type SMTP struct {
	cfg    config.SMTPSourceConfig
	logger *zap.Logger
	server *smtp.Server

	mu      sync.Mutex
	order   []string
	pending map[string]core.Candidate
}

// NewSMTP creates the intake listener. Start must be called to accept mail.
func NewSMTP(cfg config.SMTPSourceConfig, logger *zap.Logger) *SMTP {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 10 * 1024 * 1024
	}
	if cfg.Domain == "" {
		cfg.Domain = "localhost"
	}

	s := &SMTP{
		cfg:     cfg,
		logger:  logger,
		pending: make(map[string]core.Candidate),
	}

	s.server = smtp.NewServer(&smtpBackend{source: s})
	s.server.Addr = cfg.ListenAddress
	s.server.Domain = cfg.Domain
	s.server.ReadTimeout = 30 * time.Second
	s.server.WriteTimeout = 30 * time.Second
	s.server.MaxMessageBytes = cfg.MaxMessageBytes
	s.server.MaxRecipients = 50
	return s
}

// Start listens in the background
func (s *SMTP) Start() error {
	l, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return err
	}
	s.logger.Info("SMTP intake starting", zap.String("address", l.Addr().String()))

	go func() {
		if err := s.server.Serve(l); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
			s.logger.Error("SMTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Serve accepts mail on an existing listener until Stop
func (s *SMTP) Serve(l net.Listener) error {
	return s.server.Serve(l)
}

// Stop closes the listener. Queued candidates are lost.
func (s *SMTP) Stop() error {
	return s.server.Close()
}

// Poll implements core.EmailSource. Unacknowledged candidates are
// delivered again on the next poll.
func (s *SMTP) Poll(ctx context.Context) iter.Seq2[core.Candidate, error] {
	return func(yield func(core.Candidate, error) bool) {
		s.mu.Lock()
		batch := make([]core.Candidate, 0, len(s.order))
		for _, id := range s.order {
			batch = append(batch, s.pending[id])
		}
		s.mu.Unlock()

		for _, c := range batch {
			if ctx.Err() != nil || !yield(c, nil) {
				return
			}
		}
	}
}

// Ack implements core.EmailSource
func (s *SMTP) Ack(ctx context.Context, candidateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[candidateID]; !ok {
		return nil
	}
	delete(s.pending, candidateID)
	for i, id := range s.order {
		if id == candidateID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Pending returns the number of queued candidates
func (s *SMTP) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

func (s *SMTP) enqueue(c core.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.pending[c.ID]; dup {
		return nil
	}
	if len(s.order) >= s.cfg.QueueSize {
		return errQueueFull
	}
	s.pending[c.ID] = c
	s.order = append(s.order, c.ID)
	return nil
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	source *SMTP
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{source: b.source, remote: c.Conn().RemoteAddr().String()}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	source *SMTP
	remote string
	sender string
}

func (s *smtpSession) Reset() {
	s.sender = ""
}

func (s *smtpSession) AuthPlain(_ []byte) error {
	return smtp.ErrAuthUnsupported
}

func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

func (s *smtpSession) Rcpt(_ string, _ *smtp.RcptOptions) error {
	return nil
}

func (s *smtpSession) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		s.source.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	c, err := parseMessage(raw, "smtp", s.remote)
	if err != nil {
		s.source.logger.Warn("Rejecting unparseable message", zap.Error(err), zap.String("remote", s.remote))
		return &smtp.SMTPError{
			Code:         554,
			EnhancedCode: smtp.EnhancedCode{5, 6, 0},
			Message:      "Message could not be parsed",
		}
	}
	if c.Sender == "" {
		c.Sender = s.sender
	}

	if err := s.source.enqueue(c); err != nil {
		s.source.logger.Warn("Candidate queue full", zap.String("candidate_id", c.ID))
		return err
	}

	s.source.logger.Debug("Candidate queued",
		zap.String("candidate_id", c.ID),
		zap.String("sender", c.Sender))
	return nil
}

func (s *smtpSession) Logout() error {
	return nil
}
