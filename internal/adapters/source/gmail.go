package source

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"iter"
	"os"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/mikey/giveaway-engine/internal/config"
	"github.com/mikey/giveaway-engine/internal/core"
)

// Gmail polls a label through the Gmail API. Ack removes UNREAD.
type Gmail struct {
	svc    *gmail.Service
	cfg    config.GmailConfig
	logger *zap.Logger
}

// NewGmail authenticates with a stored OAuth token. The token file is
// produced once by an interactive consent flow outside the engine.
func NewGmail(ctx context.Context, cfg config.GmailConfig, logger *zap.Logger) (*Gmail, error) {
	creds, err := os.ReadFile(cfg.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read Gmail credentials: %w", err)
	}
	oauthCfg, err := google.ConfigFromJSON(creds, gmail.GmailModifyScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Gmail credentials: %w", err)
	}

	tokenData, err := os.ReadFile(cfg.TokenPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read Gmail token: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(tokenData, &token); err != nil {
		return nil, fmt.Errorf("failed to parse Gmail token: %w", err)
	}

	svc, err := gmail.NewService(ctx, option.WithTokenSource(oauthCfg.TokenSource(ctx, &token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return NewGmailWithService(svc, cfg, logger), nil
}

// NewGmailWithService wraps an already configured service
func NewGmailWithService(svc *gmail.Service, cfg config.GmailConfig, logger *zap.Logger) *Gmail {
	if cfg.User == "" {
		cfg.User = "me"
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 10
	}
	return &Gmail{svc: svc, cfg: cfg, logger: logger}
}

func (g *Gmail) query() string {
	q := ""
	if g.cfg.Label != "" {
		q = "label:" + g.cfg.Label
	}
	if g.cfg.UnreadOnly {
		if q != "" {
			q += " "
		}
		q += "is:unread"
	}
	return q
}

// Poll implements core.EmailSource
func (g *Gmail) Poll(ctx context.Context) iter.Seq2[core.Candidate, error] {
	return func(yield func(core.Candidate, error) bool) {
		list, err := g.svc.Users.Messages.List(g.cfg.User).
			Q(g.query()).
			MaxResults(g.cfg.MaxResults).
			Context(ctx).
			Do()
		if err != nil {
			yield(core.Candidate{}, fmt.Errorf("failed to list Gmail messages: %w", err))
			return
		}

		g.logger.Debug("Gmail poll", zap.String("query", g.query()), zap.Int("messages", len(list.Messages)))

		for _, m := range list.Messages {
			if ctx.Err() != nil {
				return
			}
			c, err := g.fetch(ctx, m.Id)
			if !yield(c, err) {
				return
			}
		}
	}
}

func (g *Gmail) fetch(ctx context.Context, id string) (core.Candidate, error) {
	msg, err := g.svc.Users.Messages.Get(g.cfg.User, id).Format("raw").Context(ctx).Do()
	if err != nil {
		return core.Candidate{}, fmt.Errorf("failed to get Gmail message %s: %w", id, err)
	}

	raw, err := base64.URLEncoding.DecodeString(msg.Raw)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(msg.Raw)
		if err != nil {
			return core.Candidate{}, fmt.Errorf("failed to decode Gmail message %s: %w", id, err)
		}
	}

	c, err := parseMessage(raw, "gmail", id)
	if err != nil {
		return core.Candidate{}, fmt.Errorf("gmail message %s: %w", id, err)
	}
	// Acks are addressed by Gmail id
	c.ID = id
	return c, nil
}

// Ack implements core.EmailSource
func (g *Gmail) Ack(ctx context.Context, candidateID string) error {
	_, err := g.svc.Users.Messages.Modify(g.cfg.User, candidateID, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to mark Gmail message %s read: %w", candidateID, err)
	}
	return nil
}
