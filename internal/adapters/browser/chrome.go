package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/mikey/giveaway-engine/internal/config"
	"github.com/mikey/giveaway-engine/internal/core"
)

const pollInterval = 250 * time.Millisecond

// Phrases that mark a giveaway page as closed
var endedPhrases = []string{
	"giveaway has ended",
	"giveaway is closed",
	"contest has ended",
	"sweepstakes has ended",
	"this promotion has expired",
	"entries are now closed",
	"no longer accepting entries",
}

const captchaProbe = `!!document.querySelector(
	'iframe[src*="recaptcha"], iframe[src*="hcaptcha.com"], iframe[src*="challenges.cloudflare.com"], ' +
	'.g-recaptcha, .h-captcha, .cf-turnstile, #captcha, [data-sitekey]')`

// locateScript tags the entry form with data-giveaway-form and reports its inputs.
// With no selector the form with the most fillable inputs wins.
const locateScript = `(() => {
	const sel = %s;
	const fillable = el => !['submit','button','hidden','reset','image'].includes((el.type || '').toLowerCase());
	let form = null;
	if (sel) {
		form = document.querySelector(sel);
	} else {
		let best = 0;
		for (const f of document.forms) {
			const n = Array.from(f.elements).filter(e => e.name && fillable(e)).length;
			if (n > best) { best = n; form = f; }
		}
	}
	if (!form) return null;
	document.querySelectorAll('[data-giveaway-form]').forEach(f => f.removeAttribute('data-giveaway-form'));
	form.setAttribute('data-giveaway-form', '1');
	const seen = new Set();
	const fields = [];
	for (const el of form.querySelectorAll('input, select, textarea')) {
		const name = el.name || el.id;
		if (!name || seen.has(name)) continue;
		seen.add(name);
		fields.push({name: name, type: (el.type || el.tagName).toLowerCase(), required: !!el.required});
	}
	return fields;
})()`

const setFieldScript = `(() => {
	const form = document.querySelector('[data-giveaway-form]');
	if (!form) return 'no form';
	const name = %s, value = %s;
	const el = form.querySelector('[name="' + CSS.escape(name) + '"]') || form.querySelector('#' + CSS.escape(name));
	if (!el) return 'no field';
	const type = (el.type || '').toLowerCase();
	if (type === 'checkbox' || type === 'radio') {
		el.checked = !['', '0', 'false', 'no'].includes(value.toLowerCase());
	} else {
		el.focus();
		el.value = value;
	}
	el.dispatchEvent(new Event('input', {bubbles: true}));
	el.dispatchEvent(new Event('change', {bubbles: true}));
	return '';
})()`

const submitScript = `(() => {
	const form = document.querySelector('[data-giveaway-form]');
	if (!form) return false;
	if (form.requestSubmit) { form.requestSubmit(); } else { form.submit(); }
	return true;
})()`

type locatedField struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// Chrome hands out tabs of one shared headless Chrome process
type Chrome struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	logger        *zap.Logger
}

// NewChrome starts Chrome. The process lives until Close.
func NewChrome(cfg config.BrowserConfig, logger *zap.Logger) (*Chrome, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Warnf))

	// The first Run launches the process
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start Chrome: %w", err)
	}

	logger.Info("Chrome started", zap.Bool("headless", cfg.Headless))
	return &Chrome{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		logger:        logger,
	}, nil
}

// NewPage implements core.Browser
func (c *Chrome) NewPage(ctx context.Context) (core.Page, error) {
	tabCtx, cancel := chromedp.NewContext(c.browserCtx)
	p := &page{ctx: tabCtx, cancel: cancel, logger: c.logger}
	if err := p.run(ctx); err != nil {
		cancel()
		return nil, core.NewError(core.KindNavigation, "browser.new_page", err)
	}
	return p, nil
}

// Close shuts Chrome down
func (c *Chrome) Close() error {
	c.browserCancel()
	c.allocCancel()
	return nil
}

// page is one Chrome tab
type page struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

// run executes actions on the tab bounded by the caller's ctx
func (p *page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *page) Open(ctx context.Context, url string) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	resp, err := chromedp.RunResponse(runCtx, chromedp.Navigate(url))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return core.NewError(core.KindNavigation, "browser.open", err)
	}
	if resp != nil {
		if err := statusError(resp.Status); err != nil {
			return err
		}
	}

	var text string
	if err := p.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text)); err != nil {
		return core.NewError(core.KindNavigation, "browser.open", err)
	}
	if phrase := endedPhrase(text); phrase != "" {
		return core.NewError(core.KindTargetInvalid, "browser.open", fmt.Errorf("page says %q", phrase))
	}
	return nil
}

func (p *page) LocateForm(ctx context.Context, hint core.FormHint) (*core.FormShape, error) {
	sel, _ := json.Marshal(hint.FormSelector)
	script := fmt.Sprintf(locateScript, sel)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		var fields []locatedField
		if err := p.run(ctx, chromedp.Evaluate(script, &fields)); err != nil {
			return nil, err
		}
		if len(fields) > 0 {
			shape := &core.FormShape{Fields: make([]core.FormField, 0, len(fields))}
			for _, f := range fields {
				shape.Fields = append(shape.Fields, core.FormField{Name: f.Name, Type: f.Type, Required: f.Required})
			}
			return shape, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *page) SetField(ctx context.Context, name, value string) error {
	n, _ := json.Marshal(name)
	v, _ := json.Marshal(value)

	var problem string
	if err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(setFieldScript, n, v), &problem)); err != nil {
		return err
	}
	if problem != "" {
		return core.NewError(core.KindIncompleteMapping, "browser.set_field", fmt.Errorf("%s: %s", name, problem))
	}
	return nil
}

func (p *page) Submit(ctx context.Context, hint core.FormHint) error {
	if hint.SubmitSelector != "" {
		return p.run(ctx, chromedp.Click(hint.SubmitSelector, chromedp.ByQuery, chromedp.NodeVisible))
	}

	var ok bool
	if err := p.run(ctx, chromedp.Evaluate(submitScript, &ok)); err != nil {
		return err
	}
	if !ok {
		return core.NewError(core.KindFormNotFound, "browser.submit", errors.New("form disappeared before submit"))
	}
	return nil
}

func (p *page) DetectCaptcha(ctx context.Context) (bool, error) {
	var found bool
	if err := p.run(ctx, chromedp.Evaluate(captchaProbe, &found)); err != nil {
		return false, err
	}
	return found, nil
}

func (p *page) DetectConfirmation(ctx context.Context, patterns []string) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		var text string
		if err := p.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text)); err != nil {
			return err
		}
		if matchesAny(text, patterns) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *page) Close() error {
	p.cancel()
	return nil
}

// statusError maps an HTTP status of the landing page to an error kind
func statusError(status int64) error {
	switch {
	case status >= 500:
		return core.NewError(core.KindNavigation, "browser.open", fmt.Errorf("server answered %d", status))
	case status >= 400:
		return core.NewError(core.KindTargetInvalid, "browser.open", fmt.Errorf("server answered %d", status))
	}
	return nil
}

func endedPhrase(text string) string {
	lower := strings.ToLower(text)
	for _, phrase := range endedPhrases {
		if strings.Contains(lower, phrase) {
			return phrase
		}
	}
	return ""
}

func matchesAny(text string, patterns []string) bool {
	lower := strings.ToLower(text)
	for _, p := range patterns {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
