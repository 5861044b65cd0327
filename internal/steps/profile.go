package steps

import (
	"context"
	"net/mail"
	"strings"

	"github.com/hazyhaar/redflag/internal/catalog"
	"github.com/hazyhaar/redflag/internal/messages"
	"github.com/hazyhaar/redflag/internal/session"
)

type languageStep struct{}

func (languageStep) Name() string { return NameLanguage }

func (languageStep) View(_ context.Context, _ *session.Progress, page *session.Page) {
	page.Payload = map[string]any{"languages": []catalog.Language{catalog.EN, catalog.TR}}
}

func (s languageStep) Run(ctx context.Context, p *session.Progress, in session.Input, page *session.Page) bool {
	s.View(ctx, p, page)
	var req struct {
		Language string `json:"language"`
	}
	if !decodeOrNotify(in, &req, page, p) {
		return false
	}
	lang, ok := catalog.ParseLanguage(req.Language)
	if !ok {
		notify(page, p, session.LevelWarning, messages.LanguageRequired)
		return false
	}
	p.User.Language = lang
	return true
}

type profileStep struct{}

func (profileStep) Name() string { return NameProfile }

func (profileStep) Run(_ context.Context, p *session.Progress, in session.Input, page *session.Page) bool {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if !decodeOrNotify(in, &req, page, p) {
		return false
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		notify(page, p, session.LevelWarning, messages.NameRequired)
		return false
	}
	// email is optional; it only enables the emailed report
	addr := strings.TrimSpace(req.Email)
	if addr != "" {
		parsed, err := mail.ParseAddress(addr)
		if err != nil || parsed.Address != addr {
			notify(page, p, session.LevelWarning, messages.EmailInvalid)
			return false
		}
	}
	p.User.Name, p.User.Email = name, addr
	return true
}

type partnerStep struct{}

func (partnerStep) Name() string { return NamePartner }

func (partnerStep) Run(_ context.Context, p *session.Progress, in session.Input, page *session.Page) bool {
	var req struct {
		PartnerName string `json:"partner_name"`
	}
	if !decodeOrNotify(in, &req, page, p) {
		return false
	}
	partner := strings.TrimSpace(req.PartnerName)
	if partner == "" {
		notify(page, p, session.LevelWarning, messages.PartnerRequired)
		return false
	}
	p.PartnerName = partner
	return true
}

// welcomeStep only needs an acknowledgement.
type welcomeStep struct{}

func (welcomeStep) Name() string { return NameWelcome }

func (welcomeStep) View(_ context.Context, p *session.Progress, page *session.Page) {
	page.Payload = map[string]any{"name": p.User.Name, "partner_name": p.PartnerName}
}

func (s welcomeStep) Run(ctx context.Context, p *session.Progress, in session.Input, page *session.Page) bool {
	s.View(ctx, p, page)
	return !in.Empty()
}
