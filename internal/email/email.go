// CLAUDE:SUMMARY Optional SMTP report mailer — html/template report in EN/TR, explicit disabled/sent/failed outcome
// Package email sends the survey report to the user.
package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hazyhaar/redflag/internal/catalog"
	"github.com/hazyhaar/redflag/internal/config"
	"github.com/hazyhaar/redflag/internal/scoring"
)

//go:embed templates/report.html
var templateFS embed.FS

var reportTmpl = template.Must(template.ParseFS(templateFS, "templates/report.html"))

// Status is the explicit result of a send attempt.
type Status string

const (
	StatusDisabled Status = "disabled"
	StatusSent     Status = "sent"
	StatusFailed   Status = "failed"
)

type Outcome struct {
	Status Status `json:"status"`
	Err    error  `json:"-"`
}

// Report is the content of one report email.
type Report struct {
	To               string
	UserName         string
	PartnerName      string
	Language         catalog.Language
	Score            decimal.Decimal
	Average          decimal.Decimal
	Fails            bool
	FilterViolations int
	Categories       []scoring.CategoryScore
	Insight          string
}

type labels struct {
	Subject, Title, Hello, Intro, Results, Score, Average, Above, Below string
	Violations, Categories, Insight, Footer                             string
}

var texts = map[catalog.Language]labels{
	catalog.EN: {
		Subject: "RedFlag - %s Toxicity Report", Title: "Toxicity Report", Hello: "Hello",
		Intro: "Your survey results are ready. Here is the toxicity analysis for", Results: "Results",
		Score: "Toxicity score", Average: "Average score", Above: "This score is above the average.",
		Below: "This score is at or below the average.", Violations: "Filter violations",
		Categories: "Categories", Insight: "Insights", Footer: "This email was sent automatically. Please do not reply.",
	},
	catalog.TR: {
		Subject: "RedFlag - %s Toksiklik Raporu", Title: "Toksiklik Raporu", Hello: "Merhaba",
		Intro: "Anket sonuçlarınız hazır. İşte toksiklik analizi:", Results: "Sonuçlar",
		Score: "Toksiklik skoru", Average: "Ortalama skor", Above: "Bu skor ortalamanın üzerinde.",
		Below: "Bu skor ortalamada veya altında.", Violations: "Filtre ihlalleri",
		Categories: "Kategoriler", Insight: "İçgörüler", Footer: "Bu e-posta otomatik olarak gönderilmiştir. Lütfen yanıtlamayın.",
	},
}

func labelsFor(lang catalog.Language) labels {
	if lang == catalog.TR {
		return texts[catalog.TR]
	}
	return texts[catalog.EN]
}

// Render returns the subject and HTML body of r.
func Render(r Report) (string, string, error) {
	l := labelsFor(r.Language)
	data := struct {
		Report
		L              labels
		ScorePercent   string
		AveragePercent string
	}{
		Report:         r,
		L:              l,
		ScorePercent:   r.Score.Mul(decimal.NewFromInt(100)).StringFixed(1),
		AveragePercent: r.Average.Mul(decimal.NewFromInt(100)).StringFixed(1),
	}
	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("rendering report: %w", err)
	}
	return fmt.Sprintf(l.Subject, r.PartnerName), buf.String(), nil
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends reports over SMTP with STARTTLS and PLAIN auth.
type Mailer struct {
	cfg  config.SMTPConfig
	send SendFunc
}

func NewMailer(cfg config.SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg, send: smtp.SendMail}
}

// Enabled reports whether sender credentials are configured.
func (m *Mailer) Enabled() bool {
	return m != nil && m.cfg.Enabled()
}

// Send delivers the report. An unconfigured mailer or a report without a
// recipient is disabled, not failed.
func (m *Mailer) Send(ctx context.Context, r Report) Outcome {
	if !m.Enabled() || strings.TrimSpace(r.To) == "" {
		return Outcome{Status: StatusDisabled}
	}
	if err := ctx.Err(); err != nil {
		return Outcome{Status: StatusFailed, Err: err}
	}
	subject, body, err := Render(r)
	if err != nil {
		return Outcome{Status: StatusFailed, Err: err}
	}
	msg := buildMessage(m.cfg.SenderEmail, r.To, subject, body)
	addr := net.JoinHostPort(m.cfg.Server, strconv.Itoa(m.cfg.Port))
	auth := smtp.PlainAuth("", m.cfg.SenderEmail, m.cfg.SenderPassword, m.cfg.Server)
	if err := m.send(addr, auth, m.cfg.SenderEmail, []string{r.To}, msg); err != nil {
		slog.Warn("report email failed", "server", addr, "error", err)
		return Outcome{Status: StatusFailed, Err: err}
	}
	slog.Info("report email sent", "server", addr)
	return Outcome{Status: StatusSent}
}

func buildMessage(from, to, subject, body string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	b.WriteString(body)
	return b.Bytes()
}
