// CLAUDE:SUMMARY User-facing notice texts in EN/TR keyed by stable message keys — internal errors are never shown raw
package messages

import "github.com/hazyhaar/redflag/internal/catalog"

// Message keys.
const (
	CatalogUnavailable = "catalog_unavailable"
	ScoringConfig      = "scoring_config_error"
	SaveFailed         = "save_failed"
	Saved              = "saved"
	InvalidInput       = "invalid_input"
	LanguageRequired   = "language_required"
	NameRequired       = "name_required"
	EmailInvalid       = "email_invalid"
	PartnerRequired    = "partner_required"
	AnswerAll          = "answer_all"
	RatingRange        = "rating_range"
	ScorePass          = "score_pass"
	ScoreFail          = "score_fail"
	ScoreUndefined     = "score_undefined"
	FilterPass         = "filter_pass"
	FilterFail         = "filter_fail"
	InsightUnavailable = "insight_unavailable"
	ReportSent         = "report_sent"
	ReportFailed       = "report_failed"
	SessionExpired     = "session_expired"
	NewRoundLocked     = "new_round_locked"
	Internal           = "internal_error"
	Unauthorized       = "unauthorized"
	RateLimited        = "rate_limited"
	NotFound           = "not_found"
)

var texts = map[string][2]string{
	CatalogUnavailable: {"The questions could not be loaded. Please try again later.", "Sorular yüklenemedi. Lütfen daha sonra tekrar deneyin."},
	ScoringConfig:      {"The survey is misconfigured. Please contact the administrator.", "Anket yapılandırması hatalı. Lütfen yöneticiye başvurun."},
	SaveFailed:         {"Your answers could not be saved. Please try again.", "Yanıtlarınız kaydedilemedi. Lütfen tekrar deneyin."},
	Saved:              {"Your answers were saved.", "Yanıtlarınız kaydedildi."},
	InvalidInput:       {"Some answers were not understood.", "Bazı yanıtlar anlaşılamadı."},
	LanguageRequired:   {"Please choose a language.", "Lütfen bir dil seçin."},
	NameRequired:       {"Please enter your name.", "Lütfen adınızı girin."},
	EmailInvalid:       {"Please enter a valid email address.", "Lütfen geçerli bir e-posta adresi girin."},
	PartnerRequired:    {"Please enter your partner's name.", "Lütfen partnerinizin adını girin."},
	AnswerAll:          {"Please answer every question.", "Lütfen tüm soruları yanıtlayın."},
	RatingRange:        {"Please pick a rating from 1 to 5.", "Lütfen 1 ile 5 arasında bir puan seçin."},
	ScorePass:          {"Your score is at or below the average.", "Puanınız ortalamanın altında veya ortalamada."},
	ScoreFail:          {"Your score is above the average.", "Puanınız ortalamanın üzerinde."},
	ScoreUndefined:     {"No question applied, so no score was computed.", "Hiçbir soru uygulanamadığı için puan hesaplanmadı."},
	FilterPass:         {"No deal-breakers were reported.", "Hiçbir kesin engel bildirilmedi."},
	FilterFail:         {"Some answers crossed a deal-breaker threshold.", "Bazı yanıtlar kesin engel eşiğini aştı."},
	InsightUnavailable: {"A personal insight is not available right now.", "Kişisel değerlendirme şu anda kullanılamıyor."},
	ReportSent:         {"Your report was emailed.", "Raporunuz e-posta ile gönderildi."},
	ReportFailed:       {"Your report could not be emailed.", "Raporunuz e-posta ile gönderilemedi."},
	SessionExpired:     {"Your session expired. Please start again.", "Oturumunuzun süresi doldu. Lütfen yeniden başlayın."},
	NewRoundLocked:     {"Finish the current survey before starting a new one.", "Yeni bir ankete başlamadan önce mevcut anketi bitirin."},
	Internal:           {"Something went wrong. Please try again.", "Bir şeyler ters gitti. Lütfen tekrar deneyin."},
	Unauthorized:       {"You are not signed in.", "Oturum açmadınız."},
	RateLimited:        {"Too many requests. Please slow down.", "Çok fazla istek. Lütfen yavaşlayın."},
	NotFound:           {"Not found.", "Bulunamadı."},
}

// Text returns the message for key in lang. Unknown keys return the key.
func Text(key string, lang catalog.Language) string {
	t, ok := texts[key]
	if !ok {
		return key
	}
	if lang == catalog.TR {
		return t[1]
	}
	return t[0]
}
