package notify

import (
	"fmt"

	"github.com/xela07ax/usagerisk/internal/domain"
)

var titles = map[domain.RiskLevel]string{
	domain.LevelDanger:  "Heads up: high overuse risk today",
	domain.LevelCaution: "A gentle reminder about today",
}

var moodLead = map[domain.Emotion]string{
	domain.EmotionGood:   "You're in a good mood today.",
	domain.EmotionNormal: "Today looks like an ordinary day.",
	domain.EmotionBad:    "Rough day? Be kind to yourself.",
}

// Compose собирает заголовок и текст уведомления по уровню, настроению, приложению и окну времени.
func Compose(p *domain.Prediction, emotion domain.Emotion) (string, string) {
	title, ok := titles[p.RiskAnalysis.Level]
	if !ok {
		title = "Usage forecast"
	}

	lead, ok := moodLead[emotion]
	if !ok {
		lead = moodLead[domain.EmotionNormal]
	}

	app := p.UsagePrediction.TargetCategory
	if app == "" {
		app = p.RiskAnalysis.VulnerableCategory
	}

	body := lead
	if p.UsagePrediction.HasPrediction {
		body += fmt.Sprintf(" You'll likely reach for %s between %s and %s.",
			app, p.UsagePrediction.StartTime, p.UsagePrediction.EndTime)
	}
	if p.RiskAnalysis.Level == domain.LevelDanger {
		body += " Try setting a timer before you start."
	} else {
		body += " A short break might help."
	}
	return title, body
}
