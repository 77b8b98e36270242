package risk

import (
	"fmt"

	"github.com/xela07ax/usagerisk/internal/domain"
)

var conditionPhrase = map[domain.Emotion]string{
	domain.EmotionGood:   "you are in a good mood",
	domain.EmotionNormal: "you feel ordinary",
	domain.EmotionBad:    "you are not feeling well",
}

var categoryLabel = map[domain.Category]string{
	domain.CategorySNS:   "SNS",
	domain.CategoryGame:  "game",
	domain.CategoryOther: "other",
}

var levelTemplate = map[domain.RiskLevel]string{
	domain.LevelDanger:  "When %s, there is a risk of overusing %s apps.",
	domain.LevelCaution: "When %s, take care with %s apps.",
}

const (
	safeMessage    = "Your usage is expected to stay healthy."
	nightOwlAlert  = "Late-night usage concentration detected"
	unknownPhrase  = "your mood is unknown"
	unknownAppType = "these"
)

// Message — подстановка по таблице (настроение, уровень, категория). Никакой генерации.
func Message(emotion domain.Emotion, level domain.RiskLevel, category domain.Category) string {
	tpl, ok := levelTemplate[level]
	if !ok {
		return safeMessage
	}
	cond, ok := conditionPhrase[emotion]
	if !ok {
		cond = unknownPhrase
	}
	label, ok := categoryLabel[category]
	if !ok {
		label = unknownAppType
	}
	return fmt.Sprintf(tpl, cond, label)
}
