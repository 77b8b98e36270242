package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xela07ax/usagerisk/internal/domain"
)

const fallbackMessage = "Analysis is unavailable right now."

var riskTitles = map[domain.RiskLevel]string{
	domain.LevelDanger:  "High risk",
	domain.LevelCaution: "Moderate risk",
	domain.LevelSafe:    "Low risk",
}

var categoryNames = map[string]string{
	string(domain.CategorySNS):   "SNS",
	string(domain.CategoryGame):  "game",
	string(domain.CategoryOther): "other",
}

// displayCategory: "Instagram (SNS)" остается как есть, базовые категории переводятся в текст.
func displayCategory(c string) string {
	if strings.Contains(c, "(") {
		return c
	}
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return c
}

func riskMessage(level domain.RiskLevel, category string) string {
	cat := displayCategory(category)
	switch level {
	case domain.LevelDanger:
		return fmt.Sprintf("Today carries a high risk of overusing %s apps.", cat)
	case domain.LevelCaution:
		return fmt.Sprintf("Today calls for some care with %s apps.", cat)
	default:
		return "Today is a low-risk day."
	}
}

// usageMessage: "HH:00" превращается в часы, "21:00".."22:00" дает "21~22h".
func usageMessage(u domain.UsagePrediction) string {
	if !u.HasPrediction {
		return ""
	}
	window := u.StartTime + "~" + u.EndTime
	sh, err1 := leadingHour(u.StartTime)
	eh, err2 := leadingHour(u.EndTime)
	if err1 == nil && err2 == nil {
		window = fmt.Sprintf("%d~%d", sh, eh)
	}
	return fmt.Sprintf("Today you are likely to use %s apps between %sh.", displayCategory(u.TargetCategory), window)
}

func leadingHour(hhmm string) (int, error) {
	h, _, _ := strings.Cut(hhmm, ":")
	return strconv.Atoi(h)
}

var safeRecommendation = domain.Recommendation{
	Title:       "🎉 Well done!",
	Description: "Your usage is expected to stay low today. Keep up the good habits and enjoy your day!",
}

var recommendationPool = []domain.Recommendation{
	{Title: "🚶 Take a walk", Description: "A 15-minute walk reduces the urge to scroll through short-form content."},
	{Title: "😌 Get some rest", Description: "Resting well before the evening helps prevent excessive app use."},
	{Title: "📱 Digital detox", Description: "After 8 PM, put your phone away and try reading or meditating instead."},
	{Title: "📖 Read a book", Description: "Reading instead of short-form content improves sleep quality and calms the mind."},
	{Title: "🧘 10-minute meditation", Description: "Close your eyes and focus on your breathing. It helps clear a busy mind."},
	{Title: "🍵 Have a warm tea", Description: "Enjoy a cup of tea without your phone and take time for yourself."},
	{Title: "🗣️ Talk with a friend", Description: "Meet or call someone instead of messaging. Real conversation is more rewarding."},
	{Title: "🖼️ Look out the window", Description: "Rest your eyes on a distant view. It relieves eye strain and lifts your mood."},
	{Title: "📝 Keep a journal", Description: "Write down how you felt today. It is a chance to reflect on your app habits."},
	{Title: "🎵 Listen to music", Description: "Relax with your favorite music. It is far more soothing than staring at a screen."},
}

var moodIcons = map[domain.Emotion]string{
	domain.EmotionGood:   "😀",
	domain.EmotionNormal: "😐",
	domain.EmotionBad:    "😞",
}

var emotionNames = map[domain.Emotion]string{
	domain.EmotionGood:   "Good",
	domain.EmotionNormal: "Normal",
	domain.EmotionBad:    "Bad",
}

var statusNames = map[domain.Status]string{
	domain.StatusBusy: "Busy",
	domain.StatusFree: "Free",
}

// MoodDescription строит заголовок "<иконка> <настроение> · <статус>" и совет на день.
func MoodDescription(emotion domain.Emotion, status domain.Status) domain.MoodDescription {
	icon, ok := moodIcons[emotion]
	if !ok {
		icon = moodIcons[domain.EmotionNormal]
	}
	e, ok := emotionNames[emotion]
	if !ok {
		e = string(emotion)
	}
	s, ok := statusNames[status]
	if !ok {
		s = string(status)
	}

	free := status == domain.StatusFree
	var desc string
	switch emotion {
	case domain.EmotionBad:
		if free {
			desc = "You're not feeling great, but you have some free time. A short walk might help."
		} else {
			desc = "Feeling low on a busy day. Take a few deep breaths between tasks."
		}
	case domain.EmotionGood:
		if free {
			desc = "Good mood and free time, a perfect day! How about starting a new hobby or workout?"
		} else {
			desc = "Your energy will carry you through a busy day! Just don't overdo it."
		}
	default:
		if free {
			desc = "A calm and relaxed day. How about a book you've wanted to read or a movie you missed?"
		} else {
			desc = "An ordinary day with a busy schedule ahead. Take things one step at a time."
		}
	}

	return domain.MoodDescription{Title: fmt.Sprintf("%s %s · %s", icon, e, s), Description: desc}
}
