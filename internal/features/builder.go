package features

/*
Файл builder.go превращает сырые события использования в окно признаков фиксированной формы.

Порядок работы:
- нормализация времени события (start_time, иначе полночь usage_date);
- округление до часа и агрегирование секунд по (час, категория);
- уплотнение: ровно 24 часа от полуночи САМОГО РАННЕГО часа, пропуски заполняются нулями;
- доли занятости часа, циклические признаки часа и дня недели, настроение и статус;
- выравнивание до 24 строк (нули слева либо последние 24).

Функция чистая: одинаковый вход дает побитово одинаковое окно.
*/

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/xela07ax/usagerisk/internal/domain"
)

const (
	SeqLen     = 24
	FeatureDim = 10

	secondsPerHour = 3600.0
)

// Индексы колонок окна.
const (
	ColSNS = iota
	ColGame
	ColOther
	ColTotal
	ColEmotion
	ColStatus
	ColHourSin
	ColHourCos
	ColDowSin
	ColDowCos
)

// Классификация формы входа (только для диагностики).
const (
	InputAllDay     = "TYPE_ALL_DAY"
	InputShiftedDay = "TYPE_SHIFTED_DAY"
	InputIrregular  = "TYPE_IRREGULAR"
)

// ErrInsufficientData — сентинел: событий нет или ни у одного нет пригодного времени.
var ErrInsufficientData = errors.New("features: insufficient data")

// Window — вход модели: 24 часовые строки × 10 признаков.
type Window [SeqLen][FeatureDim]float64

// HourlyBucket — агрегат одного часа до нормализации.
type HourlyBucket struct {
	Hour    time.Time
	Seconds [domain.NumClasses]float64
}

// Total — суммарные секунды за час по всем категориям.
func (b HourlyBucket) Total() float64 {
	return b.Seconds[0] + b.Seconds[1] + b.Seconds[2]
}

// Meta — диагностика построения окна. На числа окна не влияет.
type Meta struct {
	AnalysisDate  string
	InputType     string
	MinTS         time.Time
	MaxTS         time.Time
	ObservedHours int
}

type stamped struct {
	ts   time.Time
	cat  domain.Category
	secs float64
}

// Build строит окно признаков. На плохом входе возвращает ErrInsufficientData, не паникует.
func Build(events []domain.UsageEvent, emotion domain.Emotion, status domain.Status) (Window, Meta, error) {
	var meta Meta

	parsed := normalize(events)
	if len(parsed) == 0 {
		return Window{}, meta, ErrInsufficientData
	}

	meta.MinTS = parsed[0].ts
	meta.MaxTS = parsed[len(parsed)-1].ts
	// Дата анализа = день якоря + 1. Якорь по самому раннему событию, иначе при входе 08:00..07:00
	// дата уезжает на день вперед.
	meta.AnalysisDate = meta.MinTS.AddDate(0, 0, 1).Format(time.DateOnly)
	meta.InputType = classify(meta.MinTS.Hour())

	buckets, observed := densify(parsed)
	meta.ObservedHours = observed

	return FromBuckets(buckets, emotion, status), meta, nil
}

// FromBuckets нормализует уже уплотненные часы и выравнивает их до 24 строк.
// Строки-заглушки слева нулевые, кроме константных колонок настроения и статуса.
func FromBuckets(buckets []HourlyBucket, emotion domain.Emotion, status domain.Status) Window {
	var w Window

	e, s := emotion.Code(), status.Code()
	for i := range w {
		w[i][ColEmotion] = e
		w[i][ColStatus] = s
	}

	if len(buckets) > SeqLen {
		buckets = buckets[len(buckets)-SeqLen:]
	}
	offset := SeqLen - len(buckets)

	for i, b := range buckets {
		row := &w[offset+i]
		for c := 0; c < domain.NumClasses; c++ {
			row[c] = occupancy(b.Seconds[c])
		}
		row[ColTotal] = occupancy(b.Total())

		hour := float64(b.Hour.Hour())
		dow := float64(mondayFirst(b.Hour.Weekday()))
		row[ColHourSin] = math.Sin(2 * math.Pi * hour / 24)
		row[ColHourCos] = math.Cos(2 * math.Pi * hour / 24)
		row[ColDowSin] = math.Sin(2 * math.Pi * dow / 7)
		row[ColDowCos] = math.Cos(2 * math.Pi * dow / 7)
	}
	return w
}

// normalize разбирает время, отбрасывает события без него и сортирует остальное,
// чтобы порядок суммирования не зависел от порядка на входе. Смещение зоны отбрасывается:
// и сортировка, и часовые корзины идут по настенному времени события.
func normalize(events []domain.UsageEvent) []stamped {
	out := make([]stamped, 0, len(events))
	for _, ev := range events {
		ts, ok := eventTime(ev)
		if !ok {
			continue
		}
		ts = wallClock(ts)
		secs := ev.DurationMs / 1000.0
		if secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
			secs = 0
		}
		out = append(out, stamped{ts: ts, cat: domain.ParseCategory(ev.Category), secs: secs})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ts.Equal(out[j].ts) {
			return out[i].ts.Before(out[j].ts)
		}
		if out[i].cat != out[j].cat {
			return out[i].cat.Index() < out[j].cat.Index()
		}
		return out[i].secs < out[j].secs
	})
	return out
}

// densify агрегирует по часам и разворачивает ровно 24 часа от полуночи первого часа.
// Часы за пределами якорных суток отбрасываются.
func densify(parsed []stamped) ([]HourlyBucket, int) {
	sums := make(map[time.Time]*HourlyBucket)
	for _, p := range parsed {
		h := floorHour(p.ts)
		b, ok := sums[h]
		if !ok {
			b = &HourlyBucket{Hour: h}
			sums[h] = b
		}
		b.Seconds[p.cat.Index()] += p.secs
	}

	first := floorHour(parsed[0].ts)
	anchor := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, time.UTC)

	out := make([]HourlyBucket, SeqLen)
	observed := 0
	for i := range out {
		h := anchor.Add(time.Duration(i) * time.Hour)
		if b, ok := sums[h]; ok {
			out[i] = *b
			observed++
			continue
		}
		out[i] = HourlyBucket{Hour: h}
	}
	return out, observed
}

func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// floorHour переводит время в "настенные часы" без зоны, как это делает наивный datetime.
func floorHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
}

func occupancy(seconds float64) float64 {
	v := seconds / secondsPerHour
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

func mondayFirst(d time.Weekday) int {
	return (int(d) + 6) % 7
}

func classify(hour int) string {
	switch {
	case hour >= 0 && hour <= 2:
		return InputAllDay
	case hour >= 7 && hour <= 9:
		return InputShiftedDay
	default:
		return InputIrregular
	}
}
