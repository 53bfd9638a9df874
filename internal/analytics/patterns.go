package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"HydroMed/internal/model"
	"HydroMed/utils"
)

const (
	weakDayRate     = 0.30
	weakHourRate    = 0.40
	weakHourSamples = 3
)

// Event 一次服药结果，Missed 为 true 表示跳过或漏服
type Event struct {
	Time         time.Time
	MedicationID int64
	Missed       bool
}

// EventsFromHistory 服药记录转事件，skipped 计为漏服
func EventsFromHistory(entries []model.MedicationHistoryEntry) []Event {
	events := make([]Event, 0, len(entries))
	for _, e := range entries {
		events = append(events, Event{
			Time:         e.Time,
			MedicationID: e.MedicationID,
			Missed:       e.Status == model.AdherenceStatusSkipped,
		})
	}
	return events
}

// EventsFromMissedNotifications 已 missed 的用药提醒同样计为漏服
func EventsFromMissedNotifications(ns []model.Notification) []Event {
	var events []Event
	for _, n := range ns {
		if n.Type != model.NotificationTypeMedication || n.Status != model.NotificationStatusMissed {
			continue
		}
		medID := medicationIDOf(n)
		if medID == 0 {
			continue
		}
		events = append(events, Event{
			Time:         n.OriginalScheduledTime,
			MedicationID: medID,
			Missed:       true,
		})
	}
	return events
}

func medicationIDOf(n model.Notification) int64 {
	if n.MedicationID != nil {
		return *n.MedicationID
	}
	if n.Payload.Medication != nil {
		return n.Payload.Medication.MedicationID
	}
	return 0
}

// PatternKind 模式维度
type PatternKind string

const (
	PatternWeekday PatternKind = "weekday"
	PatternHour    PatternKind = "hour"
)

// Pattern 一条薄弱模式
type Pattern struct {
	Kind           PatternKind `json:"kind"`
	MedicationName string      `json:"medication_name"`
	Weekday        string      `json:"weekday,omitempty"`
	Statement      string      `json:"statement"`
	MissRate       float64     `json:"miss_rate"`
	MedicationID   int64       `json:"medication_id"`
	Hour           int         `json:"hour"`
	Missed         int         `json:"missed"`
	Total          int         `json:"total"`
}

type tally struct {
	missed, total int
}

func (t tally) rate() float64 {
	if t.total == 0 {
		return 0
	}
	return float64(t.missed) / float64(t.total)
}

// DetectPatterns 按药品分别统计星期和小时维度的漏服率，星期与小时按 loc 计算，nil 为 UTC
// 某天 miss-rate > 30% 且至少漏服一次视为薄弱；某小时样本数 > 3 且 miss-rate > 40% 视为薄弱
func DetectPatterns(events []Event, names map[int64]string, loc *time.Location) []Pattern {
	if loc == nil {
		loc = time.UTC
	}
	byDay := make(map[int64]map[time.Weekday]*tally)
	byHour := make(map[int64]map[int]*tally)

	for _, e := range events {
		e.Time = e.Time.In(loc)
		if byDay[e.MedicationID] == nil {
			byDay[e.MedicationID] = make(map[time.Weekday]*tally)
			byHour[e.MedicationID] = make(map[int]*tally)
		}
		day := byDay[e.MedicationID][e.Time.Weekday()]
		if day == nil {
			day = &tally{}
			byDay[e.MedicationID][e.Time.Weekday()] = day
		}
		hour := byHour[e.MedicationID][e.Time.Hour()]
		if hour == nil {
			hour = &tally{}
			byHour[e.MedicationID][e.Time.Hour()] = hour
		}

		day.total++
		hour.total++
		if e.Missed {
			day.missed++
			hour.missed++
		}
	}

	medIDs := make([]int64, 0, len(byDay))
	for id := range byDay {
		medIDs = append(medIDs, id)
	}
	sort.Slice(medIDs, func(i, j int) bool { return medIDs[i] < medIDs[j] })

	var patterns []Pattern
	for _, medID := range medIDs {
		name := names[medID]
		if name == "" {
			name = fmt.Sprintf("medication #%d", medID)
		}

		for wd := time.Sunday; wd <= time.Saturday; wd++ {
			t, ok := byDay[medID][wd]
			if !ok || t.missed < 1 || t.rate() <= weakDayRate {
				continue
			}
			patterns = append(patterns, Pattern{
				Kind:           PatternWeekday,
				MedicationID:   medID,
				MedicationName: name,
				Weekday:        wd.String(),
				Missed:         t.missed,
				Total:          t.total,
				MissRate:       round2(t.rate()),
				Statement: fmt.Sprintf("You tend to miss %s on %ss (%d%% of doses missed).",
					name, wd.String(), percent(t.rate())),
			})
		}

		for hour := 0; hour < 24; hour++ {
			t, ok := byHour[medID][hour]
			if !ok || t.total <= weakHourSamples || t.rate() <= weakHourRate {
				continue
			}
			patterns = append(patterns, Pattern{
				Kind:           PatternHour,
				MedicationID:   medID,
				MedicationName: name,
				Hour:           hour,
				Missed:         t.missed,
				Total:          t.total,
				MissRate:       round2(t.rate()),
				Statement: fmt.Sprintf("Doses of %s around %s are often missed (%d%% miss rate).",
					name, utils.FormatClock(hour, 0), percent(t.rate())),
			})
		}
	}

	return patterns
}

func percent(rate float64) int {
	return int(math.Round(rate * 100))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
