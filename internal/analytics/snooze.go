package analytics

import (
	"fmt"
	"sort"
	"time"

	"HydroMed/internal/model"
	"HydroMed/utils"
)

const (
	snoozeMinOccurrences    = 3
	snoozeMinConsecutive    = 3
	snoozeSuggestionMinutes = 30
)

// SnoozeSuggestion 连续多天被推迟的用药时间及建议调整后的时间
type SnoozeSuggestion struct {
	MedicationName  string `json:"medication_name"`
	OriginalTime    string `json:"original_time"`
	SuggestedTime   string `json:"suggested_time"`
	Statement       string `json:"statement"`
	MedicationID    int64  `json:"medication_id"`
	Occurrences     int    `json:"occurrences"`
	ConsecutiveDays int    `json:"consecutive_days"`
}

type snoozeKey struct {
	medID        int64
	hour, minute int
}

// AnalyzeSnoozes 只看仍处于 scheduled 且被推迟过的用药提醒，按 loc 下的原定时间分组
func AnalyzeSnoozes(ns []model.Notification, names map[int64]string, loc *time.Location) []SnoozeSuggestion {
	if loc == nil {
		loc = time.UTC
	}
	groups := make(map[snoozeKey][]time.Time)
	for _, n := range ns {
		if n.Type != model.NotificationTypeMedication ||
			n.Status != model.NotificationStatusScheduled ||
			n.SnoozeCount <= 0 {
			continue
		}
		medID := medicationIDOf(n)
		if medID == 0 {
			continue
		}
		original := n.OriginalScheduledTime.In(loc)
		key := snoozeKey{medID: medID, hour: original.Hour(), minute: original.Minute()}
		groups[key] = append(groups[key], original)
	}

	keys := make([]snoozeKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].medID != keys[j].medID {
			return keys[i].medID < keys[j].medID
		}
		if keys[i].hour != keys[j].hour {
			return keys[i].hour < keys[j].hour
		}
		return keys[i].minute < keys[j].minute
	})

	var suggestions []SnoozeSuggestion
	for _, k := range keys {
		times := groups[k]
		if len(times) < snoozeMinOccurrences {
			continue
		}
		run := longestDayRun(times)
		if run < snoozeMinConsecutive {
			continue
		}

		name := names[k.medID]
		if name == "" {
			name = fmt.Sprintf("medication #%d", k.medID)
		}
		original := utils.FormatClock(k.hour, k.minute)
		suggested := ShiftClock(k.hour, k.minute, snoozeSuggestionMinutes)

		suggestions = append(suggestions, SnoozeSuggestion{
			MedicationID:    k.medID,
			MedicationName:  name,
			OriginalTime:    original,
			SuggestedTime:   suggested,
			Occurrences:     len(times),
			ConsecutiveDays: run,
			Statement: fmt.Sprintf("You snoozed %s at %s on %d days in a row. Consider moving it to %s.",
				name, original, run, suggested),
		})
	}

	return suggestions
}

// ShiftClock 时间加分钟，跨零点按 24 小时取模
func ShiftClock(hour, minute, add int) string {
	total := ((hour*60+minute+add)%(24*60) + 24*60) % (24 * 60)
	return utils.FormatClock(total/60, total%60)
}

// longestDayRun 计算不同日历日中最长的连续天数
func longestDayRun(times []time.Time) int {
	days := make(map[time.Time]bool)
	for _, t := range times {
		days[utils.StartOfDay(t)] = true
	}

	sorted := make([]time.Time, 0, len(days))
	for d := range days {
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	best, run := 0, 0
	for i, d := range sorted {
		if i > 0 && sorted[i-1].AddDate(0, 0, 1).Equal(d) {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}
	return best
}
