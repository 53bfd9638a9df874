package analytics

import (
	"math"
	"time"

	"HydroMed/internal/model"
)

const reportWindow = 7 * 24 * time.Hour

// Tier 分级
type Tier string

const (
	TierExcellent Tier = "excellent"
	TierGood      Tier = "good"
	TierNeedsWork Tier = "needs_work"
)

// TierOf 按 ≥90 / ≥70 / 其它 分级
func TierOf(pct float64) Tier {
	switch {
	case pct >= 90:
		return TierExcellent
	case pct >= 70:
		return TierGood
	default:
		return TierNeedsWork
	}
}

var (
	hydrationMessages = map[Tier]string{
		TierExcellent: "Excellent hydration this week, keep it up.",
		TierGood:      "Good hydration this week. A couple more glasses a day would get you there.",
		TierNeedsWork: "Hydration needs attention. Try spreading drinks across the day.",
	}
	medicationMessages = map[Tier]string{
		TierExcellent: "Outstanding medication adherence.",
		TierGood:      "Solid adherence with a few missed doses.",
		TierNeedsWork: "Several doses were missed this week. Reminders may need adjusting.",
	}
	overallMessages = map[Tier]string{
		TierExcellent: "A great week overall.",
		TierGood:      "A good week with room to improve.",
		TierNeedsWork: "This week was tough. Small daily habits will help.",
	}
)

// ReportInput 周报所需的原始数据，时间范围外的记录会被忽略
type ReportInput struct {
	Now         time.Time
	GoalML      int
	Hydration   []model.HydrationEntry
	Medications []model.Medication
	History     []model.MedicationHistoryEntry
}

// Score 单项得分
type Score struct {
	Pct     float64 `json:"pct"`
	Tier    Tier    `json:"tier"`
	Message string  `json:"message"`
}

// ReportCard 最近 7 天的周报
type ReportCard struct {
	WindowStart      time.Time `json:"window_start"`
	WindowEnd        time.Time `json:"window_end"`
	Hydration        Score     `json:"hydration"`
	Medication       *Score    `json:"medication,omitempty"` // 没有用药计划时为空
	Overall          Score     `json:"overall"`
	HydrationTotalML int       `json:"hydration_total_ml"`
	GoalML           int       `json:"goal_ml"`
	CompletedDoses   int       `json:"completed_doses"`
	ScheduledSlots   int       `json:"scheduled_slots"`
}

// WeeklyReportCard 计算 [now-7d, now) 的饮水完成率与服药依从率
func WeeklyReportCard(in ReportInput) ReportCard {
	end := in.Now
	start := end.Add(-reportWindow)

	card := ReportCard{
		WindowStart: start,
		WindowEnd:   end,
		GoalML:      in.GoalML,
	}

	for _, e := range in.Hydration {
		if inWindow(e.Timestamp, start, end) {
			card.HydrationTotalML += e.AmountML
		}
	}

	var hydrationPct float64
	if in.GoalML > 0 {
		hydrationPct = float64(card.HydrationTotalML) / float64(in.GoalML*7) * 100
	}
	card.Hydration = score(hydrationPct, hydrationMessages)

	active := make(map[int64]bool)
	for _, m := range in.Medications {
		if m.Active {
			active[m.ID] = true
			card.ScheduledSlots += len(m.Times) * 7
		}
	}

	for _, h := range in.History {
		if h.Status == model.AdherenceStatusCompleted && active[h.MedicationID] && inWindow(h.Time, start, end) {
			card.CompletedDoses++
		}
	}

	if card.ScheduledSlots == 0 {
		card.Overall = score(card.Hydration.Pct, overallMessages)
		return card
	}

	medPct := math.Min(100, float64(card.CompletedDoses)/float64(card.ScheduledSlots)*100)
	med := score(medPct, medicationMessages)
	card.Medication = &med
	card.Overall = score((card.Hydration.Pct+med.Pct)/2, overallMessages)

	return card
}

func score(pct float64, messages map[Tier]string) Score {
	pct = round1(pct)
	tier := TierOf(pct)
	return Score{Pct: pct, Tier: tier, Message: messages[tier]}
}

func inWindow(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
