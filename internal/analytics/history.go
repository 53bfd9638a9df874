package analytics

import (
	"errors"
	"time"

	"HydroMed/internal/model"
	"HydroMed/utils"
)

// Range 历史查询粒度
type Range string

const (
	RangeDaily   Range = "daily"
	RangeWeekly  Range = "weekly"
	RangeMonthly Range = "monthly"
	RangeCustom  Range = "custom"

	maxCustomDays = 366
)

var (
	ErrInvalidRange = errors.New("invalid history range")
	ErrRangeTooLong = errors.New("history range exceeds one year")
)

// Bucket 一个统计区间 [Start, End)
type Bucket struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	TotalML int       `json:"total_ml"`
	Count   int       `json:"count"`
	GoalMet bool      `json:"goal_met"`
}

// Series 分桶后的饮水历史
type Series struct {
	Range   Range     `json:"range"`
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
	Buckets []Bucket  `json:"buckets"`
	TotalML int       `json:"total_ml"`
	GoalML  int       `json:"goal_ml"`
}

// Window 计算查询区间与步长
// daily 为当天 24 个小时桶；weekly 为截至今天的 7 个日桶；monthly 为当月每天一个桶；
// 显式指定 start/end 时按天分桶，end 当天包含在内
func Window(r Range, now time.Time, start, end *time.Time) (from, to time.Time, step time.Duration, kind Range, err error) {
	if start != nil && end != nil {
		from = utils.StartOfDay(*start)
		to = utils.StartOfDay(*end).AddDate(0, 0, 1)
		if !to.After(from) {
			return from, to, 0, "", ErrInvalidRange
		}
		if to.Sub(from) > maxCustomDays*24*time.Hour {
			return from, to, 0, "", ErrRangeTooLong
		}
		return from, to, 24 * time.Hour, RangeCustom, nil
	}

	today := utils.StartOfDay(now)
	switch r {
	case RangeDaily, "":
		return today, today.AddDate(0, 0, 1), time.Hour, RangeDaily, nil
	case RangeWeekly:
		return today.AddDate(0, 0, -6), today.AddDate(0, 0, 1), 24 * time.Hour, RangeWeekly, nil
	case RangeMonthly:
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return first, first.AddDate(0, 1, 0), 24 * time.Hour, RangeMonthly, nil
	default:
		return from, to, 0, "", ErrInvalidRange
	}
}

// BucketHydration 将饮水记录累加到 [from, to) 的各个桶
func BucketHydration(entries []model.HydrationEntry, kind Range, from, to time.Time, step time.Duration, goalML int) Series {
	series := Series{Range: kind, From: from, To: to, GoalML: goalML}

	for cursor := from; cursor.Before(to); {
		next := advance(cursor, step)
		series.Buckets = append(series.Buckets, Bucket{Start: cursor, End: next})
		cursor = next
	}

	for _, e := range entries {
		if e.Timestamp.Before(from) || !e.Timestamp.Before(to) {
			continue
		}
		for i := range series.Buckets {
			b := &series.Buckets[i]
			if !e.Timestamp.Before(b.Start) && e.Timestamp.Before(b.End) {
				b.TotalML += e.AmountML
				b.Count++
				break
			}
		}
		series.TotalML += e.AmountML
	}

	if step >= 24*time.Hour && goalML > 0 {
		for i := range series.Buckets {
			series.Buckets[i].GoalMet = series.Buckets[i].TotalML >= goalML
		}
	}

	return series
}

// advance 按日历日前进，避免夏令时切换造成日桶错位
func advance(t time.Time, step time.Duration) time.Time {
	if step == 24*time.Hour {
		return t.AddDate(0, 0, 1)
	}
	return t.Add(step)
}
