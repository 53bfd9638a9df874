package utils

import (
	"fmt"
	"time"
)

// ParseClock 解析 HH:MM 格式的时间
func ParseClock(clock string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid clock %q: %w", clock, err)
	}
	return t.Hour(), t.Minute(), nil
}

// AtClock 将 HH:MM 应用到指定日期
func AtClock(date time.Time, clock string) (time.Time, error) {
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return date, err
	}

	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, date.Location()), nil
}

// FormatClock 格式化为 HH:MM
func FormatClock(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", hour, minute)
}

// StartOfDay 当天零点
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
