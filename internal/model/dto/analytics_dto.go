package dto

// AnalyticsQuery 分析窗口，Days 为 0 时使用各接口默认值
// TZ 为 IANA 时区名，星期和时刻按该时区统计，缺省为 UTC
type AnalyticsQuery struct {
	TZ   string `query:"tz" validate:"omitempty,timezone"`
	Days int    `query:"days" validate:"gte=0,lte=365"`
}
