package goal

import (
	"math"
	"time"
)

// WeightUnit 体重单位
type WeightUnit string

const (
	WeightUnitKg  WeightUnit = "kg"
	WeightUnitLbs WeightUnit = "lbs"
)

// Climate 所处气候
type Climate string

const (
	ClimateHot       Climate = "hot"
	ClimateTemperate Climate = "temperate"
	ClimateCold      Climate = "cold"
)

// ExerciseFrequency 运动频率
type ExerciseFrequency string

const (
	ExerciseRarely    ExerciseFrequency = "rarely"
	ExerciseSometimes ExerciseFrequency = "sometimes"
	ExerciseRegularly ExerciseFrequency = "regularly"
	ExerciseOften     ExerciseFrequency = "often"
)

const (
	DefaultBaseML  = 2000
	mlPerKg        = 33.0
	kgPerLb        = 0.453592
	roundingStepML = 50.0
)

// Profile 计算理想饮水目标所需的用户画像，Weight 为空表示未填写
type Profile struct {
	Weight            *float64          `json:"weight,omitempty"`
	WeightUnit        WeightUnit        `json:"weight_unit,omitempty"`
	Age               int               `json:"age,omitempty"`
	Climate           Climate           `json:"climate,omitempty"`
	ExerciseFrequency ExerciseFrequency `json:"exercise_frequency,omitempty"`
}

// WeightKg 统一换算为公斤，未填写时返回 false
func (p Profile) WeightKg() (float64, bool) {
	if p.Weight == nil || *p.Weight <= 0 {
		return 0, false
	}
	if p.WeightUnit == WeightUnitLbs {
		return *p.Weight * kgPerLb, true
	}
	return *p.Weight, true
}

// ComputeIdealGoal 按固定顺序（年龄、气候、运动）调整基础量，结果取整到 50ml
func ComputeIdealGoal(p Profile) int {
	base := float64(DefaultBaseML)
	if kg, ok := p.WeightKg(); ok {
		base = kg * mlPerKg
	}

	switch {
	case p.Age >= 65:
		base += 200
	case p.Age > 0 && p.Age < 18:
		base *= 0.85
	}

	switch p.Climate {
	case ClimateHot:
		base += 500
	case ClimateCold:
		base += 100
	}

	switch p.ExerciseFrequency {
	case ExerciseOften:
		base += 600
	case ExerciseRegularly:
		base += 400
	case ExerciseSometimes:
		base += 200
	}

	return int(math.Round(base/roundingStepML) * roundingStepML)
}

// Bucket 一天中的时段
type Bucket string

const (
	BucketNight     Bucket = "night"
	BucketMorning   Bucket = "morning"
	BucketAfternoon Bucket = "afternoon"
	BucketEvening   Bucket = "evening"
	BucketLate      Bucket = "late"
)

// BucketAt 返回时刻所属时段及该时段结束时应完成的目标比例
func BucketAt(t time.Time) (Bucket, float64) {
	switch h := t.Hour(); {
	case h < 6:
		return BucketNight, 0
	case h < 12:
		return BucketMorning, 0.30
	case h < 17:
		return BucketAfternoon, 0.60
	case h < 21:
		return BucketEvening, 0.85
	default:
		return BucketLate, 1.0
	}
}

// Pace 进度评估结果
type Pace struct {
	Consumed   int    `json:"consumed_ml"`
	Goal       int    `json:"goal_ml"`
	Remaining  int    `json:"remaining_ml"`
	ExpectedML int    `json:"expected_ml"`
	Bucket     Bucket `json:"bucket"`
	IsOnPace   bool   `json:"is_on_pace"`
}

// ComputePace 将已饮水量与当前时段的期望比例比较
func ComputePace(consumed, goal int, at time.Time) Pace {
	bucket, fraction := BucketAt(at)
	expected := int(math.Round(float64(goal) * fraction))

	remaining := goal - consumed
	if remaining < 0 {
		remaining = 0
	}

	return Pace{
		Consumed:   consumed,
		Goal:       goal,
		Remaining:  remaining,
		ExpectedML: expected,
		Bucket:     bucket,
		IsOnPace:   consumed >= expected,
	}
}
