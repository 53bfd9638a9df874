package goal

import (
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/common/test/assert"
)

func floatPtr(v float64) *float64 { return &v }

func TestComputeIdealGoal(t *testing.T) {
	cases := []struct {
		name    string
		profile Profile
		want    int
	}{
		{
			name: "hot climate regular exercise",
			profile: Profile{
				Weight: floatPtr(70), WeightUnit: WeightUnitKg, Age: 30,
				Climate: ClimateHot, ExerciseFrequency: ExerciseRegularly,
			},
			want: 3200,
		},
		{
			name: "no weight senior",
			profile: Profile{
				Age: 70, Climate: ClimateTemperate, ExerciseFrequency: ExerciseRarely,
			},
			want: 2200,
		},
		{
			name: "pounds are converted",
			profile: Profile{
				Weight: floatPtr(154), WeightUnit: WeightUnitLbs, Age: 40,
				Climate: ClimateTemperate, ExerciseFrequency: ExerciseRarely,
			},
			// 154 lbs = 69.85 kg -> 2305 ml -> 2300
			want: 2300,
		},
		{
			name: "minor multiplier applied before additions",
			profile: Profile{
				Weight: floatPtr(50), Age: 15,
				Climate: ClimateCold, ExerciseFrequency: ExerciseOften,
			},
			// 1650 * 0.85 = 1402.5 + 100 + 600 = 2102.5 -> 2100
			want: 2100,
		},
		{
			name:    "empty profile falls back to default base",
			profile: Profile{},
			want:    DefaultBaseML,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.DeepEqual(t, tc.want, ComputeIdealGoal(tc.profile))
		})
	}
}

func TestComputeIdealGoalIsDeterministic(t *testing.T) {
	p := Profile{Weight: floatPtr(82.5), Age: 52, Climate: ClimateHot, ExerciseFrequency: ExerciseSometimes}
	first := ComputeIdealGoal(p)
	for i := 0; i < 10; i++ {
		assert.DeepEqual(t, first, ComputeIdealGoal(p))
	}
	assert.DeepEqual(t, 0, first%50)
}

func TestComputePace(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		consumed int
		goal     int
		at       time.Time
		bucket   Bucket
		onPace   bool
		remain   int
	}{
		{"early morning nothing expected", 0, 2000, day.Add(5 * time.Hour), BucketNight, true, 2000},
		{"morning behind", 400, 2000, day.Add(10 * time.Hour), BucketMorning, false, 1600},
		{"morning on pace", 600, 2000, day.Add(11 * time.Hour), BucketMorning, true, 1400},
		{"afternoon on pace", 1300, 2000, day.Add(15 * time.Hour), BucketAfternoon, true, 700},
		{"evening behind", 1500, 2000, day.Add(19 * time.Hour), BucketEvening, false, 500},
		{"late over goal", 2600, 2000, day.Add(22 * time.Hour), BucketLate, true, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := ComputePace(tc.consumed, tc.goal, tc.at)
			assert.DeepEqual(t, tc.bucket, p.Bucket)
			assert.DeepEqual(t, tc.onPace, p.IsOnPace)
			assert.DeepEqual(t, tc.remain, p.Remaining)
		})
	}
}
