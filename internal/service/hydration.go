package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"HydroMed/internal/analytics"
	"HydroMed/internal/goal"
	"HydroMed/internal/model"
	"HydroMed/internal/model/dto"
	"HydroMed/internal/repository"
	pkgerrors "HydroMed/pkg/errors"
	"HydroMed/pkg/logger"
	"HydroMed/utils"
)

const (
	MinGoalML   = 1000
	MaxGoalML   = 5000
	MaxAmountML = 5000

	defaultGoalML = 2000
)

// HydrationService 饮水记录、目标与进度
type HydrationService struct {
	repo            repository.HydrationRepository
	defaultInterval int
	now             func() time.Time
}

func NewHydrationService(repo repository.HydrationRepository, defaultIntervalMinutes int) *HydrationService {
	return &HydrationService{
		repo:            repo,
		defaultInterval: defaultIntervalMinutes,
		now:             time.Now,
	}
}

// Log 追加一条饮水记录
func (s *HydrationService) Log(ctx context.Context, userID int64, req dto.LogHydrationRequest) (*dto.HydrationEntryResponse, error) {
	if req.AmountML <= 0 || req.AmountML > MaxAmountML {
		return nil, pkgerrors.HydrationAmountInvalid
	}

	source := model.HydrationSource(req.Source)
	if source == "" {
		source = model.HydrationSourceManual
	}
	at := s.now()
	if req.Timestamp != nil {
		at = *req.Timestamp
	}

	entry := &model.HydrationEntry{
		UserID:    userID,
		AmountML:  req.AmountML,
		Timestamp: at,
		Source:    source,
	}
	if err := s.repo.AddEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to log hydration: %w", err)
	}

	return &dto.HydrationEntryResponse{
		AmountML:  entry.AmountML,
		Timestamp: entry.Timestamp,
		Source:    string(entry.Source),
	}, nil
}

// settings 读取设置，不存在时返回默认值（未持久化）
func (s *HydrationService) settings(ctx context.Context, userID int64) (*model.HydrationSettings, error) {
	st, err := s.repo.GetSettings(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return &model.HydrationSettings{
			UserID:                  userID,
			GoalML:                  defaultGoalML,
			ReminderIntervalMinutes: s.defaultInterval,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load hydration settings: %w", err)
	}
	return st, nil
}

// SetGoal 设置每日目标，范围 [1000, 5000]
func (s *HydrationService) SetGoal(ctx context.Context, userID int64, goalML int) (*dto.GoalResponse, error) {
	if goalML < MinGoalML || goalML > MaxGoalML {
		return nil, pkgerrors.HydrationGoalInvalid
	}

	st, err := s.settings(ctx, userID)
	if err != nil {
		return nil, err
	}
	st.GoalML = goalML
	if err := s.repo.SaveSettings(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to save hydration goal: %w", err)
	}

	return &dto.GoalResponse{GoalML: goalML}, nil
}

// GetGoal 当前目标、按画像计算的理想目标与画像
func (s *HydrationService) GetGoal(ctx context.Context, userID int64) (*dto.GoalResponse, error) {
	st, err := s.settings(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile := st.Profile()
	return &dto.GoalResponse{
		GoalML:      st.GoalML,
		IdealGoalML: goal.ComputeIdealGoal(profile),
		Profile:     &profile,
	}, nil
}

// UpdateProfile 保存画像；ApplyGoal 为 true 时把理想目标（限制在合法范围内）设为当前目标
func (s *HydrationService) UpdateProfile(ctx context.Context, userID int64, req dto.UpdateProfileRequest) (*dto.GoalResponse, error) {
	st, err := s.settings(ctx, userID)
	if err != nil {
		return nil, err
	}

	st.Weight = req.Weight
	st.WeightUnit = goal.WeightUnit(req.WeightUnit)
	st.Age = req.Age
	st.Climate = goal.Climate(req.Climate)
	st.ExerciseFrequency = goal.ExerciseFrequency(req.ExerciseFrequency)

	profile := st.Profile()
	ideal := goal.ComputeIdealGoal(profile)
	if req.ApplyGoal {
		st.GoalML = min(max(ideal, MinGoalML), MaxGoalML)
	}

	if err := s.repo.SaveSettings(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to save hydration profile: %w", err)
	}

	logger.Logger.Info("Hydration profile updated",
		zap.Int64("user_id", userID),
		zap.Int("ideal_goal_ml", ideal),
		zap.Bool("applied", req.ApplyGoal),
	)
	return &dto.GoalResponse{GoalML: st.GoalML, IdealGoalML: ideal, Profile: &profile}, nil
}

// Pace 今日进度
func (s *HydrationService) Pace(ctx context.Context, userID int64) (*goal.Pace, error) {
	st, err := s.settings(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	from := utils.StartOfDay(now)
	entries, err := s.repo.EntriesBetween(ctx, userID, from, from.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to load today's hydration: %w", err)
	}

	consumed := 0
	for _, e := range entries {
		consumed += e.AmountML
	}
	pace := goal.ComputePace(consumed, st.GoalML, now)
	return &pace, nil
}

// History 按 daily/weekly/monthly 或自定义区间分桶
func (s *HydrationService) History(ctx context.Context, userID int64, q dto.HistoryQuery) (*analytics.Series, error) {
	var start, end *time.Time
	if q.Start != "" || q.End != "" {
		st, err := parseDay(q.Start)
		if err != nil {
			return nil, pkgerrors.HydrationRangeInvalid
		}
		en, err := parseDay(q.End)
		if err != nil {
			return nil, pkgerrors.HydrationRangeInvalid
		}
		start, end = &st, &en
	}

	from, to, step, kind, err := analytics.Window(analytics.Range(q.Range), s.now(), start, end)
	if err != nil {
		return nil, pkgerrors.HydrationRangeInvalid
	}

	st, err := s.settings(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.EntriesBetween(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load hydration history: %w", err)
	}

	series := analytics.BucketHydration(entries, kind, from, to, step, st.GoalML)
	return &series, nil
}

// parseDay 接受 YYYY-MM-DD 或 RFC3339
func parseDay(v string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}
