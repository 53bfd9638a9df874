package errors

import (
	stderrors "errors"
	"fmt"
)

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// 通用错误。
var (
	InvalidRequest   = Definition{Code: "INVALID_REQUEST", Message: "Invalid request"}
	ValidationFailed = Definition{Code: "VALIDATION_FAILED", Message: "Validation failed"}
	TooManyRequests  = Definition{Code: "TOO_MANY_REQUESTS", Message: "Too many requests"}
	InternalError    = Definition{Code: "INTERNAL_ERROR", Message: "Internal error"}
)

// 认证相关错误。
var (
	Unauthorized  = Definition{Code: "UNAUTHORIZED", Message: "Unauthorized"}
	InvalidUserID = Definition{Code: "INVALID_USER_ID", Message: "Invalid user ID format"}
)

// 通知模块错误。
var (
	NotificationNotFound      = Definition{Code: "NOTIFICATION_NOT_FOUND", Message: "Notification not found"}
	NotificationSnoozeBlocked = Definition{Code: "NOTIFICATION_SNOOZE_BLOCKED", Message: "Completed notification cannot be snoozed"}
	NotificationPayloadType   = Definition{Code: "NOTIFICATION_PAYLOAD_MISMATCH", Message: "Payload does not match notification type"}
	NotificationTransition    = Definition{Code: "NOTIFICATION_INVALID_TRANSITION", Message: "Notification status cannot change this way"}
)

// 用药与依从性错误。
var (
	MedicationNotFound  = Definition{Code: "MEDICATION_NOT_FOUND", Message: "Medication not found"}
	AdherenceDuplicate  = Definition{Code: "ADHERENCE_DUPLICATE", Message: "Medication already logged within window"}
	AdherenceDowngrade  = Definition{Code: "ADHERENCE_DOWNGRADE", Message: "Completed dose cannot be changed to skipped"}
	AdherenceLockFailed = Definition{Code: "ADHERENCE_BUSY", Message: "Another adherence write is in progress"}
)

// 饮水模块错误。
var (
	HydrationAmountInvalid = Definition{Code: "HYDRATION_AMOUNT_INVALID", Message: "Amount must be between 1 and 5000 ml"}
	HydrationGoalInvalid   = Definition{Code: "HYDRATION_GOAL_INVALID", Message: "Goal must be between 1000 and 5000 ml"}
	HydrationRangeInvalid  = Definition{Code: "HYDRATION_RANGE_INVALID", Message: "Range must be daily, weekly or monthly"}
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	InvalidRequest.Code:            InvalidRequest,
	ValidationFailed.Code:          ValidationFailed,
	TooManyRequests.Code:           TooManyRequests,
	InternalError.Code:             InternalError,
	Unauthorized.Code:              Unauthorized,
	InvalidUserID.Code:             InvalidUserID,
	NotificationNotFound.Code:      NotificationNotFound,
	NotificationSnoozeBlocked.Code: NotificationSnoozeBlocked,
	NotificationPayloadType.Code:   NotificationPayloadType,
	NotificationTransition.Code:    NotificationTransition,
	MedicationNotFound.Code:        MedicationNotFound,
	AdherenceDuplicate.Code:        AdherenceDuplicate,
	AdherenceDowngrade.Code:        AdherenceDowngrade,
	AdherenceLockFailed.Code:       AdherenceLockFailed,
	HydrationAmountInvalid.Code:    HydrationAmountInvalid,
	HydrationGoalInvalid.Code:      HydrationGoalInvalid,
	HydrationRangeInvalid.Code:     HydrationRangeInvalid,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}

// As 从错误链中取出 Definition
func As(err error) (Definition, bool) {
	var def Definition
	if stderrors.As(err, &def) {
		return def, true
	}
	var ptr *Definition
	if stderrors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	return Definition{}, false
}

// Token 相关错误。
var (
	ErrTokenGeneratorNotInitialized = stderrors.New("token generator not initialized")
	ErrUnexpectedSigningMethod      = stderrors.New("unexpected signing method")
	ErrInvalidToken                 = stderrors.New("invalid token")
	ErrInvalidTokenClaims           = stderrors.New("invalid token claims")
	ErrUserIDNotFound               = stderrors.New("user id not found in token")
)

// SkipMessageError 消费者遇到重复消息时返回，直接 ack 不再重试
type SkipMessageError struct {
	Reason string
}

func (e *SkipMessageError) Error() string {
	return fmt.Sprintf("skip message: %s", e.Reason)
}

// IsSkip 判断是否为可跳过的消息错误
func IsSkip(err error) bool {
	var skip *SkipMessageError
	return stderrors.As(err, &skip)
}
