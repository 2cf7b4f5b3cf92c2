package apperror

// Kind это стабильное имя доменной ошибки, которое видит клиент.
type Kind string

// Авторизация.
const (
	KindUnauthorizedUpdater Kind = "unauthorized-updater"
	KindUnauthorizedCaller  Kind = "unauthorized-caller"
	KindNotBountyClient     Kind = "not-bounty-client"
	KindNotPartyToDispute   Kind = "not-party-to-dispute"
)

// Предусловия состояния.
const (
	KindBountyNotOpen                Kind = "bounty-not-open"
	KindBountyNotExpired             Kind = "bounty-not-expired"
	KindSubmissionNotUnderReview     Kind = "submission-not-under-review"
	KindSubmissionAlreadyExists      Kind = "submission-already-exists"
	KindInvalidBountyState           Kind = "invalid-bounty-state"
	KindInvalidSubmissionState       Kind = "invalid-submission-state"
	KindInvalidDisputeState          Kind = "invalid-dispute-state"
	KindCannotCancelWithSubmissions  Kind = "cannot-cancel-with-submissions"
	KindCancellationAlreadyRequested Kind = "cancellation-already-requested"
	KindCancellationWindowActive     Kind = "cancellation-window-active"
	KindReviewPeriodActive           Kind = "review-period-active"
	KindDisputeAlreadyExists         Kind = "dispute-already-exists"
	KindAppealWindowActive           Kind = "appeal-window-active"
	KindAppealWindowClosed           Kind = "appeal-window-closed"
	KindArbitrationWindowActive      Kind = "arbitration-window-active"
	KindAlreadyInitialized           Kind = "already-initialized"
	KindNotFound                     Kind = "not-found"
)

// Валидация входа.
const (
	KindInvalidDeadline          Kind = "invalid-deadline"
	KindInvalidEscrowAmount      Kind = "invalid-escrow-amount"
	KindInvalidMinRepRequirement Kind = "invalid-min-rep-requirement"
	KindScoreOutOfBounds         Kind = "score-out-of-bounds"
	KindInvalidPaymentPercentage Kind = "invalid-payment-percentage"
	KindInvalidFeePercentage     Kind = "invalid-fee-percentage"
	KindInvalidConfidence        Kind = "invalid-confidence"
	KindInvalidAdjustmentRange   Kind = "invalid-adjustment-range"
	KindInvalidAddress           Kind = "invalid-address"
	KindZeroAmount               Kind = "zero-amount"
	KindInvalidFeedback          Kind = "invalid-feedback"
	KindInvalidInput             Kind = "invalid-input"
)

// Экономическая безопасность.
const (
	KindInsufficientEscrowBalance   Kind = "insufficient-escrow-balance"
	KindInsufficientBalance         Kind = "insufficient-balance"
	KindInvalidAmount               Kind = "invalid-amount"
	KindWithdrawalTooFrequent       Kind = "withdrawal-too-frequent"
	KindUpdateTooFrequent           Kind = "update-too-frequent"
	KindCapacityLimitReached        Kind = "capacity-limit-reached"
	KindBountyValueExceedsTierLimit Kind = "bounty-value-exceeds-tier-limit"
	KindInsufficientReputation      Kind = "insufficient-reputation"
	KindDisputeAbusePrevention      Kind = "dispute-abuse-prevention"
	KindConservationViolated        Kind = "conservation-violated"
)

const (
	KindInvalidSignature Kind = "invalid-signature"
	KindSystemPaused     Kind = "system-paused"
)

var kindCodes = map[Kind]ErrorCode{
	KindUnauthorizedUpdater: ErrCodeForbidden,
	KindUnauthorizedCaller:  ErrCodeForbidden,
	KindNotBountyClient:     ErrCodeForbidden,
	KindNotPartyToDispute:   ErrCodeForbidden,

	KindBountyNotOpen:                ErrCodeConflict,
	KindBountyNotExpired:             ErrCodeConflict,
	KindSubmissionNotUnderReview:     ErrCodeConflict,
	KindSubmissionAlreadyExists:      ErrCodeConflict,
	KindInvalidBountyState:           ErrCodeConflict,
	KindInvalidSubmissionState:       ErrCodeConflict,
	KindInvalidDisputeState:          ErrCodeConflict,
	KindCannotCancelWithSubmissions:  ErrCodeConflict,
	KindCancellationAlreadyRequested: ErrCodeConflict,
	KindCancellationWindowActive:     ErrCodeConflict,
	KindReviewPeriodActive:           ErrCodeConflict,
	KindDisputeAlreadyExists:         ErrCodeConflict,
	KindAppealWindowActive:           ErrCodeConflict,
	KindAppealWindowClosed:           ErrCodeConflict,
	KindArbitrationWindowActive:      ErrCodeConflict,
	KindAlreadyInitialized:           ErrCodeConflict,
	KindNotFound:                     ErrCodeNotFound,

	KindInvalidDeadline:          ErrCodeValidation,
	KindInvalidEscrowAmount:      ErrCodeValidation,
	KindInvalidMinRepRequirement: ErrCodeValidation,
	KindScoreOutOfBounds:         ErrCodeValidation,
	KindInvalidPaymentPercentage: ErrCodeValidation,
	KindInvalidFeePercentage:     ErrCodeValidation,
	KindInvalidConfidence:        ErrCodeValidation,
	KindInvalidAdjustmentRange:   ErrCodeValidation,
	KindInvalidAddress:           ErrCodeValidation,
	KindZeroAmount:               ErrCodeValidation,
	KindInvalidFeedback:          ErrCodeValidation,
	KindInvalidInput:             ErrCodeValidation,

	KindInsufficientEscrowBalance:   ErrCodeEconomicSafety,
	KindInsufficientBalance:         ErrCodeEconomicSafety,
	KindInvalidAmount:               ErrCodeEconomicSafety,
	KindWithdrawalTooFrequent:       ErrCodeEconomicSafety,
	KindUpdateTooFrequent:           ErrCodeEconomicSafety,
	KindCapacityLimitReached:        ErrCodeEconomicSafety,
	KindBountyValueExceedsTierLimit: ErrCodeEconomicSafety,
	KindInsufficientReputation:      ErrCodeEconomicSafety,
	KindDisputeAbusePrevention:      ErrCodeEconomicSafety,
	KindConservationViolated:        ErrCodeInternal,

	KindInvalidSignature: ErrCodeCryptographic,
	KindSystemPaused:     ErrCodePaused,
}

// Code возвращает категорию вида. Неизвестные виды считаются внутренними.
func (k Kind) Code() ErrorCode {
	if code, ok := kindCodes[k]; ok {
		return code
	}
	return ErrCodeInternal
}
