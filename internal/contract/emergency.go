package contract

import (
	"context"
	"time"

	"github.com/jspindler/takt/internal/domain"
)

// EmergencyScheduleRequest asks for an out-of-band slot for a single
// instance. Field tags drive request validation in the service layer.
type EmergencyScheduleRequest struct {
	Instance    *domain.ProcessInstance `validate:"required"`
	Level       string                  `validate:"required,oneof=urgent safety_critical"`
	RequestedBy string                  `validate:"required"`
	Reason      string
	Now         *time.Time
}

func NewEmergencyScheduleRequest(instance *domain.ProcessInstance, level, requestedBy string) EmergencyScheduleRequest {
	return EmergencyScheduleRequest{
		Instance:    instance,
		Level:       level,
		RequestedBy: requestedBy,
	}
}

// EmergencyDecisionRequest records one approve or reject action.
type EmergencyDecisionRequest struct {
	RequestID string `validate:"required"`
	Actor     string `validate:"required"`
	Note      string
	Now       *time.Time
}

type EmergencyResponse struct {
	Request          *domain.EmergencyRequest
	Entry            *domain.ScheduleEntry
	RequiresApproval bool
	Message          string
}

type EmergencyUseCase interface {
	Request(ctx context.Context, req EmergencyScheduleRequest) (*EmergencyResponse, error)
	Approve(ctx context.Context, req EmergencyDecisionRequest) (*EmergencyResponse, error)
	Reject(ctx context.Context, req EmergencyDecisionRequest) (*EmergencyResponse, error)
	Schedule(ctx context.Context, requestID string) (*EmergencyResponse, error)
}

type EmergencyErrorCode string

const (
	EmergencyErrValidation   EmergencyErrorCode = "VALIDATION"
	EmergencyErrNotFound     EmergencyErrorCode = "REQUEST_NOT_FOUND"
	EmergencyErrInvalidState EmergencyErrorCode = "INVALID_STATE"
	EmergencyErrNotApproved  EmergencyErrorCode = "NOT_APPROVED"
	EmergencyErrInternal     EmergencyErrorCode = "INTERNAL_ERROR"
)

type EmergencyError struct {
	Code    EmergencyErrorCode
	Message string
}

func (e *EmergencyError) Error() string {
	return string(e.Code) + ": " + e.Message
}
