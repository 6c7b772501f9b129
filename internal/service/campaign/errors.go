package campaign

import "fmt"

// ErrorCode identifies a campaign operation failure
type ErrorCode string

const (
	ErrCodeCampaignNotFound ErrorCode = "CAMPAIGN_NOT_FOUND"
	ErrCodeCampaignPaused   ErrorCode = "CAMPAIGN_PAUSED"
	ErrCodeContactFetch     ErrorCode = "CONTACT_FETCH_FAILED"
	ErrCodeEnqueueFailed    ErrorCode = "ENQUEUE_FAILED"
	ErrCodeQueueRead        ErrorCode = "QUEUE_READ_FAILED"
)

// CampaignError carries a code and whether retrying the same call can succeed
type CampaignError struct {
	Code       ErrorCode
	Message    string
	CampaignID string
	Retryable  bool
	Err        error
}

func (e *CampaignError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.CampaignID != "" {
		msg += fmt.Sprintf(" (campaign: %s)", e.CampaignID)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *CampaignError) Unwrap() error {
	return e.Err
}

func NewCampaignError(code ErrorCode, message, campaignID string, retryable bool, err error) *CampaignError {
	return &CampaignError{
		Code:       code,
		Message:    message,
		CampaignID: campaignID,
		Retryable:  retryable,
		Err:        err,
	}
}
