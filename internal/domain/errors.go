package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned for a status edge outside the state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStaleStatus means the stored status no longer matches the expected predecessor.
	ErrStaleStatus = errors.New("task status changed concurrently")
	// ErrConnectivity means the campaign provider is unreachable or unhealthy.
	ErrConnectivity = errors.New("campaign provider unreachable")
	// ErrProviderRequest wraps a failed create, send or list call.
	ErrProviderRequest = errors.New("campaign provider request failed")
	// ErrRender means no mail body could be produced for the press release.
	ErrRender = errors.New("render press release")
	// ErrEmptyAudience means an audience condition matched no interests.
	ErrEmptyAudience = errors.New("audience condition matches no interests")
	// ErrNotFound is returned by repositories for unknown records.
	ErrNotFound = errors.New("not found")
)

// Publish steps, used to label PublishError.
const (
	StepLoadContent    = "load-content"
	StepRender         = "render"
	StepPersistContent = "persist-content"
	StepVerify         = "verify-connectivity"
	StepAudience       = "build-audience"
	StepCreateTemplate = "create-template"
	StepCreateCampaign = "create-campaign"
	StepSendCampaign   = "send-campaign"
)

// PublishError reports the first unrecoverable step of a publish run.
type PublishError struct {
	Step string
	Err  error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish failed at %s: %v", e.Step, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}
