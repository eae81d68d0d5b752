package ports

import (
	"context"
	"errors"
	"time"

	"MailchimpPublisher/internal/domain"
)

// ErrLockNotObtained is returned by Locker when another run holds the key.
var ErrLockNotObtained = errors.New("lock not obtained")

// CampaignService is the capability surface of the email campaign provider.
type CampaignService interface {
	Ping(ctx context.Context) error
	ListInterests(ctx context.Context, categoryID string) ([]domain.Interest, error)
	CreateTemplate(ctx context.Context, name, html string) (string, error)
	DeleteTemplate(ctx context.Context, id string) error
	CreateCampaign(ctx context.Context, spec domain.CampaignSpec) (string, error)
	SendCampaign(ctx context.Context, id string) error
	DeleteCampaign(ctx context.Context, id string) error
	ListTemplates(ctx context.Context) ([]domain.ProviderResource, error)
	ListCampaigns(ctx context.Context) ([]domain.ProviderResource, error)
}

// TaskRepository reads and writes publication tasks in the content store.
type TaskRepository interface {
	FetchPendingTasks(ctx context.Context, channel string) ([]domain.PublicationTask, error)
	PersistStatus(ctx context.Context, task domain.PublicationTask, status domain.TaskStatus, at time.Time) error
	FetchPressRelease(ctx context.Context, task domain.PublicationTask) (domain.PressRelease, error)
	PersistRenderedContent(ctx context.Context, task domain.PublicationTask, html string) error
}

// Renderer turns a press release into a mail body.
type Renderer interface {
	Render(ctx context.Context, pressRelease domain.PressRelease) (domain.RenderedContent, error)
}

// Locker serializes publish batches and cleanup sweeps across instances.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// FailureNotifier tells operators about tasks that ended in FAILED.
type FailureNotifier interface {
	NotifyFailure(ctx context.Context, task domain.PublicationTask, cause error) error
}

// Scheduler controls when recurring jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
