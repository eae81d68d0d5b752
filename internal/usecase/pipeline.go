package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"MailchimpPublisher/internal/domain"
	"MailchimpPublisher/internal/ports"
)

const maxTemplateNameRunes = 50

// CampaignSettings holds the sender and list details shared by every campaign.
type CampaignSettings struct {
	ListID   string
	FromName string
	ReplyTo  string
}

// PipelineDeps wires all driven adapters into the publication pipeline.
type PipelineDeps struct {
	Repository ports.TaskRepository
	Service    ports.CampaignService
	Renderer   ports.Renderer
	Audience   *AudienceBuilder
	Retrier    *DeletionRetrier
	Settings   CampaignSettings
	Logger     *slog.Logger
}

// Pipeline publishes one press release as a provider campaign.
type Pipeline struct {
	repository ports.TaskRepository
	service    ports.CampaignService
	renderer   ports.Renderer
	audience   *AudienceBuilder
	retrier    *DeletionRetrier
	settings   CampaignSettings
	logger     *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	retrier := deps.Retrier
	if retrier == nil {
		retrier = NewDeletionRetrier(RetryOptions{Logger: logger})
	}
	return &Pipeline{
		repository: deps.Repository,
		service:    deps.Service,
		renderer:   deps.Renderer,
		audience:   deps.Audience,
		retrier:    retrier,
		settings:   deps.Settings,
		logger:     logger,
	}
}

// Publish renders the task's press release and sends it as a campaign:
// verify connectivity, build the audience, create a template, create the campaign,
// delete the template, send, delete the campaign. Resources created before a failing
// step are deleted before the error is returned.
func (p *Pipeline) Publish(ctx context.Context, task domain.PublicationTask) error {
	logger := p.logger.With("task", task.ID)

	pressRelease, err := p.repository.FetchPressRelease(ctx, task)
	if err != nil {
		return stepError(domain.StepLoadContent, fmt.Errorf("fetch press release %s: %w", task.PressRelease, err))
	}

	content, err := p.renderer.Render(ctx, pressRelease)
	if err != nil {
		return stepError(domain.StepRender, err)
	}

	if err := p.repository.PersistRenderedContent(ctx, task, content.HTML); err != nil {
		return stepError(domain.StepPersistContent, fmt.Errorf("persist rendered content: %w", err))
	}

	if err := p.service.Ping(ctx); err != nil {
		return stepError(domain.StepVerify, fmt.Errorf("%w: %w", domain.ErrConnectivity, err))
	}

	conditions, err := p.audience.Conditions(ctx, pressRelease.UniqueThemes())
	if err != nil {
		return stepError(domain.StepAudience, err)
	}

	templateID, err := p.service.CreateTemplate(ctx, templateName(content), content.HTML)
	if err != nil {
		return stepError(domain.StepCreateTemplate, providerError("create template", err))
	}
	logger.Info("template created", "template_id", templateID)

	campaignID, err := p.service.CreateCampaign(ctx, p.campaignSpec(templateID, content, conditions))
	if err != nil {
		p.retrier.Delete(context.WithoutCancel(ctx), domain.ResourceTemplate, templateID, p.service.DeleteTemplate)
		return stepError(domain.StepCreateCampaign, providerError("create campaign", err))
	}
	logger.Info("campaign created", "campaign_id", campaignID, "conditions", len(conditions))

	p.retrier.Delete(ctx, domain.ResourceTemplate, templateID, p.service.DeleteTemplate)

	if err := p.service.SendCampaign(ctx, campaignID); err != nil {
		p.retrier.Delete(context.WithoutCancel(ctx), domain.ResourceCampaign, campaignID, p.service.DeleteCampaign)
		return stepError(domain.StepSendCampaign, providerError("send campaign", err))
	}
	logger.Info("campaign sent", "campaign_id", campaignID)

	p.retrier.Delete(ctx, domain.ResourceCampaign, campaignID, p.service.DeleteCampaign)
	return nil
}

func (p *Pipeline) campaignSpec(templateID string, content domain.RenderedContent, conditions []domain.AudienceCondition) domain.CampaignSpec {
	return domain.CampaignSpec{
		ListID:      p.settings.ListID,
		Match:       domain.SegmentMatchAll,
		Conditions:  conditions,
		SubjectLine: content.Subject,
		PreviewText: content.PreviewText,
		Title:       content.Title,
		FromName:    p.settings.FromName,
		ReplyTo:     p.settings.ReplyTo,
		TemplateID:  templateID,
	}
}

func templateName(content domain.RenderedContent) string {
	name := []rune("Persbericht " + content.Title)
	if len(name) > maxTemplateNameRunes {
		name = name[:maxTemplateNameRunes]
	}
	return string(name)
}

func stepError(step string, err error) error {
	return &domain.PublishError{Step: step, Err: err}
}
