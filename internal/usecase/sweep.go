package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"MailchimpPublisher/internal/domain"
	"MailchimpPublisher/internal/ports"
)

// SweepReport summarizes one cleanup pass.
type SweepReport struct {
	TemplatesFound   int `json:"templatesFound"`
	TemplatesDeleted int `json:"templatesDeleted"`
	CampaignsFound   int `json:"campaignsFound"`
	CampaignsDeleted int `json:"campaignsDeleted"`
}

// Failed returns the number of resources that survived the pass.
func (r SweepReport) Failed() int {
	return r.TemplatesFound - r.TemplatesDeleted + r.CampaignsFound - r.CampaignsDeleted
}

// SweepDeps wires the cleanup sweep.
type SweepDeps struct {
	Service ports.CampaignService
	Retrier *DeletionRetrier
	Locker  ports.Locker
	LockKey string
	Logger  *slog.Logger
}

// Sweep removes every user template and campaign left on the provider.
type Sweep struct {
	service ports.CampaignService
	retrier *DeletionRetrier
	guard   runGuard
	logger  *slog.Logger
}

// NewSweep constructs the sweep.
func NewSweep(deps SweepDeps) *Sweep {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	retrier := deps.Retrier
	if retrier == nil {
		retrier = NewDeletionRetrier(RetryOptions{Logger: logger})
	}
	return &Sweep{
		service: deps.Service,
		retrier: retrier,
		guard:   runGuard{locker: deps.Locker, key: deps.LockKey, logger: logger},
		logger:  logger,
	}
}

// Cleanup deletes all templates, then all campaigns. Listing failures are returned;
// a resource that cannot be deleted is only counted.
func (s *Sweep) Cleanup(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	release, err := s.guard.acquire(ctx)
	if err != nil {
		return report, err
	}
	defer release()

	templates, err := s.service.ListTemplates(ctx)
	if err != nil {
		return report, providerError("list templates", err)
	}
	report.TemplatesFound = len(templates)
	for _, tpl := range templates {
		if s.retrier.Delete(ctx, domain.ResourceTemplate, tpl.ID, s.service.DeleteTemplate) {
			report.TemplatesDeleted++
		}
	}

	campaigns, err := s.service.ListCampaigns(ctx)
	if err != nil {
		return report, providerError("list campaigns", err)
	}
	report.CampaignsFound = len(campaigns)
	for _, campaign := range campaigns {
		if s.retrier.Delete(ctx, domain.ResourceCampaign, campaign.ID, s.service.DeleteCampaign) {
			report.CampaignsDeleted++
		}
	}

	s.logger.Info("cleanup finished",
		"templates_deleted", report.TemplatesDeleted,
		"campaigns_deleted", report.CampaignsDeleted,
		"failed", report.Failed())
	return report, nil
}

// String renders the report for CLI output.
func (r SweepReport) String() string {
	return fmt.Sprintf("templates %d/%d deleted, campaigns %d/%d deleted",
		r.TemplatesDeleted, r.TemplatesFound, r.CampaignsDeleted, r.CampaignsFound)
}
