package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"MailchimpPublisher/internal/domain"
	"MailchimpPublisher/internal/ports"
)

const (
	interestConditionType = "Interests"
	interestContainsOp    = "interestcontains"
)

// AudienceConfig names the provider interest categories used for segmentation.
type AudienceConfig struct {
	ThemeCategoryID string
	KindCategoryID  string
	// KindLabels is the allow-list of subscription kinds that receive press releases.
	KindLabels []string
}

// AudienceBuilder maps press release metadata onto provider interest conditions.
// Interest catalogs are listed on every call since segment ids change between runs.
type AudienceBuilder struct {
	service ports.CampaignService
	cfg     AudienceConfig
	logger  *slog.Logger
}

// NewAudienceBuilder wires the builder to the campaign service.
func NewAudienceBuilder(service ports.CampaignService, cfg AudienceConfig, logger *slog.Logger) *AudienceBuilder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AudienceBuilder{service: service, cfg: cfg, logger: logger}
}

// ThemeCondition matches subscribers interested in any of the given theme labels.
func (b *AudienceBuilder) ThemeCondition(ctx context.Context, themes []string) (domain.AudienceCondition, error) {
	return b.condition(ctx, b.cfg.ThemeCategoryID, domain.Dedupe(themes))
}

// KindCondition matches subscribers whose subscription kind includes press releases.
func (b *AudienceBuilder) KindCondition(ctx context.Context) (domain.AudienceCondition, error) {
	return b.condition(ctx, b.cfg.KindCategoryID, b.cfg.KindLabels)
}

// Conditions builds the theme and kind conditions, in that order.
// A theme condition without values is rejected with domain.ErrEmptyAudience.
// An empty kind condition is still sent; the provider decides how it segments.
func (b *AudienceBuilder) Conditions(ctx context.Context, themes []string) ([]domain.AudienceCondition, error) {
	theme, err := b.ThemeCondition(ctx, themes)
	if err != nil {
		return nil, err
	}
	if len(theme.Values) == 0 {
		return nil, fmt.Errorf("%w: no theme interest matches %v", domain.ErrEmptyAudience, themes)
	}

	kind, err := b.KindCondition(ctx)
	if err != nil {
		return nil, err
	}
	if len(kind.Values) == 0 {
		b.logger.Warn("no kind interest matches, sending empty kind condition",
			"category", b.cfg.KindCategoryID, "labels", b.cfg.KindLabels)
	}

	return []domain.AudienceCondition{theme, kind}, nil
}

func (b *AudienceBuilder) condition(ctx context.Context, categoryID string, names []string) (domain.AudienceCondition, error) {
	interests, err := b.service.ListInterests(ctx, categoryID)
	if err != nil {
		return domain.AudienceCondition{}, providerError(fmt.Sprintf("list interests of category %s", categoryID), err)
	}

	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		wanted[name] = struct{}{}
	}

	var ids []string
	for _, interest := range interests {
		if _, ok := wanted[interest.Name]; ok {
			ids = append(ids, interest.ID)
		}
	}
	ids = domain.Dedupe(ids)
	sort.Strings(ids)

	return domain.AudienceCondition{
		ConditionType: interestConditionType,
		Field:         "interests-" + categoryID,
		Operator:      interestContainsOp,
		Values:        ids,
	}, nil
}

func providerError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrProviderRequest, err)
}
