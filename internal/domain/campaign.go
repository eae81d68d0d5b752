package domain

// Interest is one entry of a provider interest category (a subscriber tag).
type Interest struct {
	ID   string
	Name string
}

// AudienceCondition filters subscribers on interest membership.
type AudienceCondition struct {
	ConditionType string
	Field         string
	Operator      string
	Values        []string
}

// SegmentMatchAll combines all conditions of a segment with a logical AND.
const SegmentMatchAll = "all"

// CampaignSpec carries everything needed to create one campaign.
type CampaignSpec struct {
	ListID      string
	Match       string
	Conditions  []AudienceCondition
	SubjectLine string
	PreviewText string
	Title       string
	FromName    string
	ReplyTo     string
	TemplateID  string
}

// ResourceKind distinguishes provider-side objects.
type ResourceKind string

const (
	ResourceTemplate ResourceKind = "template"
	ResourceCampaign ResourceKind = "campaign"
)

// ProviderResource is a template or campaign owned by the campaign provider.
type ProviderResource struct {
	Kind   ResourceKind
	ID     string
	Name   string
	Status string
}
