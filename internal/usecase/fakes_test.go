package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"MailchimpPublisher/internal/domain"
	"MailchimpPublisher/internal/ports"
)

var errBoom = errors.New("boom")

const (
	themeCategory = "cat-theme"
	kindCategory  = "cat-kind"
)

// recorder is a call log shared between fakes so tests can assert global ordering.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *recorder) index(call string) int {
	for i, c := range r.list() {
		if c == call {
			return i
		}
	}
	return -1
}

func (r *recorder) count(call string) int {
	n := 0
	for _, c := range r.list() {
		if c == call {
			n++
		}
	}
	return n
}

type fakeService struct {
	rec *recorder

	interests map[string][]domain.Interest
	templates []domain.ProviderResource
	campaigns []domain.ProviderResource

	pingErr            error
	listInterestsErr   error
	createTemplateErr  error
	createCampaignErr  error
	sendErr            error
	listTemplatesErr   error
	deleteTemplateErrs int
	deleteCampaignErrs int
	alwaysFailDelete   bool

	specs []domain.CampaignSpec
}

var _ ports.CampaignService = (*fakeService)(nil)

func newFakeService(rec *recorder) *fakeService {
	return &fakeService{
		rec: rec,
		interests: map[string][]domain.Interest{
			themeCategory: {
				{ID: "t-economy", Name: "Economie"},
				{ID: "t-culture", Name: "Cultuur"},
				{ID: "t-sport", Name: "Sport"},
			},
			kindCategory: {
				{ID: "k-press", Name: "Ik ontvang enkel persberichten"},
				{ID: "k-decisions", Name: "Ik ontvang enkel beslissingen"},
				{ID: "k-both", Name: "Ik ontvang zowel persberichten als beslissingen"},
			},
		},
	}
}

func (f *fakeService) Ping(context.Context) error {
	f.rec.add("ping")
	return f.pingErr
}

func (f *fakeService) ListInterests(_ context.Context, categoryID string) ([]domain.Interest, error) {
	f.rec.add("listInterests:%s", categoryID)
	if f.listInterestsErr != nil {
		return nil, f.listInterestsErr
	}
	return f.interests[categoryID], nil
}

func (f *fakeService) CreateTemplate(_ context.Context, _, _ string) (string, error) {
	f.rec.add("createTemplate")
	if f.createTemplateErr != nil {
		return "", f.createTemplateErr
	}
	return "tpl-1", nil
}

func (f *fakeService) DeleteTemplate(_ context.Context, id string) error {
	f.rec.add("deleteTemplate:%s", id)
	if f.alwaysFailDelete {
		return errBoom
	}
	if f.deleteTemplateErrs > 0 {
		f.deleteTemplateErrs--
		return errBoom
	}
	f.removeTemplate(id)
	return nil
}

func (f *fakeService) CreateCampaign(_ context.Context, spec domain.CampaignSpec) (string, error) {
	f.rec.add("createCampaign")
	f.specs = append(f.specs, spec)
	if f.createCampaignErr != nil {
		return "", f.createCampaignErr
	}
	return "cmp-1", nil
}

func (f *fakeService) SendCampaign(_ context.Context, id string) error {
	f.rec.add("sendCampaign:%s", id)
	return f.sendErr
}

func (f *fakeService) DeleteCampaign(_ context.Context, id string) error {
	f.rec.add("deleteCampaign:%s", id)
	if f.alwaysFailDelete {
		return errBoom
	}
	if f.deleteCampaignErrs > 0 {
		f.deleteCampaignErrs--
		return errBoom
	}
	// deleted campaigns disappear from subsequent listings
	for i, c := range f.campaigns {
		if c.ID == id {
			f.campaigns = append(f.campaigns[:i], f.campaigns[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeService) ListTemplates(context.Context) ([]domain.ProviderResource, error) {
	f.rec.add("listTemplates")
	if f.listTemplatesErr != nil {
		return nil, f.listTemplatesErr
	}
	out := make([]domain.ProviderResource, len(f.templates))
	copy(out, f.templates)
	return out, nil
}

func (f *fakeService) ListCampaigns(context.Context) ([]domain.ProviderResource, error) {
	f.rec.add("listCampaigns")
	out := make([]domain.ProviderResource, len(f.campaigns))
	copy(out, f.campaigns)
	return out, nil
}

// removeTemplate lets the template fake behave like the provider after a delete.
func (f *fakeService) removeTemplate(id string) {
	for i, t := range f.templates {
		if t.ID == id {
			f.templates = append(f.templates[:i], f.templates[i+1:]...)
			return
		}
	}
}

type fakeRepository struct {
	rec *recorder

	pending      []domain.PublicationTask
	releases     map[string]domain.PressRelease
	statuses     map[string]domain.TaskStatus
	html         map[string]string
	fetchErr     error
	persistErr   error
	staleTaskIDs map[string]bool
}

var _ ports.TaskRepository = (*fakeRepository)(nil)

func newFakeRepository(rec *recorder, tasks ...domain.PublicationTask) *fakeRepository {
	repo := &fakeRepository{
		rec:          rec,
		pending:      tasks,
		releases:     map[string]domain.PressRelease{},
		statuses:     map[string]domain.TaskStatus{},
		html:         map[string]string{},
		staleTaskIDs: map[string]bool{},
	}
	for _, task := range tasks {
		repo.statuses[task.ID] = task.Status
		repo.releases[task.PressRelease] = domain.PressRelease{
			ID:          task.PressRelease,
			Title:       "Nieuwe subsidie",
			HTMLBody:    "<p>Body</p>",
			CreatorName: "Vlaamse Regering",
			Themes:      []string{"Economie", "Cultuur", "Economie"},
		}
	}
	return repo
}

func (r *fakeRepository) FetchPendingTasks(_ context.Context, _ string) ([]domain.PublicationTask, error) {
	r.rec.add("fetchPending")
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	return append([]domain.PublicationTask(nil), r.pending...), nil
}

func (r *fakeRepository) PersistStatus(_ context.Context, task domain.PublicationTask, status domain.TaskStatus, _ time.Time) error {
	r.rec.add("persist:%s:%s", task.ID, status)
	if r.persistErr != nil {
		return r.persistErr
	}
	if r.staleTaskIDs[task.ID] {
		return domain.ErrStaleStatus
	}
	r.statuses[task.ID] = status
	return nil
}

func (r *fakeRepository) FetchPressRelease(_ context.Context, task domain.PublicationTask) (domain.PressRelease, error) {
	r.rec.add("fetchPressRelease")
	pr, ok := r.releases[task.PressRelease]
	if !ok {
		return domain.PressRelease{}, domain.ErrNotFound
	}
	return pr, nil
}

func (r *fakeRepository) PersistRenderedContent(_ context.Context, task domain.PublicationTask, html string) error {
	r.rec.add("persistContent")
	r.html[task.ID] = html
	return nil
}

type fakeRenderer struct {
	err error
}

func (f fakeRenderer) Render(_ context.Context, pr domain.PressRelease) (domain.RenderedContent, error) {
	if f.err != nil {
		return domain.RenderedContent{}, f.err
	}
	return domain.RenderedContent{
		Subject:     pr.Title,
		Title:       pr.Title,
		PreviewText: "Body",
		HTML:        "<html>" + pr.HTMLBody + "</html>",
	}, nil
}

type fakeNotifier struct {
	notified []string
}

func (f *fakeNotifier) NotifyFailure(_ context.Context, task domain.PublicationTask, _ error) error {
	f.notified = append(f.notified, task.ID)
	return nil
}

type fakeLocker struct {
	err      error
	released int
}

func (f *fakeLocker) Acquire(context.Context, string) (func(context.Context) error, error) {
	if f.err != nil {
		return nil, f.err
	}
	return func(context.Context) error {
		f.released++
		return nil
	}, nil
}

// sleepRecorder is an injected SleepFunc that never blocks.
type sleepRecorder struct {
	durations []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.durations = append(s.durations, d)
	return nil
}

func testRetrier(s *sleepRecorder) *DeletionRetrier {
	return NewDeletionRetrier(RetryOptions{MaxAttempts: 4, Delay: 2 * time.Second, Sleep: s.sleep})
}

func testAudience(service ports.CampaignService) *AudienceBuilder {
	return NewAudienceBuilder(service, AudienceConfig{
		ThemeCategoryID: themeCategory,
		KindCategoryID:  kindCategory,
		KindLabels: []string{
			"Ik ontvang enkel persberichten",
			"Ik ontvang zowel persberichten als beslissingen",
		},
	}, nil)
}

func testPipeline(repo *fakeRepository, service *fakeService, sleeper *sleepRecorder) *Pipeline {
	return NewPipeline(PipelineDeps{
		Repository: repo,
		Service:    service,
		Renderer:   fakeRenderer{},
		Audience:   testAudience(service),
		Retrier:    testRetrier(sleeper),
		Settings:   CampaignSettings{ListID: "list-1", FromName: "Vlaanderen", ReplyTo: "pers@vlaanderen.be"},
	})
}

func pendingTask(id string) domain.PublicationTask {
	return domain.PublicationTask{ID: id, PressRelease: "pr-" + id, Status: domain.StatusNotStarted}
}

func fixedClock() time.Time {
	return time.Date(2024, time.May, 2, 9, 30, 0, 0, time.UTC)
}
