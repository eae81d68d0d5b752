package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"MailchimpPublisher/internal/domain"
	"MailchimpPublisher/internal/ports"
)

func newTestProcessor(repo *fakeRepository, service *fakeService, notifier ports.FailureNotifier, locker ports.Locker) *TaskProcessor {
	return NewTaskProcessor(TaskProcessorDeps{
		Repository: repo,
		Publisher:  testPipeline(repo, service, &sleepRecorder{}),
		Notifier:   notifier,
		Locker:     locker,
		LockKey:    "test-lock",
		Channel:    "mailchimp",
		Clock:      fixedClock,
	})
}

func TestRunPublishesPressRelease(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	task := pendingTask("task-1")
	repo := newFakeRepository(rec, task)
	service := newFakeService(rec)

	processed, err := newTestProcessor(repo, service, nil, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected 1 processed task, got %d", processed)
	}

	if rec.count("listInterests:"+themeCategory) != 1 || rec.count("listInterests:"+kindCategory) != 1 {
		t.Fatalf("expected two interest listings, calls: %v", rec.list())
	}
	if rec.count("createTemplate") != 1 || rec.count("createCampaign") != 1 {
		t.Fatalf("expected one template and one campaign, calls: %v", rec.list())
	}
	if len(service.specs[0].Conditions) != 2 || service.specs[0].Match != domain.SegmentMatchAll {
		t.Fatalf("unexpected campaign spec %+v", service.specs[0])
	}

	order := []string{"deleteTemplate:tpl-1", "sendCampaign:cmp-1", "deleteCampaign:cmp-1", "persist:task-1:success"}
	for i := 1; i < len(order); i++ {
		if rec.index(order[i-1]) >= rec.index(order[i]) {
			t.Fatalf("expected %s before %s, calls: %v", order[i-1], order[i], rec.list())
		}
	}
	if repo.statuses[task.ID] != domain.StatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", repo.statuses[task.ID])
	}
}

func TestRunPublishesWhenKindClassificationIsAbsent(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	task := pendingTask("task-1")
	repo := newFakeRepository(rec, task)
	service := newFakeService(rec)
	service.interests[kindCategory] = []domain.Interest{{ID: "k-other", Name: "Iets anders"}}

	if _, err := newTestProcessor(repo, service, nil, nil).Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if repo.statuses[task.ID] != domain.StatusSuccess {
		t.Fatalf("expected SUCCESS, got %s, calls: %v", repo.statuses[task.ID], rec.list())
	}
	if rec.count("createTemplate") != 1 || rec.count("sendCampaign:cmp-1") != 1 {
		t.Fatalf("expected template creation and send, calls: %v", rec.list())
	}
	conditions := service.specs[0].Conditions
	if len(conditions) != 2 || service.specs[0].Match != domain.SegmentMatchAll {
		t.Fatalf("expected match all over two conditions, got %+v", service.specs[0])
	}
	if conditions[1].Field != "interests-"+kindCategory || len(conditions[1].Values) != 0 {
		t.Fatalf("expected an empty kind condition, got %+v", conditions[1])
	}
}

func TestRunMarksTaskFailedWhenCampaignCreationFails(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	task := pendingTask("task-1")
	repo := newFakeRepository(rec, task)
	service := newFakeService(rec)
	service.createCampaignErr = errBoom
	notifier := &fakeNotifier{}

	if _, err := newTestProcessor(repo, service, notifier, nil).Run(context.Background()); err != nil {
		t.Fatalf("publish failures must not surface from Run, got %v", err)
	}

	if rec.count("deleteTemplate:tpl-1") != 1 {
		t.Fatalf("expected template deletion, calls: %v", rec.list())
	}
	if rec.count("sendCampaign:cmp-1") != 0 {
		t.Fatalf("campaign must not be sent")
	}
	if repo.statuses[task.ID] != domain.StatusFailed {
		t.Fatalf("expected FAILED, got %s", repo.statuses[task.ID])
	}
	if len(notifier.notified) != 1 || notifier.notified[0] != task.ID {
		t.Fatalf("expected failure notification, got %v", notifier.notified)
	}
}

func TestClaimPersistsOngoingBeforeProviderCalls(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	repo := newFakeRepository(rec, pendingTask("task-1"), pendingTask("task-2"))
	service := newFakeService(rec)
	processor := newTestProcessor(repo, service, nil, nil)

	batch, err := processor.Claim(context.Background())
	if err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}
	if batch.Len() != 2 {
		t.Fatalf("expected 2 claimed tasks, got %d", batch.Len())
	}
	for _, task := range batch.Tasks() {
		if task.Status != domain.StatusOngoing {
			t.Fatalf("task %s: expected ONGOING, got %s", task.ID, task.Status)
		}
		if !task.LastModified.Equal(fixedClock()) {
			t.Fatalf("task %s: expected modified stamp, got %s", task.ID, task.LastModified)
		}
	}
	for _, call := range rec.list() {
		if call == "ping" {
			t.Fatalf("no provider call may happen during Claim")
		}
	}

	if err := batch.Process(context.Background()); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	firstProvider := rec.index("ping")
	if rec.index("persist:task-1:ongoing") > firstProvider || rec.index("persist:task-2:ongoing") > firstProvider {
		t.Fatalf("ONGOING must be persisted for the whole batch first, calls: %v", rec.list())
	}
	for _, id := range []string{"task-1", "task-2"} {
		if !repo.statuses[id].Terminal() {
			t.Fatalf("task %s: expected terminal status, got %s", id, repo.statuses[id])
		}
	}
}

func TestClaimSkipsTasksClaimedElsewhere(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	repo := newFakeRepository(rec, pendingTask("task-1"), pendingTask("task-2"))
	repo.staleTaskIDs["task-1"] = true

	batch, err := newTestProcessor(repo, newFakeService(rec), nil, nil).Claim(context.Background())
	if err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}
	tasks := batch.Tasks()
	if len(tasks) != 1 || tasks[0].ID != "task-2" {
		t.Fatalf("expected only task-2 to be claimed, got %+v", tasks)
	}
}

func TestClaimReturnsEmptyBatch(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	batch, err := newTestProcessor(newFakeRepository(rec), newFakeService(rec), nil, nil).Claim(context.Background())
	if err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}
	if batch.Len() != 0 {
		t.Fatalf("expected empty batch, got %d", batch.Len())
	}
	if err := batch.Process(context.Background()); err != nil {
		t.Fatalf("processing an empty batch returned error: %v", err)
	}
}

func TestPersistStatusFailurePropagates(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	repo := newFakeRepository(rec, pendingTask("task-1"))
	repo.persistErr = errBoom
	service := newFakeService(rec)

	_, err := newTestProcessor(repo, service, nil, nil).Run(context.Background())
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if rec.count("ping") != 0 {
		t.Fatalf("no provider call may happen when ONGOING cannot be stored")
	}
}

func TestProcessStartsNotStartedTask(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	task := pendingTask("task-1")
	repo := newFakeRepository(rec, task)

	if err := newTestProcessor(repo, newFakeService(rec), nil, nil).Process(context.Background(), &task); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if task.Status != domain.StatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", task.Status)
	}
	if rec.index("persist:task-1:ongoing") > rec.index("ping") {
		t.Fatalf("ONGOING must be stored before the provider is contacted, calls: %v", rec.list())
	}
}

func TestBatchStopsBetweenTasksWhenCancelled(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	repo := newFakeRepository(rec, pendingTask("task-1"), pendingTask("task-2"))
	locker := &fakeLocker{}
	processor := newTestProcessor(repo, newFakeService(rec), nil, locker)

	batch, err := processor.Claim(context.Background())
	if err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := batch.Process(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if repo.statuses["task-1"] != domain.StatusOngoing || repo.statuses["task-2"] != domain.StatusOngoing {
		t.Fatalf("unstarted tasks must stay ONGOING, got %v", repo.statuses)
	}
	if locker.released != 1 {
		t.Fatalf("lock must be released on interruption")
	}
}

func TestProcessRejectsTaskThatIsNotOngoing(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	task := pendingTask("task-1")
	task.Status = domain.StatusSuccess
	repo := newFakeRepository(rec, task)

	err := newTestProcessor(repo, newFakeService(rec), nil, nil).Process(context.Background(), &task)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if task.Status != domain.StatusSuccess {
		t.Fatalf("terminal status must not change, got %s", task.Status)
	}
}

func TestClaimReturnsBusyWhenLockIsHeld(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	locker := &fakeLocker{err: ports.ErrLockNotObtained}

	_, err := newTestProcessor(newFakeRepository(rec, pendingTask("task-1")), newFakeService(rec), nil, locker).Claim(context.Background())
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if rec.count("fetchPending") != 0 {
		t.Fatalf("tasks must not be fetched without the lock")
	}
}

func TestBatchReleasesLockAfterProcessing(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	locker := &fakeLocker{}
	processor := newTestProcessor(newFakeRepository(rec, pendingTask("task-1")), newFakeService(rec), nil, locker)

	batch, err := processor.Claim(context.Background())
	if err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}
	if locker.released != 0 {
		t.Fatalf("lock must be held until the batch is processed")
	}
	if err := batch.Process(context.Background()); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if locker.released != 1 {
		t.Fatalf("expected lock release, got %d", locker.released)
	}
}

func TestLockBackendErrorDoesNotBlockRun(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	locker := &fakeLocker{err: errors.New("dial tcp: connection refused")}
	repo := newFakeRepository(rec, pendingTask("task-1"))

	if _, err := newTestProcessor(repo, newFakeService(rec), nil, locker).Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if repo.statuses["task-1"] != domain.StatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", repo.statuses["task-1"])
	}
}

func TestFetchPendingErrorIsWrapped(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	repo := newFakeRepository(rec)
	repo.fetchErr = errBoom

	_, err := newTestProcessor(repo, newFakeService(rec), nil, nil).Claim(context.Background())
	if !errors.Is(err, errBoom) || !strings.Contains(err.Error(), "fetch pending tasks") {
		t.Fatalf("unexpected error %v", err)
	}
}
