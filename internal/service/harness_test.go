package service

import (
	"context"
	"encoding/json"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository"
	"learnhub_backend/internal/repository/repotest"
	"learnhub_backend/pkg/eventbus"
	"learnhub_backend/pkg/keylock"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// recordingBus 同步投递并记录所有事件
type recordingBus struct {
	mu     sync.Mutex
	events []model.DomainEvent
	subs   []recordedSub
}

type recordedSub struct {
	handler eventbus.Handler
	kinds   []model.EventKind
}

func (b *recordingBus) Publish(ctx context.Context, ev model.DomainEvent) error {
	b.mu.Lock()
	b.events = append(b.events, ev)
	subs := append([]recordedSub(nil), b.subs...)
	b.mu.Unlock()

	for _, sub := range subs {
		if len(sub.kinds) > 0 && !containsKind(sub.kinds, ev.Kind) {
			continue
		}
		_ = sub.handler(ctx, ev)
	}
	return nil
}

func (b *recordingBus) Subscribe(h eventbus.Handler, kinds ...model.EventKind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, recordedSub{handler: h, kinds: kinds})
}

func (b *recordingBus) Start(ctx context.Context) {}

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) ofKind(kind model.EventKind) []model.DomainEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []model.DomainEvent
	for _, ev := range b.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (b *recordingBus) count(kind model.EventKind) int {
	return len(b.ofKind(kind))
}

func containsKind(kinds []model.EventKind, kind model.EventKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

type harness struct {
	db           *gorm.DB
	cat          *repotest.Catalog
	bus          *recordingBus
	catalog      *CatalogService
	progress     *ProgressService
	cascade      *CascadeService
	submissions  *SubmissionService
	certificates *CertificateService
	reconcile    *ReconcileService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := repotest.Open(t)
	bus := &recordingBus{}
	locker := keylock.NewMemoryLocker(5 * time.Second)

	submissionRepo := repository.NewSubmissionRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)

	catalog := NewCatalogService(repository.NewCatalogRepository(db), assessmentRepo, nil)
	cascade := NewCascadeService(enrollmentRepo, catalog, locker, bus)
	progress := NewProgressService(progressRepo, catalog, locker, cascade)
	certificates := NewCertificateService(repository.NewCertificateRepository(db), enrollmentRepo, nil)

	return &harness{
		db:           db,
		cat:          repotest.NewCatalog(db),
		bus:          bus,
		catalog:      catalog,
		progress:     progress,
		cascade:      cascade,
		submissions:  NewSubmissionService(submissionRepo, assessmentRepo, progress, locker, bus),
		certificates: certificates,
		reconcile:    NewReconcileService(submissionRepo, progressRepo, enrollmentRepo, progress, cascade, certificates),
	}
}

func newID() string {
	return uuid.NewString()
}

func answer(index int, raw string) AnswerInput {
	return AnswerInput{QuestionIndex: index, Answer: json.RawMessage(raw)}
}
