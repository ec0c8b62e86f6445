package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/cohort/internal/adapters/repository"
	service "github.com/okian/cohort/internal/app"
	"github.com/okian/cohort/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// hookStore is a memory store that can pause or fail selected writes.
type hookStore struct {
	*repository.MemoryStore

	mu               sync.Mutex
	beforeConfigSave func()
	failStages       map[int]error
	stageCalls       int
	runs             int
	activeRuns       int
	maxActiveRuns    int
	runDelay         time.Duration
}

func (h *hookStore) UpdatePhaseConfig(ctx context.Context, cfg model.PhaseConfig) (model.PhaseConfig, error) {
	h.mu.Lock()
	hook := h.beforeConfigSave
	h.mu.Unlock()
	if hook != nil {
		hook()
	}
	return h.MemoryStore.UpdatePhaseConfig(ctx, cfg)
}

func (h *hookStore) CreateCutoffRun(ctx context.Context, run model.CutoffRun) error {
	h.mu.Lock()
	h.runs++
	h.activeRuns++
	h.maxActiveRuns = max(h.maxActiveRuns, h.activeRuns)
	delay := h.runDelay
	h.mu.Unlock()

	time.Sleep(delay)
	err := h.MemoryStore.CreateCutoffRun(ctx, run)

	h.mu.Lock()
	h.activeRuns--
	h.mu.Unlock()
	return err
}

func (h *hookStore) SetStages(ctx context.Context, moves []model.StageMove) (int, error) {
	h.mu.Lock()
	h.stageCalls++
	err := h.failStages[h.stageCalls]
	h.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return h.MemoryStore.SetStages(ctx, moves)
}

func (h *hookStore) setBeforeConfigSave(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.beforeConfigSave = fn
}

func (h *hookStore) counts() (runs, maxActive int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs, h.maxActiveRuns
}

// hookedSetup mirrors setup over a hookStore.
func hookedSetup(apps ...model.Application) (*hookStore, func() *service.Service) {
	ctx := context.Background()
	store := &hookStore{MemoryStore: repository.NewMemoryStore(repository.WithAdmins(ada, bob))}
	for _, a := range apps {
		So(store.PutApplication(ctx, a), ShouldBeNil)
	}
	newService := func() *service.Service {
		return service.New(store, service.WithBatchSize(2))
	}
	_, err := newService().InitializePhaseConfigs(ctx, cycle, ada.Email)
	So(err, ShouldBeNil)
	return store, newService
}

// arrivals releases its first n callers together and lets later ones pass.
type arrivals struct {
	mu      sync.Mutex
	n, seen int
	all     chan struct{}
}

func newArrivals(n int) *arrivals { return &arrivals{n: n, all: make(chan struct{})} }

func (a *arrivals) wait() {
	a.mu.Lock()
	a.seen++
	if a.seen == a.n {
		close(a.all)
	}
	late := a.seen > a.n
	a.mu.Unlock()
	if late {
		return
	}
	select {
	case <-a.all:
	case <-time.After(2 * time.Second):
	}
}

func TestService_TrackRubrics(t *testing.T) {
	Convey("Given a design track with its own rubric", t, func() {
		ctx := context.Background()
		svc, store := setup(nil,
			applicant("d1", "Dora", "design", model.StageSubmitted),
			applicant("e1", "Eve", "eng", model.StageSubmitted),
		)
		designKey := model.PhaseKey{CycleID: cycle, Phase: model.PhaseApplication, Track: "design"}
		_, err := svc.UpdatePhaseConfig(ctx, designKey, model.PhaseConfigPatch{
			ScoringCategories: []model.ScoringCategory{{Key: "portfolio", Weight: 1, MinScore: 0, MaxScore: 5}},
		}, ada.Email)
		So(err, ShouldBeNil)

		for _, r := range []model.Admin{ada, bob} {
			_, err := svc.UpsertReview(ctx, model.ApplicationReview{
				ApplicationID:  "d1",
				Phase:          model.PhaseApplication,
				ReviewerEmail:  r.Email,
				ReferralSignal: model.SignalNeutral,
				Scores:         []model.CategoryScore{model.Score("portfolio", 5)},
			})
			So(err, ShouldBeNil)
		}
		reviewAll(svc, map[string][2]float64{"e1": {1, 1}}, ada, bob)

		Convey("When ranking across tracks", func() {
			ranked, err := svc.Rankings(ctx, appKey)
			So(err, ShouldBeNil)

			Convey("Then each applicant is scored with its own track's rubric", func() {
				So(ranked, ShouldHaveLength, 2)
				So(ranked[0].ApplicationID, ShouldEqual, "d1")
				So(ranked[0].ScoredCount, ShouldEqual, 2)
				So(ranked[0].WeightedScore, ShouldAlmostEqual, 5, 1e-9)
				So(ranked[1].ApplicationID, ShouldEqual, "e1")
				So(ranked[1].WeightedScore, ShouldAlmostEqual, 1, 1e-9)
			})
		})

		Convey("When a top_n=1 cutoff is applied to every track", func() {
			_, err := svc.ApplyCutoff(ctx, service.ApplyCutoffRequest{
				Key:              appKey,
				Criteria:         model.CutoffCriteria{Type: model.CutoffTopN, TopN: ptr(1)},
				Actor:            ada.Email,
				ConfirmAllTracks: true,
			})
			So(err, ShouldBeNil)

			Convey("Then the stronger design applicant advances", func() {
				So(stageOf(store, "d1"), ShouldEqual, model.StageInterviewRound1)
				So(stageOf(store, "e1"), ShouldEqual, model.StageRejected)
			})
		})
	})
}

func TestService_ApplyCutoffExclusion(t *testing.T) {
	Convey("Given a fully reviewed track", t, func() {
		ctx := context.Background()
		store, newService := hookedSetup(
			applicant("a1", "Ann", "eng", model.StageSubmitted),
			applicant("a2", "Ben", "eng", model.StageSubmitted),
			applicant("a3", "Cat", "eng", model.StageSubmitted),
		)
		svc := newService()
		reviewAll(svc, map[string][2]float64{"a1": {5, 5}, "a2": {4, 4}, "a3": {1, 1}}, ada, bob)
		key := model.PhaseKey{CycleID: cycle, Phase: model.PhaseApplication, Track: "eng"}
		apply := service.ApplyCutoffRequest{Key: key, Criteria: model.CutoffCriteria{Type: model.CutoffTopN, TopN: ptr(1)}, Actor: ada.Email}
		store.runDelay = 20 * time.Millisecond

		Convey("When two cutoffs race in one process", func() {
			errs := make([]error, 2)
			var wg sync.WaitGroup
			for i := range errs {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, errs[i] = svc.ApplyCutoff(ctx, apply)
				}()
			}
			wg.Wait()

			Convey("Then exactly one wins and the other sees a finalized phase", func() {
				failures := 0
				for _, err := range errs {
					if err != nil {
						failures++
						So(errors.Is(err, model.ErrPhaseFinalized), ShouldBeTrue)
					}
				}
				So(failures, ShouldEqual, 1)
				runs, maxActive := store.counts()
				So(runs, ShouldEqual, 1)
				So(maxActive, ShouldEqual, 1)
			})
		})

		Convey("When a cutoff races a finalize", func() {
			var applyErr, finalizeErr error
			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, applyErr = svc.ApplyCutoff(ctx, apply)
			}()
			go func() {
				defer wg.Done()
				_, finalizeErr = svc.PhaseAction(ctx, service.PhaseActionRequest{Key: key, Action: model.ActionFinalize, Actor: bob.Email})
			}()
			wg.Wait()

			Convey("Then exactly one of them succeeds", func() {
				So((applyErr == nil) != (finalizeErr == nil), ShouldBeTrue)
				for _, err := range []error{applyErr, finalizeErr} {
					if err != nil {
						So(errors.Is(err, model.ErrPhaseFinalized), ShouldBeTrue)
					}
				}
			})
		})

		Convey("When two processes apply from the same config version", func() {
			other := newService()
			gate := newArrivals(2)
			store.setBeforeConfigSave(gate.wait)
			defer store.setBeforeConfigSave(nil)

			all := apply
			all.Key, all.ConfirmAllTracks = appKey, true
			results := make([]service.ApplyCutoffResult, 2)
			errs := make([]error, 2)
			var wg sync.WaitGroup
			for i, s := range []*service.Service{svc, other} {
				wg.Add(1)
				go func() {
					defer wg.Done()
					results[i], errs[i] = s.ApplyCutoff(ctx, all)
				}()
			}
			wg.Wait()

			Convey("Then the loser fails its claim before writing a run or moving anyone", func() {
				winner := -1
				for i, err := range errs {
					if err == nil {
						winner = i
						continue
					}
					So(errors.Is(err, model.ErrConflict), ShouldBeTrue)
				}
				So(winner, ShouldBeGreaterThanOrEqualTo, 0)
				runs, _ := store.counts()
				So(runs, ShouldEqual, 1)

				latest, err := store.LatestCutoffRun(ctx, appKey)
				So(err, ShouldBeNil)
				So(latest.ID, ShouldEqual, results[winner].Run.ID)
				So(results[winner].Config.Status, ShouldEqual, model.StatusFinalized)
			})
		})
	})
}

func TestService_PartialStageBatch(t *testing.T) {
	Convey("Given a cutoff whose second stage batch fails once", t, func() {
		ctx := context.Background()
		store, newService := hookedSetup(
			applicant("a1", "Ann", "eng", model.StageSubmitted),
			applicant("a2", "Ben", "eng", model.StageSubmitted),
			applicant("a3", "Cat", "eng", model.StageSubmitted),
		)
		svc := newService()
		reviewAll(svc, map[string][2]float64{"a1": {5, 5}, "a2": {4, 4}, "a3": {1, 1}}, ada, bob)
		store.failStages = map[int]error{2: errors.New("connection reset")}
		key := model.PhaseKey{CycleID: cycle, Phase: model.PhaseApplication, Track: "eng"}
		apply := service.ApplyCutoffRequest{Key: key, Criteria: model.CutoffCriteria{Type: model.CutoffTopN, TopN: ptr(1)}, Actor: ada.Email}

		res, err := svc.ApplyCutoff(ctx, apply)

		Convey("Then the committed part is reported and the phase stays open", func() {
			var batch *model.BatchError
			So(errors.As(err, &batch), ShouldBeTrue)
			So(batch.Applied, ShouldEqual, 2)
			So(batch.Total, ShouldEqual, 3)
			So(res.Run.ID, ShouldNotBeEmpty)
			So(res.Moved, ShouldEqual, 2)
			So(res.Config.Finalized(), ShouldBeFalse)
			So(res.Config.CutoffAppliedAt, ShouldNotBeNil)
		})

		Convey("When the cutoff is applied again", func() {
			again, err := svc.ApplyCutoff(ctx, apply)

			Convey("Then it resumes with the remaining move and finalizes", func() {
				So(err, ShouldBeNil)
				So(again.Moved, ShouldEqual, 1)
				So(again.Config.Finalized(), ShouldBeTrue)
				So(stageOf(store.MemoryStore, "a1"), ShouldEqual, model.StageInterviewRound1)
				So(stageOf(store.MemoryStore, "a2"), ShouldEqual, model.StageRejected)
				So(stageOf(store.MemoryStore, "a3"), ShouldEqual, model.StageRejected)
			})
		})
	})
}

func TestService_ReviewDuringFinalize(t *testing.T) {
	Convey("Given a finalize paused just before its save", t, func() {
		ctx := context.Background()
		store, newService := hookedSetup(applicant("a1", "Ann", "", model.StageSubmitted))
		svc := newService()

		entered, release := make(chan struct{}), make(chan struct{})
		var once sync.Once
		store.setBeforeConfigSave(func() {
			once.Do(func() {
				close(entered)
				<-release
			})
		})

		finalized := make(chan error, 1)
		go func() {
			_, err := svc.PhaseAction(ctx, service.PhaseActionRequest{
				Key: appKey, Action: model.ActionFinalize, Actor: ada.Email, ForceFinalize: true,
			})
			finalized <- err
		}()
		<-entered

		reviewed := make(chan error, 1)
		go func() {
			_, err := svc.UpsertReview(ctx, review("a1", bob, 4, 4))
			reviewed <- err
		}()

		Convey("Then the review waits for the finalize and is then refused", func() {
			returnedEarly := false
			select {
			case err := <-reviewed:
				returnedEarly = true
				reviewed <- err
			case <-time.After(50 * time.Millisecond):
			}
			close(release)
			So(returnedEarly, ShouldBeFalse)

			So(<-finalized, ShouldBeNil)
			So(errors.Is(<-reviewed, model.ErrPhaseFinalized), ShouldBeTrue)
			reviews, err := svc.GetReviews(ctx, "a1", model.PhaseApplication)
			So(err, ShouldBeNil)
			So(reviews, ShouldBeEmpty)
		})
	})
}
