package rating

import (
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight/scripts-backend/config"
	"github.com/finsight/scripts-backend/pkg/logger"
)

func TestRating(t *testing.T) {
	t.Run("Create new rating", func(t *testing.T) {
		userID := uuid.New()
		scriptID := uuid.New()
		r := Rating{
			ID:          uuid.New(),
			ScriptID:    scriptID,
			SubjectKind: SubjectUser,
			SubjectKey:  userID.String(),
			UserID:      &userID,
			Rating:      5,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}

		assert.Equal(t, scriptID, r.ScriptID)
		assert.Equal(t, &userID, r.UserID)
		assert.Equal(t, 5, r.Rating)
		assert.True(t, r.IsValidValue())
		assert.NotZero(t, r.CreatedAt)
	})

	t.Run("Value range validation", func(t *testing.T) {
		tests := []struct {
			value int
			valid bool
		}{
			{0, false},
			{1, true},
			{5, true},
			{10, true},
			{11, false},
			{-3, false},
		}

		for _, tt := range tests {
			r := Rating{Rating: tt.value}
			assert.Equal(t, tt.valid, r.IsValidValue(), "value %d", tt.value)
		}
	})

	t.Run("Subject constructors", func(t *testing.T) {
		userID := uuid.New()

		s := UserSubject(userID)
		assert.Equal(t, SubjectUser, s.Kind)
		assert.Equal(t, userID.String(), s.Key)
		assert.Empty(t, s.IPAddress)

		s = GuestSubject("guest-abc", "203.0.113.9")
		assert.Equal(t, SubjectGuest, s.Kind)
		assert.Equal(t, "guest-abc", s.Key)
		assert.Equal(t, "203.0.113.9", s.IPAddress)

		s = AnonymousSubject("203.0.113.9")
		assert.Equal(t, SubjectAnonymous, s.Kind)
		assert.Equal(t, "203.0.113.9", s.Key)
		assert.Equal(t, "203.0.113.9", s.IPAddress)
	})

	t.Run("ToResponse", func(t *testing.T) {
		userID := uuid.New()
		r := Rating{
			ID:          uuid.New(),
			ScriptID:    uuid.New(),
			SubjectKind: SubjectUser,
			SubjectKey:  userID.String(),
			UserID:      &userID,
			IPAddress:   "203.0.113.9",
			Rating:      8,
		}

		response := r.ToResponse()

		assert.Equal(t, r.ID, response.ID)
		assert.Equal(t, r.ScriptID, response.ScriptID)
		assert.Equal(t, r.UserID, response.UserID)
		assert.Equal(t, 8, response.Rating)

		// RatingResponse carries no subject key or IP address
	})

	t.Run("Table name", func(t *testing.T) {
		assert.Equal(t, "ratings", Rating{}.TableName())
	})
}

type subjectKey struct {
	scriptID uuid.UUID
	kind     string
	key      string
}

// fakeRatingRepo is an in-memory Repository computing real aggregates
type fakeRatingRepo struct {
	ratings map[subjectKey]*Rating
	findErr error

	// When set, ReconcileAggregates recomputes into this service the way
	// the production single-statement update does
	scripts      *fakeScriptService
	reconciled   int64
	reconcileErr error
}

func newFakeRatingRepo() *fakeRatingRepo {
	return &fakeRatingRepo{ratings: make(map[subjectKey]*Rating)}
}

func (r *fakeRatingRepo) keyOf(rt *Rating) subjectKey {
	return subjectKey{scriptID: rt.ScriptID, kind: rt.SubjectKind, key: rt.SubjectKey}
}

func (r *fakeRatingRepo) Create(rt *Rating) error {
	k := r.keyOf(rt)
	if _, ok := r.ratings[k]; ok {
		return errors.New("duplicate key value violates unique constraint")
	}
	clone := *rt
	r.ratings[k] = &clone
	return nil
}

func (r *fakeRatingRepo) FindBySubject(scriptID uuid.UUID, subject Subject) (*Rating, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	if rt, ok := r.ratings[subjectKey{scriptID: scriptID, kind: subject.Kind, key: subject.Key}]; ok {
		clone := *rt
		return &clone, nil
	}
	return nil, ErrNoRating
}

func (r *fakeRatingRepo) FindByIDAndUser(id, userID uuid.UUID) (*Rating, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, rt := range r.ratings {
		if rt.ID == id && rt.UserID != nil && *rt.UserID == userID {
			clone := *rt
			return &clone, nil
		}
	}
	return nil, ErrNoRating
}

func (r *fakeRatingRepo) Update(rt *Rating) error {
	k := r.keyOf(rt)
	if _, ok := r.ratings[k]; !ok {
		return errors.New("record not found")
	}
	clone := *rt
	r.ratings[k] = &clone
	return nil
}

func (r *fakeRatingRepo) Delete(id uuid.UUID) error {
	for k, rt := range r.ratings {
		if rt.ID == id {
			delete(r.ratings, k)
			return nil
		}
	}
	return ErrNoRating
}

func (r *fakeRatingRepo) DeleteByScript(scriptID uuid.UUID) error {
	for k := range r.ratings {
		if k.scriptID == scriptID {
			delete(r.ratings, k)
		}
	}
	return nil
}

func (r *fakeRatingRepo) ListByScript(scriptID uuid.UUID) ([]*ScriptRating, error) {
	var out []*ScriptRating
	for _, rt := range r.ratings {
		if rt.ScriptID == scriptID {
			out = append(out, &ScriptRating{ID: rt.ID, Rating: rt.Rating, Rater: RaterInfo{ID: rt.UserID}, CreatedAt: rt.CreatedAt})
		}
	}
	return out, nil
}

func (r *fakeRatingRepo) AggregateForScript(scriptID uuid.UUID) (float64, int, error) {
	sum, count := 0, 0
	for _, rt := range r.ratings {
		if rt.ScriptID == scriptID {
			sum += rt.Rating
			count++
		}
	}
	if count == 0 {
		return 0, 0, nil
	}
	return float64(sum) / float64(count), count, nil
}

func (r *fakeRatingRepo) ReconcileAggregates() (int64, error) {
	if r.reconcileErr != nil {
		return 0, r.reconcileErr
	}
	if r.scripts == nil {
		return r.reconciled, nil
	}

	var changed int64
	for id := range r.scripts.scripts {
		sum, count := 0, 0
		for _, rt := range r.ratings {
			if rt.ScriptID == id {
				sum += rt.Rating
				count++
			}
		}
		agg := Aggregate{}
		if count > 0 {
			agg = Aggregate{
				AverageRating: math.Round(float64(sum)/float64(count)*100) / 100,
				RatingCount:   count,
			}
		}
		if r.scripts.aggregates[id] != agg {
			r.scripts.aggregates[id] = agg
			changed++
		}
	}
	return changed, nil
}

// fakeScriptService records aggregate writes per script
type fakeScriptService struct {
	scripts    map[uuid.UUID]*Script
	aggregates map[uuid.UUID]Aggregate

	// Called before an aggregate write lands; tests use it to hold one
	// recompute open while another submission runs to completion
	beforeUpdate func(id uuid.UUID, average float64, count int)
}

func newFakeScriptService(scriptIDs ...uuid.UUID) *fakeScriptService {
	s := &fakeScriptService{
		scripts:    make(map[uuid.UUID]*Script),
		aggregates: make(map[uuid.UUID]Aggregate),
	}
	for _, id := range scriptIDs {
		s.scripts[id] = &Script{ID: id, UserID: uuid.New(), Title: "test script"}
	}
	return s
}

func (s *fakeScriptService) GetScript(id uuid.UUID) (*Script, error) {
	if sc, ok := s.scripts[id]; ok {
		return sc, nil
	}
	return nil, errors.New("script not found")
}

func (s *fakeScriptService) UpdateAggregate(id uuid.UUID, average float64, count int) error {
	if s.beforeUpdate != nil {
		s.beforeUpdate(id, average, count)
	}
	s.aggregates[id] = Aggregate{AverageRating: average, RatingCount: count}
	return nil
}

func newTestService(t *testing.T, repo Repository, scripts ScriptService) Service {
	t.Helper()
	log, err := logger.NewLogger(&config.LoggingConfig{
		Level:       "info",
		Format:      "console",
		ServiceName: "test-rating",
	})
	require.NoError(t, err)
	return NewService(repo, scripts, log)
}

func TestService_AddOrUpdate(t *testing.T) {
	t.Run("rejects out-of-range values", func(t *testing.T) {
		scriptID := uuid.New()
		svc := newTestService(t, newFakeRatingRepo(), newFakeScriptService(scriptID))

		for _, value := range []int{0, 11, -1} {
			_, _, err := svc.AddOrUpdate(scriptID, value, UserSubject(uuid.New()))
			assert.ErrorIs(t, err, ErrInvalidRating)
		}
	})

	t.Run("rejects unknown script", func(t *testing.T) {
		svc := newTestService(t, newFakeRatingRepo(), newFakeScriptService())

		_, _, err := svc.AddOrUpdate(uuid.New(), 5, UserSubject(uuid.New()))
		assert.ErrorIs(t, err, ErrScriptNotFound)
	})

	t.Run("first rating creates and sets the aggregate", func(t *testing.T) {
		scriptID := uuid.New()
		userID := uuid.New()
		repo := newFakeRatingRepo()
		scripts := newFakeScriptService(scriptID)
		svc := newTestService(t, repo, scripts)

		r, agg, err := svc.AddOrUpdate(scriptID, 7, UserSubject(userID))

		require.NoError(t, err)
		assert.Equal(t, 7, r.Rating)
		require.NotNil(t, r.UserID)
		assert.Equal(t, userID, *r.UserID)
		assert.Equal(t, Aggregate{AverageRating: 7, RatingCount: 1}, agg)
		assert.Equal(t, agg, scripts.aggregates[scriptID])
	})

	t.Run("same subject updates in place", func(t *testing.T) {
		scriptID := uuid.New()
		userID := uuid.New()
		repo := newFakeRatingRepo()
		scripts := newFakeScriptService(scriptID)
		svc := newTestService(t, repo, scripts)

		first, _, err := svc.AddOrUpdate(scriptID, 3, UserSubject(userID))
		require.NoError(t, err)

		second, agg, err := svc.AddOrUpdate(scriptID, 9, UserSubject(userID))
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 9, second.Rating)
		assert.Equal(t, Aggregate{AverageRating: 9, RatingCount: 1}, agg)
		assert.Len(t, repo.ratings, 1)
	})

	t.Run("distinct subjects accumulate with mean rounded to two decimals", func(t *testing.T) {
		scriptID := uuid.New()
		scripts := newFakeScriptService(scriptID)
		svc := newTestService(t, newFakeRatingRepo(), scripts)

		_, _, err := svc.AddOrUpdate(scriptID, 3, UserSubject(uuid.New()))
		require.NoError(t, err)
		_, _, err = svc.AddOrUpdate(scriptID, 3, GuestSubject("guest-1", "203.0.113.9"))
		require.NoError(t, err)
		_, agg, err := svc.AddOrUpdate(scriptID, 4, AnonymousSubject("198.51.100.7"))
		require.NoError(t, err)

		assert.Equal(t, Aggregate{AverageRating: 3.33, RatingCount: 3}, agg)
		assert.Equal(t, agg, scripts.aggregates[scriptID])
	})

	t.Run("guest resubmission refreshes the recorded IP", func(t *testing.T) {
		scriptID := uuid.New()
		repo := newFakeRatingRepo()
		svc := newTestService(t, repo, newFakeScriptService(scriptID))

		_, _, err := svc.AddOrUpdate(scriptID, 5, GuestSubject("guest-1", "203.0.113.9"))
		require.NoError(t, err)

		r, _, err := svc.AddOrUpdate(scriptID, 6, GuestSubject("guest-1", "198.51.100.7"))
		require.NoError(t, err)

		assert.Equal(t, "198.51.100.7", r.IPAddress)
		assert.Len(t, repo.ratings, 1)
	})

	t.Run("lookup failure is propagated, not treated as absence", func(t *testing.T) {
		scriptID := uuid.New()
		repo := newFakeRatingRepo()
		repo.findErr = errors.New("database error: connection refused")
		scripts := newFakeScriptService(scriptID)
		svc := newTestService(t, repo, scripts)

		_, _, err := svc.AddOrUpdate(scriptID, 5, UserSubject(uuid.New()))

		assert.ErrorIs(t, err, repo.findErr)
		assert.Empty(t, repo.ratings)
		assert.Empty(t, scripts.aggregates)
	})

	t.Run("interleaved submissions leave a stale cache the reconciler heals", func(t *testing.T) {
		scriptID := uuid.New()
		repo := newFakeRatingRepo()
		scripts := newFakeScriptService(scriptID)
		repo.scripts = scripts
		svc := newTestService(t, repo, scripts)

		entered := make(chan struct{})
		release := make(chan struct{})
		var gate atomic.Bool
		scripts.beforeUpdate = func(uuid.UUID, float64, int) {
			if gate.CompareAndSwap(false, true) {
				close(entered)
				<-release
			}
		}

		done := make(chan error, 1)
		go func() {
			_, _, err := svc.AddOrUpdate(scriptID, 6, GuestSubject("guest-a", "203.0.113.9"))
			done <- err
		}()

		// The first submission has read a single-row aggregate and is held
		// just before its cache write; the second runs start to finish
		// inside that window.
		<-entered
		_, agg, err := svc.AddOrUpdate(scriptID, 10, GuestSubject("guest-b", "198.51.100.7"))
		require.NoError(t, err)
		assert.Equal(t, Aggregate{AverageRating: 8, RatingCount: 2}, agg)

		close(release)
		require.NoError(t, <-done)

		// Last recompute wins: both rows are stored but the cache holds the
		// first submission's stale read.
		assert.Len(t, repo.ratings, 2)
		assert.Equal(t, Aggregate{AverageRating: 6, RatingCount: 1}, scripts.aggregates[scriptID])

		// The periodic recompute brings the cache back in line.
		require.NoError(t, svc.ReconcileAggregates())
		assert.Equal(t, Aggregate{AverageRating: 8, RatingCount: 2}, scripts.aggregates[scriptID])
	})

	t.Run("cache holds exactly what the aggregate read returned", func(t *testing.T) {
		// The recompute path writes the full-set aggregation verbatim, it
		// never increments the cached pair. Concurrent submissions may
		// overwrite each other's write; the reconcile worker heals that.
		scriptID := uuid.New()
		repo := newFakeRatingRepo()
		scripts := newFakeScriptService(scriptID)
		svc := newTestService(t, repo, scripts)

		for i, value := range []int{2, 4, 6, 8, 10} {
			_, _, err := svc.AddOrUpdate(scriptID, value, GuestSubject("guest-"+uuid.New().String(), "203.0.113.9"))
			require.NoError(t, err)

			average, count, err := repo.AggregateForScript(scriptID)
			require.NoError(t, err)
			assert.Equal(t, i+1, count)
			assert.InDelta(t, average, scripts.aggregates[scriptID].AverageRating, 0.01)
			assert.Equal(t, count, scripts.aggregates[scriptID].RatingCount)
		}
	})
}

func TestService_GetUserRating(t *testing.T) {
	scriptID := uuid.New()
	userID := uuid.New()
	repo := newFakeRatingRepo()
	svc := newTestService(t, repo, newFakeScriptService(scriptID))

	t.Run("absent rating is nil, not an error", func(t *testing.T) {
		r, err := svc.GetUserRating(scriptID, userID)
		assert.NoError(t, err)
		assert.Nil(t, r)
	})

	t.Run("returns the caller's rating", func(t *testing.T) {
		_, _, err := svc.AddOrUpdate(scriptID, 8, UserSubject(userID))
		require.NoError(t, err)

		r, err := svc.GetUserRating(scriptID, userID)
		require.NoError(t, err)
		require.NotNil(t, r)
		assert.Equal(t, 8, r.Rating)
	})

	t.Run("repository failure is an error, not an empty result", func(t *testing.T) {
		failing := newFakeRatingRepo()
		failing.findErr = errors.New("database error: connection refused")
		svc := newTestService(t, failing, newFakeScriptService(scriptID))

		r, err := svc.GetUserRating(scriptID, userID)

		require.ErrorIs(t, err, failing.findErr)
		assert.Nil(t, r)
	})
}

func TestService_DeleteRating(t *testing.T) {
	t.Run("missing or foreign rating", func(t *testing.T) {
		scriptID := uuid.New()
		owner := uuid.New()
		svc := newTestService(t, newFakeRatingRepo(), newFakeScriptService(scriptID))

		r, _, err := svc.AddOrUpdate(scriptID, 5, UserSubject(owner))
		require.NoError(t, err)

		_, err = svc.DeleteRating(uuid.New(), owner)
		assert.ErrorIs(t, err, ErrRatingNotFound)

		_, err = svc.DeleteRating(r.ID, uuid.New())
		assert.ErrorIs(t, err, ErrRatingNotFound)
	})

	t.Run("lookup failure is not masked as not found", func(t *testing.T) {
		repo := newFakeRatingRepo()
		repo.findErr = errors.New("database error: connection refused")
		svc := newTestService(t, repo, newFakeScriptService())

		_, err := svc.DeleteRating(uuid.New(), uuid.New())

		require.ErrorIs(t, err, repo.findErr)
		assert.NotErrorIs(t, err, ErrRatingNotFound)
	})

	t.Run("deleting the last rating resets the aggregate to zero", func(t *testing.T) {
		scriptID := uuid.New()
		owner := uuid.New()
		scripts := newFakeScriptService(scriptID)
		svc := newTestService(t, newFakeRatingRepo(), scripts)

		r, _, err := svc.AddOrUpdate(scriptID, 9, UserSubject(owner))
		require.NoError(t, err)

		agg, err := svc.DeleteRating(r.ID, owner)

		require.NoError(t, err)
		assert.Equal(t, Aggregate{AverageRating: 0, RatingCount: 0}, agg)
		assert.Equal(t, agg, scripts.aggregates[scriptID])
	})

	t.Run("remaining ratings keep contributing", func(t *testing.T) {
		scriptID := uuid.New()
		owner := uuid.New()
		scripts := newFakeScriptService(scriptID)
		svc := newTestService(t, newFakeRatingRepo(), scripts)

		r, _, err := svc.AddOrUpdate(scriptID, 2, UserSubject(owner))
		require.NoError(t, err)
		_, _, err = svc.AddOrUpdate(scriptID, 10, UserSubject(uuid.New()))
		require.NoError(t, err)

		agg, err := svc.DeleteRating(r.ID, owner)

		require.NoError(t, err)
		assert.Equal(t, Aggregate{AverageRating: 10, RatingCount: 1}, agg)
	})
}

func TestService_ReconcileAggregates(t *testing.T) {
	t.Run("passes through repository success", func(t *testing.T) {
		repo := newFakeRatingRepo()
		repo.reconciled = 3
		svc := newTestService(t, repo, newFakeScriptService())

		assert.NoError(t, svc.ReconcileAggregates())
	})

	t.Run("propagates repository failure", func(t *testing.T) {
		repo := newFakeRatingRepo()
		repo.reconcileErr = errors.New("connection refused")
		svc := newTestService(t, repo, newFakeScriptService())

		assert.Error(t, svc.ReconcileAggregates())
	})
}
