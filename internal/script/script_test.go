package script

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight/scripts-backend/config"
	"github.com/finsight/scripts-backend/internal/imagestore"
	"github.com/finsight/scripts-backend/pkg/logger"
)

func TestScript(t *testing.T) {
	t.Run("Create new script", func(t *testing.T) {
		ownerID := uuid.New()
		sc := Script{
			ID:          uuid.New(),
			UserID:      ownerID,
			Title:       "Dividend strategies for beginners",
			Description: "A gentle walk through payout ratios",
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}

		assert.NotEqual(t, uuid.Nil, sc.ID)
		assert.Equal(t, ownerID, sc.UserID)
		assert.Zero(t, sc.AverageRating)
		assert.Zero(t, sc.RatingCount)
	})

	t.Run("Ownership check", func(t *testing.T) {
		ownerID := uuid.New()
		sc := Script{UserID: ownerID}

		assert.True(t, sc.IsOwnedBy(ownerID))
		assert.False(t, sc.IsOwnedBy(uuid.New()))
	})

	t.Run("ToResponse", func(t *testing.T) {
		sc := Script{
			ID:            uuid.New(),
			UserID:        uuid.New(),
			Title:         "Title",
			Description:   "Description",
			ImageURL:      "http://localhost:9000/script-media/a.png",
			ImageID:       "a.png",
			AverageRating: 7.25,
			RatingCount:   4,
		}

		response := sc.ToResponse()

		assert.Equal(t, sc.ID, response.ID)
		assert.Equal(t, sc.Title, response.Title)
		assert.Equal(t, sc.ImageURL, response.ImageURL)
		assert.Equal(t, 7.25, response.AverageRating)
		assert.Equal(t, 4, response.RatingCount)

		// ScriptResponse has no field for the storage object id
	})

	t.Run("Table name", func(t *testing.T) {
		assert.Equal(t, "scripts", Script{}.TableName())
	})
}

// fakeScriptRepo is an in-memory Repository for service tests
type fakeScriptRepo struct {
	scripts   map[uuid.UUID]*Script
	createErr error
}

func newFakeScriptRepo() *fakeScriptRepo {
	return &fakeScriptRepo{scripts: make(map[uuid.UUID]*Script)}
}

func (r *fakeScriptRepo) Create(sc *Script) error {
	if r.createErr != nil {
		return r.createErr
	}
	clone := *sc
	r.scripts[sc.ID] = &clone
	return nil
}

func (r *fakeScriptRepo) FindByID(id uuid.UUID) (*Script, error) {
	if sc, ok := r.scripts[id]; ok {
		clone := *sc
		return &clone, nil
	}
	return nil, errors.New("record not found")
}

func (r *fakeScriptRepo) FindByIDAndOwner(id, ownerID uuid.UUID) (*Script, error) {
	if sc, ok := r.scripts[id]; ok && sc.UserID == ownerID {
		clone := *sc
		return &clone, nil
	}
	return nil, errors.New("record not found")
}

func (r *fakeScriptRepo) FindByOwner(ownerID uuid.UUID) ([]*Script, error) {
	var out []*Script
	for _, sc := range r.scripts {
		if sc.UserID == ownerID {
			clone := *sc
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeScriptRepo) Update(sc *Script) error {
	if _, ok := r.scripts[sc.ID]; !ok {
		return errors.New("record not found")
	}
	clone := *sc
	r.scripts[sc.ID] = &clone
	return nil
}

func (r *fakeScriptRepo) UpdateAggregate(id uuid.UUID, average float64, count int) error {
	sc, ok := r.scripts[id]
	if !ok {
		return errors.New("record not found")
	}
	sc.AverageRating = average
	sc.RatingCount = count
	return nil
}

func (r *fakeScriptRepo) Delete(id uuid.UUID) error {
	delete(r.scripts, id)
	return nil
}

func (r *fakeScriptRepo) ListWithAggregates() ([]*Listing, error) {
	var out []*Listing
	for _, sc := range r.scripts {
		out = append(out, &Listing{ID: sc.ID, Title: sc.Title, Owner: OwnerInfo{ID: sc.UserID}})
	}
	return out, nil
}

func (r *fakeScriptRepo) FindDetailByID(id uuid.UUID) (*Detail, error) {
	sc, ok := r.scripts[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	return &Detail{Listing: Listing{ID: sc.ID, Title: sc.Title, Owner: OwnerInfo{ID: sc.UserID}}}, nil
}

// fakeRatingCleaner records cascade deletions
type fakeRatingCleaner struct {
	deletedScripts []uuid.UUID
	err            error
}

func (c *fakeRatingCleaner) DeleteByScript(scriptID uuid.UUID) error {
	if c.err != nil {
		return c.err
	}
	c.deletedScripts = append(c.deletedScripts, scriptID)
	return nil
}

// fakeImageStore records uploads and deletions
type fakeImageStore struct {
	uploads   int
	deleted   []string
	uploadErr error
}

func (s *fakeImageStore) Upload(_ context.Context, up imagestore.Upload) (imagestore.Image, error) {
	if s.uploadErr != nil {
		return imagestore.Image{}, s.uploadErr
	}
	s.uploads++
	id := "img-" + up.Name
	return imagestore.Image{URL: "http://localhost:9000/script-media/" + id, PublicID: id}, nil
}

func (s *fakeImageStore) Delete(_ context.Context, publicID string) error {
	s.deleted = append(s.deleted, publicID)
	return nil
}

func newTestService(t *testing.T, repo Repository, ratings RatingCleaner, images imagestore.Store) Service {
	t.Helper()
	log, err := logger.NewLogger(&config.LoggingConfig{
		Level:       "info",
		Format:      "console",
		ServiceName: "test-script",
	})
	require.NoError(t, err)
	return NewService(repo, ratings, images, log)
}

func upload(name string) *imagestore.Upload {
	return &imagestore.Upload{Reader: strings.NewReader("bytes"), Size: 5, Name: name, ContentType: "image/png"}
}

func TestService_CreateScript(t *testing.T) {
	t.Run("requires a title", func(t *testing.T) {
		svc := newTestService(t, newFakeScriptRepo(), &fakeRatingCleaner{}, &fakeImageStore{})

		_, err := svc.CreateScript(context.Background(), uuid.New(), "", "desc", nil)
		assert.ErrorIs(t, err, ErrTitleRequired)
	})

	t.Run("creates without an image", func(t *testing.T) {
		repo := newFakeScriptRepo()
		svc := newTestService(t, repo, &fakeRatingCleaner{}, &fakeImageStore{})
		ownerID := uuid.New()

		sc, err := svc.CreateScript(context.Background(), ownerID, "Title", "Description", nil)

		require.NoError(t, err)
		assert.Equal(t, ownerID, sc.UserID)
		assert.Empty(t, sc.ImageURL)
		assert.Len(t, repo.scripts, 1)
	})

	t.Run("creates with an uploaded image", func(t *testing.T) {
		images := &fakeImageStore{}
		svc := newTestService(t, newFakeScriptRepo(), &fakeRatingCleaner{}, images)

		sc, err := svc.CreateScript(context.Background(), uuid.New(), "Title", "", upload("cover.png"))

		require.NoError(t, err)
		assert.Equal(t, 1, images.uploads)
		assert.Contains(t, sc.ImageURL, "img-cover.png")
		assert.Equal(t, "img-cover.png", sc.ImageID)
	})

	t.Run("upload failure surfaces as image error", func(t *testing.T) {
		images := &fakeImageStore{uploadErr: errors.New("bucket unavailable")}
		svc := newTestService(t, newFakeScriptRepo(), &fakeRatingCleaner{}, images)

		_, err := svc.CreateScript(context.Background(), uuid.New(), "Title", "", upload("cover.png"))
		assert.ErrorIs(t, err, ErrImageUpload)
	})
}

func TestService_UpdateScript(t *testing.T) {
	t.Run("missing and foreign scripts are indistinguishable", func(t *testing.T) {
		repo := newFakeScriptRepo()
		svc := newTestService(t, repo, &fakeRatingCleaner{}, &fakeImageStore{})
		ownerID := uuid.New()

		sc, err := svc.CreateScript(context.Background(), ownerID, "Title", "", nil)
		require.NoError(t, err)

		_, missingErr := svc.UpdateScript(context.Background(), uuid.New(), ownerID, "New", "", nil)
		_, foreignErr := svc.UpdateScript(context.Background(), sc.ID, uuid.New(), "New", "", nil)

		assert.ErrorIs(t, missingErr, ErrScriptNotFound)
		assert.ErrorIs(t, foreignErr, ErrScriptNotFound)
	})

	t.Run("omitted fields keep previous values", func(t *testing.T) {
		repo := newFakeScriptRepo()
		svc := newTestService(t, repo, &fakeRatingCleaner{}, &fakeImageStore{})
		ownerID := uuid.New()

		sc, err := svc.CreateScript(context.Background(), ownerID, "Original title", "Original description", nil)
		require.NoError(t, err)

		updated, err := svc.UpdateScript(context.Background(), sc.ID, ownerID, "", "New description", nil)

		require.NoError(t, err)
		assert.Equal(t, "Original title", updated.Title)
		assert.Equal(t, "New description", updated.Description)
	})

	t.Run("replacing the image deletes the old asset after the new upload", func(t *testing.T) {
		images := &fakeImageStore{}
		svc := newTestService(t, newFakeScriptRepo(), &fakeRatingCleaner{}, images)
		ownerID := uuid.New()

		sc, err := svc.CreateScript(context.Background(), ownerID, "Title", "", upload("old.png"))
		require.NoError(t, err)

		updated, err := svc.UpdateScript(context.Background(), sc.ID, ownerID, "", "", upload("new.png"))

		require.NoError(t, err)
		assert.Equal(t, "img-new.png", updated.ImageID)
		assert.Equal(t, []string{"img-old.png"}, images.deleted)
	})
}

func TestService_DeleteScript(t *testing.T) {
	t.Run("cascade removes ratings and the image", func(t *testing.T) {
		repo := newFakeScriptRepo()
		ratings := &fakeRatingCleaner{}
		images := &fakeImageStore{}
		svc := newTestService(t, repo, ratings, images)
		ownerID := uuid.New()

		sc, err := svc.CreateScript(context.Background(), ownerID, "Title", "", upload("cover.png"))
		require.NoError(t, err)

		err = svc.DeleteScript(context.Background(), sc.ID, ownerID)

		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{sc.ID}, ratings.deletedScripts)
		assert.Equal(t, []string{"img-cover.png"}, images.deleted)
		assert.Empty(t, repo.scripts)
	})

	t.Run("non-owner cannot delete", func(t *testing.T) {
		repo := newFakeScriptRepo()
		ratings := &fakeRatingCleaner{}
		svc := newTestService(t, repo, ratings, &fakeImageStore{})

		sc, err := svc.CreateScript(context.Background(), uuid.New(), "Title", "", nil)
		require.NoError(t, err)

		err = svc.DeleteScript(context.Background(), sc.ID, uuid.New())

		assert.ErrorIs(t, err, ErrScriptNotFound)
		assert.Len(t, repo.scripts, 1)
		assert.Empty(t, ratings.deletedScripts)
	})

	t.Run("rating cleanup failure aborts the deletion", func(t *testing.T) {
		repo := newFakeScriptRepo()
		ratings := &fakeRatingCleaner{err: errors.New("connection refused")}
		svc := newTestService(t, repo, ratings, &fakeImageStore{})
		ownerID := uuid.New()

		sc, err := svc.CreateScript(context.Background(), ownerID, "Title", "", nil)
		require.NoError(t, err)

		err = svc.DeleteScript(context.Background(), sc.ID, ownerID)

		assert.Error(t, err)
		assert.Len(t, repo.scripts, 1)
	})
}

func TestService_Aggregates(t *testing.T) {
	repo := newFakeScriptRepo()
	svc := newTestService(t, repo, &fakeRatingCleaner{}, &fakeImageStore{})
	ownerID := uuid.New()

	sc, err := svc.CreateScript(context.Background(), ownerID, "Title", "", nil)
	require.NoError(t, err)

	require.NoError(t, svc.UpdateAggregate(sc.ID, 7.5, 2))

	got, err := svc.GetScript(sc.ID)
	require.NoError(t, err)
	assert.Equal(t, 7.5, got.AverageRating)
	assert.Equal(t, 2, got.RatingCount)

	t.Run("unknown script", func(t *testing.T) {
		assert.Error(t, svc.UpdateAggregate(uuid.New(), 1, 1))

		_, err := svc.GetScript(uuid.New())
		assert.Error(t, err)
	})
}

func TestService_Reads(t *testing.T) {
	repo := newFakeScriptRepo()
	svc := newTestService(t, repo, &fakeRatingCleaner{}, &fakeImageStore{})
	ownerID := uuid.New()

	first, err := svc.CreateScript(context.Background(), ownerID, "First", "", nil)
	require.NoError(t, err)
	_, err = svc.CreateScript(context.Background(), uuid.New(), "Second", "", nil)
	require.NoError(t, err)

	t.Run("list includes every script", func(t *testing.T) {
		listings, err := svc.ListScripts()
		require.NoError(t, err)
		assert.Len(t, listings, 2)
	})

	t.Run("my scripts filters by owner", func(t *testing.T) {
		mine, err := svc.GetMyScripts(ownerID)
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, first.ID, mine[0].ID)
	})

	t.Run("detail lookup", func(t *testing.T) {
		detail, err := svc.GetScriptByID(first.ID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, detail.ID)

		_, err = svc.GetScriptByID(uuid.New())
		assert.ErrorIs(t, err, ErrScriptNotFound)
	})
}
