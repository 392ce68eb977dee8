package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chiwei-platform/config-service/internal/domain"
	"github.com/juju/clock/testclock"
	"github.com/juju/collections/set"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func seedRelease(t *testing.T, db *gorm.DB, r *domain.Release) {
	t.Helper()
	m, err := releaseToModel(r)
	require.NoError(t, err)
	require.NoError(t, db.Create(m).Error)
	r.ID = m.ID
}

func seedMessages(t *testing.T, db *gorm.DB, messages ...string) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(messages))
	for _, msg := range messages {
		m := &ReleaseMessageModel{Message: msg}
		require.NoError(t, db.Create(m).Error)
		ids = append(ids, m.ID)
	}
	return ids
}

func TestReleaseRepo(t *testing.T) {
	db := openTestDB(t)
	repo := NewReleaseRepo(db)
	ctx := context.Background()

	first := &domain.Release{ReleaseKey: "k1", AppID: "X", ClusterName: "default", NamespaceName: "application",
		Configurations: domain.ConfigurationsOf("z", "1", "a", "2")}
	seedRelease(t, db, first)
	seedRelease(t, db, &domain.Release{ReleaseKey: "k2", AppID: "X", ClusterName: "default", NamespaceName: "application",
		Configurations: domain.ConfigurationsOf("z", "3")})
	abandoned := &domain.Release{ReleaseKey: "k3", AppID: "X", ClusterName: "default", NamespaceName: "application", IsAbandoned: true}
	seedRelease(t, db, abandoned)

	got, err := repo.FindLatestActive(ctx, "X", "default", "APPLICATION")
	require.NoError(t, err)
	assert.Equal(t, "k2", got.ReleaseKey)

	loaded, err := repo.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a"}, loaded.Configurations.Keys(), "key order survives the round trip")

	byID, err := repo.FindByID(ctx, abandoned.ID)
	require.NoError(t, err)
	assert.True(t, byID.IsAbandoned)

	_, err = repo.FindLatestActive(ctx, "X", "other", "application")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.FindByID(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrReleaseNotFound)
}

func TestReleaseMessageRepo(t *testing.T) {
	db := openTestDB(t)
	repo := NewReleaseMessageRepo(db)
	ctx := context.Background()

	latest, err := repo.FindLatestID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), latest)

	ids := seedMessages(t, db,
		"X+default+application",
		"X+default+App.Config",
		"X+default+application",
		"Y+default+application",
		"X+default+app.config",
	)

	latest, err = repo.FindLatestID(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids[4], latest)

	rows, err := repo.FindSince(ctx, ids[0], 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ids[1], rows[0].ID)
	assert.Equal(t, ids[2], rows[1].ID)

	rows, err = repo.FindByIDs(ctx, []int64{ids[3], ids[0], 12345})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ids[0], rows[0].ID)

	rows, err = repo.FindLatestByMessages(ctx, []string{"x+default+APPLICATION", "X+default+app.config", "Z+default+none"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ids[2], rows[0].ID)
	assert.Equal(t, ids[4], rows[1].ID)

	rows, err = repo.FindLatestByMessages(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestGrayReleaseRuleRepo(t *testing.T) {
	db := openTestDB(t)
	repo := NewGrayReleaseRuleRepo(db)
	ctx := context.Background()

	for _, r := range []*domain.GrayReleaseRule{
		{AppID: "X", ClusterName: "default", NamespaceName: "application", BranchName: "b1", ReleaseID: 10,
			BranchStatus: domain.BranchStatusMerged},
		{AppID: "X", ClusterName: "default", NamespaceName: "application", BranchName: "b2", ReleaseID: 11,
			BranchStatus: domain.BranchStatusActive,
			RuleItems: []domain.GrayReleaseRuleItem{{
				ClientAppID:  "client",
				ClientIPs:    set.NewStrings("10.0.0.2", "10.0.0.1"),
				ClientLabels: set.NewStrings("canary"),
			}}},
		{AppID: "X", ClusterName: "default", NamespaceName: "db", BranchName: "b3", ReleaseID: 12,
			BranchStatus: domain.BranchStatusActive},
	} {
		m, err := grayRuleToModel(r)
		require.NoError(t, err)
		require.NoError(t, db.Create(m).Error)
	}

	rules, err := repo.FindActive(ctx, "X", "default", "Application")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "b2", rules[0].BranchName)
	require.Len(t, rules[0].RuleItems, 1)
	assert.True(t, rules[0].Match("client", "10.0.0.1", ""))
	assert.True(t, rules[0].Match("client", "", "canary"))
	assert.False(t, rules[0].Match("client", "10.0.0.3", ""))

	all, err := repo.FindAllActive(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGrayReleaseRuleRepo_CorruptRules(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&GrayReleaseRuleModel{
		AppID: "X", ClusterName: "default", NamespaceName: "application",
		ReleaseID: 1, BranchStatus: int(domain.BranchStatusActive), Rules: "{not json",
	}).Error)

	_, err := NewGrayReleaseRuleRepo(db).FindAllActive(context.Background())
	assert.Error(t, err)
}

func TestAppNamespaceRepo(t *testing.T) {
	db := openTestDB(t)
	repo := NewAppNamespaceRepo(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&AppNamespaceModel{AppID: "X", Name: "application"}).Error)
	require.NoError(t, db.Create(&AppNamespaceModel{AppID: "shared", Name: "Middleware.DB", IsPublic: true}).Error)

	ns, err := repo.FindByAppAndName(ctx, "X", "APPLICATION")
	require.NoError(t, err)
	assert.Equal(t, "application", ns.Name)

	_, err = repo.FindByAppAndName(ctx, "X", "middleware.db")
	assert.ErrorIs(t, err, domain.ErrAppNamespaceNotFound)

	public, err := repo.FindPublicByName(ctx, "middleware.db")
	require.NoError(t, err)
	assert.Equal(t, &domain.AppNamespace{AppID: "shared", Name: "Middleware.DB", IsPublic: true}, public)

	_, err = repo.FindPublicByName(ctx, "application")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// --- cached repos ---

type countingReleaseRepo struct {
	loads   atomic.Int32
	release *domain.Release
	err     error
}

func (c *countingReleaseRepo) FindLatestActive(_ context.Context, _, _, _ string) (*domain.Release, error) {
	c.loads.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	if c.release == nil {
		return nil, domain.ErrReleaseNotFound
	}
	return c.release, nil
}

func (c *countingReleaseRepo) FindByID(_ context.Context, _ int64) (*domain.Release, error) {
	return c.release, nil
}

func TestCachedReleaseRepo(t *testing.T) {
	inner := &countingReleaseRepo{release: &domain.Release{ID: 1, ReleaseKey: "k1"}}
	repo, err := NewCachedReleaseRepo(inner, 16)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := repo.FindLatestActive(ctx, "X", "default", "Application")
		require.NoError(t, err)
		assert.Equal(t, "k1", got.ReleaseKey)
	}
	assert.Equal(t, int32(1), inner.loads.Load())

	// namespace casing shares an entry, appId and cluster casing do not
	_, err = repo.FindLatestActive(ctx, "X", "default", "APPLICATION")
	require.NoError(t, err)
	assert.Equal(t, int32(1), inner.loads.Load())
	_, err = repo.FindLatestActive(ctx, "x", "DEFAULT", "application")
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.loads.Load())

	inner.release = &domain.Release{ID: 2, ReleaseKey: "k2"}
	repo.HandleMessage(ctx, &domain.ReleaseMessage{ID: 7, Message: "X+default+application"})
	got, err := repo.FindLatestActive(ctx, "X", "default", "application")
	require.NoError(t, err)
	assert.Equal(t, "k2", got.ReleaseKey)
	assert.Equal(t, int32(3), inner.loads.Load())
}

func TestCachedReleaseRepo_AppIDCaseDoesNotShadowRealApp(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	seedRelease(t, db, &domain.Release{ReleaseKey: "k1", AppID: "X", ClusterName: "default", NamespaceName: "application",
		Configurations: domain.ConfigurationsOf("a", "1")})

	repo, err := NewCachedReleaseRepo(NewReleaseRepo(db), 16)
	require.NoError(t, err)

	_, err = repo.FindLatestActive(ctx, "x", "default", "application")
	assert.ErrorIs(t, err, domain.ErrReleaseNotFound)

	got, err := repo.FindLatestActive(ctx, "X", "default", "Application")
	require.NoError(t, err)
	assert.Equal(t, "k1", got.ReleaseKey)
}

func TestCachedReleaseRepo_InvalidateReloads(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	seedRelease(t, db, &domain.Release{ReleaseKey: "k1", AppID: "X", ClusterName: "default", NamespaceName: "app.config"})

	repo, err := NewCachedReleaseRepo(NewReleaseRepo(db), 16)
	require.NoError(t, err)
	got, err := repo.FindLatestActive(ctx, "X", "default", "app.config")
	require.NoError(t, err)
	require.Equal(t, "k1", got.ReleaseKey)

	seedRelease(t, db, &domain.Release{ReleaseKey: "k2", AppID: "X", ClusterName: "default", NamespaceName: "app.config"})
	got, err = repo.FindLatestActive(ctx, "X", "default", "app.config")
	require.NoError(t, err)
	assert.Equal(t, "k1", got.ReleaseKey, "served from cache until invalidated")

	repo.Invalidate("X+default+App.Config")
	got, err = repo.FindLatestActive(ctx, "X", "default", "app.config")
	require.NoError(t, err)
	assert.Equal(t, "k2", got.ReleaseKey)

	repo.Invalidate("not-a-watch-key")
	assert.Equal(t, 1, repo.Len())
}

type ctxReleaseRepo struct {
	started chan struct{}
	proceed chan struct{}
}

func (c *ctxReleaseRepo) FindLatestActive(ctx context.Context, _, _, _ string) (*domain.Release, error) {
	close(c.started)
	<-c.proceed
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &domain.Release{ID: 1, ReleaseKey: "k1"}, nil
}

func (c *ctxReleaseRepo) FindByID(context.Context, int64) (*domain.Release, error) {
	return nil, domain.ErrReleaseNotFound
}

func TestCachedReleaseRepo_LoadSurvivesCallerCancel(t *testing.T) {
	inner := &ctxReleaseRepo{started: make(chan struct{}), proceed: make(chan struct{})}
	repo, err := NewCachedReleaseRepo(inner, 16)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := repo.FindLatestActive(ctx, "X", "default", "application")
		done <- err
	}()
	<-inner.started
	cancel()
	close(inner.proceed)
	require.NoError(t, <-done)

	got, err := repo.FindLatestActive(context.Background(), "X", "default", "application")
	require.NoError(t, err)
	assert.Equal(t, "k1", got.ReleaseKey)
}

func TestCachedReleaseRepo_NegativeAndErrors(t *testing.T) {
	inner := &countingReleaseRepo{}
	repo, err := NewCachedReleaseRepo(inner, 0)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = repo.FindLatestActive(ctx, "X", "custom", "application")
	assert.ErrorIs(t, err, domain.ErrReleaseNotFound)
	_, err = repo.FindLatestActive(ctx, "X", "custom", "application")
	assert.ErrorIs(t, err, domain.ErrReleaseNotFound)
	assert.Equal(t, int32(1), inner.loads.Load(), "not-found is cached")

	inner.err = errors.New("db down")
	repo.HandleMessage(ctx, &domain.ReleaseMessage{ID: 1, Message: "X+custom+application"})
	_, err = repo.FindLatestActive(ctx, "X", "custom", "application")
	assert.EqualError(t, err, "db down")
	assert.Equal(t, 0, repo.Len(), "store errors are not cached")
}

type countingAppNamespaceRepo struct {
	loads atomic.Int32
}

func (c *countingAppNamespaceRepo) FindByAppAndName(_ context.Context, appID, name string) (*domain.AppNamespace, error) {
	c.loads.Add(1)
	if strings.EqualFold(name, "application") {
		return &domain.AppNamespace{AppID: appID, Name: name}, nil
	}
	return nil, domain.ErrAppNamespaceNotFound
}

func (c *countingAppNamespaceRepo) FindPublicByName(_ context.Context, _ string) (*domain.AppNamespace, error) {
	c.loads.Add(1)
	return nil, domain.ErrAppNamespaceNotFound
}

func TestCachedAppNamespaceRepo_TTL(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	inner := &countingAppNamespaceRepo{}
	repo, err := NewCachedAppNamespaceRepo(inner, 8, time.Minute, clk)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ns, err := repo.FindByAppAndName(ctx, "X", "application")
		require.NoError(t, err)
		assert.Equal(t, "application", ns.Name)
		_, err = repo.FindPublicByName(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	}
	assert.Equal(t, int32(2), inner.loads.Load())

	clk.Advance(2 * time.Minute)
	_, err = repo.FindByAppAndName(ctx, "X", "application")
	require.NoError(t, err)
	assert.Equal(t, int32(3), inner.loads.Load())

	// appId casing is part of the key
	_, err = repo.FindByAppAndName(ctx, "x", "APPLICATION")
	require.NoError(t, err)
	assert.Equal(t, int32(4), inner.loads.Load())
	_, err = repo.FindByAppAndName(ctx, "X", "Application")
	require.NoError(t, err)
	assert.Equal(t, int32(4), inner.loads.Load())
}
