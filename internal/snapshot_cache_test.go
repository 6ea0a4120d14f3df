package internal

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/survey"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.data[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

// stubVersionStore serves versions from memory and counts reads.
type stubVersionStore struct {
	versions map[int]*survey.FormVersion
	reads    int
}

func (s *stubVersionStore) GetVersions(context.Context, uuid.UUID) ([]survey.FormVersion, error) {
	out := make([]survey.FormVersion, 0, len(s.versions))
	for n := len(s.versions); n >= 1; n-- {
		out = append(out, *s.versions[n])
	}
	return out, nil
}

func (s *stubVersionStore) GetVersion(_ context.Context, formID uuid.UUID, version int) (*survey.FormVersion, error) {
	s.reads++
	v, ok := s.versions[version]
	if !ok {
		return nil, survey.NewNotFoundError(survey.ErrCodeVersionNotFound, fmt.Sprintf("version %d not found", version))
	}
	return v, nil
}

func (s *stubVersionStore) AppendVersion(_ context.Context, req *survey.AppendVersionRequest) (*survey.FormVersion, error) {
	v := &survey.FormVersion{FormID: req.FormID, Version: len(s.versions) + 1, Fields: req.Snapshot.Fields}
	s.versions[v.Version] = v
	return v, nil
}

func TestRedisSnapshotCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := newFakeRedis()
	cache := newRedisSnapshotCache(kv, time.Hour, "")
	formID := uuid.MustParse("0190b2a4-0000-7000-8000-000000000001")
	v := sampleVersion(formID, 2, "a", "b")

	_, ok, err := cache.Get(ctx, formID, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, &v))
	key := "survey:version:0190b2a4-0000-7000-8000-000000000001:2"
	assert.Contains(t, kv.data, key)
	assert.Equal(t, time.Hour, kv.ttls[key])

	got, ok, err := cache.Get(ctx, formID, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, &v, got)
}

func TestCachedVersionStore_ReadsThrough(t *testing.T) {
	ctx := context.Background()
	formID := uuid.New()
	v1 := sampleVersion(formID, 1, "a")
	inner := &stubVersionStore{versions: map[int]*survey.FormVersion{1: &v1}}
	store := NewCachedVersionStore(inner, newRedisSnapshotCache(newFakeRedis(), time.Hour, "t"))

	for i := 0; i < 3; i++ {
		got, err := store.GetVersion(ctx, formID, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, survey.FieldIDs(got.Fields))
	}
	assert.Equal(t, 1, inner.reads)

	_, err := store.GetVersion(ctx, formID, 7)
	assert.True(t, survey.IsNotFound(err))
}

func TestCachedVersionStore_CacheFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	formID := uuid.New()
	v1 := sampleVersion(formID, 1, "a")
	inner := &stubVersionStore{versions: map[int]*survey.FormVersion{1: &v1}}
	kv := newFakeRedis()
	kv.getErr = errors.New("connection refused")
	store := NewCachedVersionStore(inner, newRedisSnapshotCache(kv, time.Hour, "t"))

	got, err := store.GetVersion(ctx, formID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, 1, inner.reads)
}

func TestCachedVersionStore_AppendPrimesCache(t *testing.T) {
	ctx := context.Background()
	formID := uuid.New()
	inner := &stubVersionStore{versions: map[int]*survey.FormVersion{}}
	store := NewCachedVersionStore(inner, newRedisSnapshotCache(newFakeRedis(), time.Hour, "t"))

	v, err := store.AppendVersion(ctx, &survey.AppendVersionRequest{FormID: formID, Snapshot: survey.WorkingCopy{Fields: []survey.Field{{ID: "a"}}}})
	require.NoError(t, err)

	_, err = store.GetVersion(ctx, formID, v.Version)
	require.NoError(t, err)
	assert.Zero(t, inner.reads)
}
