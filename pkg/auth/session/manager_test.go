package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mu   sync.Mutex
	data map[string]string
	sets map[string]map[string]struct{}
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string), sets: make(map[string]map[string]struct{})}
}

func (m *mockStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *mockStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return val, nil
}

func (m *mockStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
		delete(m.sets, key)
	}
	return nil
}

func (m *mockStore) AddToSet(ctx context.Context, key string, ttl time.Duration, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[key]
	if !ok {
		set = map[string]struct{}{}
		m.sets[key] = set
	}
	for _, member := range members {
		set[member] = struct{}{}
	}
	return nil
}

func (m *mockStore) RemoveFromSet(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, member := range members {
		delete(m.sets[key], member)
	}
	return nil
}

func (m *mockStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []string{}
	for member := range m.sets[key] {
		out = append(out, member)
	}
	return out, nil
}

func (m *mockStore) AccessSessionKey(accessID string) string {
	return "sess:" + accessID
}

func (m *mockStore) UserSessionsKey(userID string) string {
	return "user:" + userID
}

func newTestManager(store *mockStore) *Manager {
	return &Manager{store: store, keyer: store, ttl: time.Hour}
}

func TestManagerGenerateAndRotate(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	manager := newTestManager(store)
	userID := uuid.New()

	accessID := NewAccessID()
	token, err := manager.Generate(ctx, userID, accessID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	ok, err := manager.HasSession(ctx, accessID)
	require.NoError(t, err)
	assert.True(t, ok)

	newAccessID, newToken, err := manager.Rotate(ctx, userID, accessID, token)
	require.NoError(t, err)
	assert.NotEqual(t, accessID, newAccessID)
	assert.NotEqual(t, token, newToken)

	ok, err = manager.HasSession(ctx, accessID)
	require.NoError(t, err)
	assert.False(t, ok, "old session should be gone after rotation")

	members, _ := store.SetMembers(ctx, store.UserSessionsKey(userID.String()))
	assert.Equal(t, []string{newAccessID}, members)
}

func TestManagerRotateRejectsWrongToken(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager(newMockStore())
	userID := uuid.New()

	accessID := NewAccessID()
	_, err := manager.Generate(ctx, userID, accessID)
	require.NoError(t, err)

	_, _, err = manager.Rotate(ctx, userID, accessID, "not-the-token")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, _, err = manager.Rotate(ctx, userID, NewAccessID(), "anything")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestManagerRevokeAll(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager(newMockStore())
	userID := uuid.New()

	first, second := NewAccessID(), NewAccessID()
	_, err := manager.Generate(ctx, userID, first)
	require.NoError(t, err)
	_, err = manager.Generate(ctx, userID, second)
	require.NoError(t, err)

	require.NoError(t, manager.RevokeAll(ctx, userID))

	for _, id := range []string{first, second} {
		ok, err := manager.HasSession(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestManagerHasSessionRequiresID(t *testing.T) {
	_, err := newTestManager(newMockStore()).HasSession(context.Background(), " ")
	assert.Error(t, err)
}
