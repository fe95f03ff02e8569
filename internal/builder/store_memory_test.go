package builder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutGet(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	session := &BuilderSession{
		ID:      "s-1",
		OwnerID: "owner-1",
		Step:    StepSkills,
		Data: CollectedData{
			"name":           "Jane",
			"bulletAttempts": 2,
			"skills":         []interface{}{"Go", "SQL"},
		},
		Progress:  75,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, store.Put(ctx, session))

	got, err := store.Get(ctx, "s-1")
	require.NoError(t, err)

	assert.Equal(t, "owner-1", got.OwnerID)
	assert.Equal(t, StepSkills, got.Step)
	assert.Equal(t, 75, got.Progress)
	assert.Equal(t, "Jane", got.Data.String("name"))
	// JSON往返后数值是float64，读取辅助方法应屏蔽该差异
	assert.Equal(t, 2, got.Data.Int("bulletAttempts"))
	assert.Equal(t, []string{"Go", "SQL"}, got.Data.StringList("skills"))
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemorySessionStore()

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &BuilderSession{ID: "s-1"}))
	require.Equal(t, 1, store.Len())

	require.NoError(t, store.Delete(ctx, "s-1"))
	assert.Equal(t, 0, store.Len())

	_, err := store.Get(ctx, "s-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.NoError(t, store.Delete(ctx, "s-1"), "删除不存在的会话应是幂等的")
}

func TestMemoryStorePutOverwrites(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &BuilderSession{ID: "s-1", Step: StepName}))
	require.NoError(t, store.Put(ctx, &BuilderSession{ID: "s-1", Step: StepEmail}))

	got, err := store.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, StepEmail, got.Step, "同ID写入应全量覆盖")
	assert.Equal(t, 1, store.Len())
}
