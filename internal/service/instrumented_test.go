package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"persondb/internal/domain"
	"persondb/internal/repository/memory"
	"persondb/internal/stats"
)

func TestWithStats_RecordsEveryOperation(t *testing.T) {
	ctx := context.Background()
	logger, _ := logtest.NewNullLogger()
	collector := stats.NewCollector()

	svc := WithStats(NewPersonService(memory.NewPersonRepository(), logger), collector)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.(*instrumentedService).now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}

	id, err := svc.Create(ctx, domain.Person{Login: "abc123", Password: "Abcdefg123"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, domain.Person{Login: "abc123", Password: "Abcdefg123"})
	require.Error(t, err)
	_, err = svc.Read(ctx, id)
	require.NoError(t, err)
	_, err = svc.Read(ctx, uuid.New())
	require.Error(t, err)
	require.NoError(t, svc.Update(ctx, id, domain.PersonPatch{}))
	_, err = svc.Authenticate(ctx, "abc123", "Abcdefg123")
	require.NoError(t, err)
	_, err = svc.List(ctx)
	require.NoError(t, err)
	_, err = svc.Import(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, id))
	_, err = svc.Count(ctx)
	require.NoError(t, err)

	byOp := make(map[string]stats.OperationStats)
	for _, s := range collector.Snapshot() {
		byOp[s.Operation] = s
	}

	require.Len(t, byOp, 7)
	assert.Equal(t, int64(2), byOp["create"].Count)
	assert.Equal(t, int64(1), byOp["create"].Errors)
	assert.Equal(t, int64(2), byOp["read"].Count)
	assert.Equal(t, int64(1), byOp["read"].Errors)
	assert.Equal(t, int64(1), byOp["update"].Count)
	assert.Equal(t, int64(1), byOp["delete"].Count)
	assert.Equal(t, int64(1), byOp["authenticate"].Count)
	assert.Equal(t, int64(1), byOp["list"].Count)
	assert.Equal(t, int64(1), byOp["import"].Count)
	assert.Equal(t, time.Millisecond, byOp["read"].Average)
	_, counted := byOp["count"]
	assert.False(t, counted)
}
