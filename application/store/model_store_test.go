package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowsketch-backend/domain/changes"
	"flowsketch-backend/domain/core/aggregates"
	"flowsketch-backend/domain/core/entities"
	"flowsketch-backend/domain/core/valueobjects"
	"flowsketch-backend/infrastructure/persistence/memory"
)

func newStore(t *testing.T, opts ...Option) *ModelStore {
	t.Helper()
	return NewModelStore(memory.NewModelRepository(), opts...)
}

func createEntityMut(t *testing.T, id string) changes.Mutation {
	t.Helper()
	e, err := entities.NewEntity(id, "Entity "+id, valueobjects.EntityTypeObject)
	require.NoError(t, err)
	return changes.CreateEntity{Entity: e}
}

func TestUpdate_CommitAdvancesVersion(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	err := s.Update(ctx, "p1", func(tx *Tx) error {
		assert.Equal(t, int64(0), tx.Version())
		result, err := tx.Commit([]changes.Mutation{createEntityMut(t, "e1")}, Attribution{
			Origin: changes.OriginDiagram, UserID: "u1",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), result.Version)
		assert.Equal(t, int64(0), result.Prior.Version)
		return nil
	})
	require.NoError(t, err)

	snap, err := s.Snapshot(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Version)
	assert.Contains(t, snap.Entities, "e1")
}

func TestUpdate_FailedCommitLeavesModelUntouched(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	err := s.Update(ctx, "p1", func(tx *Tx) error {
		_, err := tx.Commit([]changes.Mutation{createEntityMut(t, "e1")}, Attribution{Origin: changes.OriginDiagram, UserID: "u1"})
		require.NoError(t, err)

		_, err = tx.Commit([]changes.Mutation{changes.DeleteEntity{ID: "missing"}}, Attribution{Origin: changes.OriginDiagram, UserID: "u1"})
		require.Error(t, err)

		assert.Equal(t, int64(1), tx.Version(), "failed batch leaves the version alone")
		return nil
	})
	require.NoError(t, err)
}

func TestWindowSince_ReturnsCommitsAfterVersion(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	err := s.Update(ctx, "p1", func(tx *Tx) error {
		for _, id := range []string{"e1", "e2", "e3"} {
			_, err := tx.Commit([]changes.Mutation{createEntityMut(t, id)}, Attribution{Origin: changes.OriginDiagram, UserID: "u1"})
			require.NoError(t, err)
		}

		records, ok := tx.WindowSince(1)
		assert.True(t, ok)
		require.Len(t, records, 2)
		assert.Equal(t, int64(2), records[0].Version)
		assert.Equal(t, int64(3), records[1].Version)

		records, ok = tx.WindowSince(3)
		assert.True(t, ok)
		assert.Empty(t, records)
		return nil
	})
	require.NoError(t, err)
}

func TestWindowSince_TrimmedWindowReportsIncomplete(t *testing.T) {
	s := newStore(t, WithWindowSize(2))
	ctx := context.Background()

	err := s.Update(ctx, "p1", func(tx *Tx) error {
		for _, id := range []string{"e1", "e2", "e3", "e4"} {
			_, err := tx.Commit([]changes.Mutation{createEntityMut(t, id)}, Attribution{Origin: changes.OriginDiagram, UserID: "u1"})
			require.NoError(t, err)
		}

		// Commits 1 and 2 fell out of the window
		_, ok := tx.WindowSince(1)
		assert.False(t, ok)

		records, ok := tx.WindowSince(2)
		assert.True(t, ok)
		assert.Len(t, records, 2)
		return nil
	})
	require.NoError(t, err)
}

func TestUpdate_SerializesPerProject(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = s.Update(ctx, "p1", func(tx *Tx) error {
				id := string(rune('a' + n))
				_, err := tx.Commit([]changes.Mutation{createEntityMut(t, id)}, Attribution{Origin: changes.OriginDiagram, UserID: "u1"})
				return err
			})
		}(i)
	}
	wg.Wait()

	snap, err := s.Snapshot(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(writers), snap.Version, "every commit got its own version slot")
	assert.Len(t, snap.Entities, writers)
}

func TestUpdate_IndependentProjects(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for _, pid := range []string{"p1", "p2"} {
		err := s.Update(ctx, pid, func(tx *Tx) error {
			_, err := tx.Commit([]changes.Mutation{createEntityMut(t, "e1")}, Attribution{Origin: changes.OriginSpec, UserID: "u1"})
			return err
		})
		require.NoError(t, err)
	}

	s1, err := s.Snapshot(ctx, "p1")
	require.NoError(t, err)
	s2, err := s.Snapshot(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), s1.Version)
	assert.Equal(t, int64(1), s2.Version)
}

func TestReset_DiscardsModelAndWindow(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	err := s.Update(ctx, "p1", func(tx *Tx) error {
		_, err := tx.Commit([]changes.Mutation{createEntityMut(t, "e1")}, Attribution{Origin: changes.OriginDiagram, UserID: "u1"})
		return err
	})
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx, "p1"))

	err = s.Update(ctx, "p1", func(tx *Tx) error {
		assert.Equal(t, int64(0), tx.Version())
		records, ok := tx.WindowSince(0)
		assert.True(t, ok)
		assert.Empty(t, records)
		return nil
	})
	require.NoError(t, err)
}

func TestLimits_ReadPerCommit(t *testing.T) {
	max := 1
	s := newStore(t, WithLimits(func() aggregates.Limits {
		return aggregates.Limits{MaxEntities: max}
	}))
	ctx := context.Background()

	err := s.Update(ctx, "p1", func(tx *Tx) error {
		_, err := tx.Commit([]changes.Mutation{createEntityMut(t, "e1")}, Attribution{Origin: changes.OriginDiagram, UserID: "u1"})
		require.NoError(t, err)
		_, err = tx.Commit([]changes.Mutation{createEntityMut(t, "e2")}, Attribution{Origin: changes.OriginDiagram, UserID: "u1"})
		require.Error(t, err)

		max = 10
		_, err = tx.Commit([]changes.Mutation{createEntityMut(t, "e2")}, Attribution{Origin: changes.OriginDiagram, UserID: "u1"})
		return err
	})
	require.NoError(t, err)
}

func TestCommit_AttributionRecordedInWindow(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	err := s.Update(ctx, "p1", func(tx *Tx) error {
		_, err := tx.Commit([]changes.Mutation{createEntityMut(t, "e1")}, Attribution{
			Origin: changes.OriginSpec, UserID: "alice", Timestamp: ts,
		})
		require.NoError(t, err)

		records, ok := tx.WindowSince(0)
		require.True(t, ok)
		require.Len(t, records, 1)
		assert.Equal(t, changes.OriginSpec, records[0].Origin)
		assert.Equal(t, "alice", records[0].UserID)
		assert.Equal(t, ts, records[0].Timestamp)
		return nil
	})
	require.NoError(t, err)
}
