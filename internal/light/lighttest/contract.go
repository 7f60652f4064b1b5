// Package lighttest holds the behaviour every light.Repository implementation must share.
package lighttest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/sitelight/internal/light"
)

// Factory returns a fresh, empty repository.
type Factory func(t *testing.T) light.Repository

// RunContract runs the shared repository behaviour against repositories from newRepo.
// Both sites must resolve in a fresh repository and start without any light state.
func RunContract(t *testing.T, newRepo Factory, siteA, siteB int) {
	t.Helper()

	t.Run("GetOrCreate/defaults_are_idempotent", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		first, err := repo.GetOrCreate(ctx, siteA)
		require.NoError(t, err)
		assert.Equal(t, siteA, first.SiteID)
		assert.Equal(t, light.StateOff, first.State)
		assert.Equal(t, 0, first.Brightness)
		assert.Nil(t, first.ScheduleOn)
		assert.Nil(t, first.ScheduleOff)

		second, err := repo.GetOrCreate(ctx, siteA)
		require.NoError(t, err)
		assert.Equal(t, first.State, second.State)
		assert.Equal(t, first.Brightness, second.Brightness)
		assert.Equal(t, first.ScheduleOn, second.ScheduleOn)
		assert.Equal(t, first.ScheduleOff, second.ScheduleOff)
	})

	t.Run("Update/merges_omitted_schedule_fields", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		before, err := repo.GetOrCreate(ctx, siteA)
		require.NoError(t, err)

		updated, err := repo.Update(ctx, siteA, light.StateOn, 40, light.StringPtr("18:00"), light.StringPtr("06:00"))
		require.NoError(t, err)
		assert.Equal(t, light.StateOn, updated.State)
		assert.Equal(t, 40, updated.Brightness)
		require.NotNil(t, updated.ScheduleOn)
		assert.Equal(t, "18:00", *updated.ScheduleOn)
		assert.False(t, updated.LastUpdated.Before(before.LastUpdated))

		updated, err = repo.Update(ctx, siteA, light.StateOff, 0, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, light.StateOff, updated.State)
		require.NotNil(t, updated.ScheduleOn)
		require.NotNil(t, updated.ScheduleOff)
		assert.Equal(t, "18:00", *updated.ScheduleOn)
		assert.Equal(t, "06:00", *updated.ScheduleOff)

		stored, err := repo.GetOrCreate(ctx, siteA)
		require.NoError(t, err)
		assert.Equal(t, light.StateOff, stored.State)
		assert.Equal(t, 0, stored.Brightness)
		require.NotNil(t, stored.ScheduleOn)
		assert.Equal(t, "18:00", *stored.ScheduleOn)
		assert.Equal(t, "06:00", *stored.ScheduleOff)

		other, err := repo.GetOrCreate(ctx, siteB)
		require.NoError(t, err)
		assert.Equal(t, light.StateOff, other.State)
		assert.Nil(t, other.ScheduleOn)
	})

	t.Run("Update/rejects_invalid_values", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Update(ctx, siteA, light.StateOn, 101, nil, nil)
		assert.ErrorIs(t, err, light.ErrValidation)

		_, err = repo.Update(ctx, siteA, light.State("dim"), 50, nil, nil)
		assert.ErrorIs(t, err, light.ErrValidation)

		_, err = repo.Update(ctx, siteA, light.StateOn, 50, light.StringPtr("7pm"), nil)
		assert.ErrorIs(t, err, light.ErrInvalidTime)

		status, err := repo.GetOrCreate(ctx, siteA)
		require.NoError(t, err)
		assert.Equal(t, light.StateOff, status.State)
	})

	t.Run("History/newest_first_with_site_filter", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		repo.AddHistory(ctx, siteA, "a1")
		repo.AddHistory(ctx, siteB, "b1")
		repo.AddHistory(ctx, siteA, "a2")

		all, err := repo.GetHistory(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"a2", "b1", "a1"}, actions(all))
		assertNewestFirst(t, all)

		onlyA, err := repo.GetHistory(ctx, &siteA)
		require.NoError(t, err)
		assert.Equal(t, []string{"a2", "a1"}, actions(onlyA))
		for _, e := range onlyA {
			assert.Equal(t, siteA, e.SiteID)
		}

		onlyB, err := repo.GetHistory(ctx, &siteB)
		require.NoError(t, err)
		assert.Equal(t, []string{"b1"}, actions(onlyB))
	})

	t.Run("History/capped", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		total := light.HistoryLimit + 5
		for i := 0; i < total; i++ {
			repo.AddHistory(ctx, siteA, fmt.Sprintf("action-%d", i))
		}

		entries, err := repo.GetHistory(ctx, &siteA)
		require.NoError(t, err)
		require.Len(t, entries, light.HistoryLimit)
		assert.Equal(t, fmt.Sprintf("action-%d", total-1), entries[0].Action)
		assert.Equal(t, "action-5", entries[len(entries)-1].Action)
		assertNewestFirst(t, entries)
	})

	t.Run("History/empty", func(t *testing.T) {
		repo := newRepo(t)

		entries, err := repo.GetHistory(context.Background(), &siteB)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func actions(entries []light.HistoryEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Action
	}
	return out
}

func assertNewestFirst(t *testing.T, entries []light.HistoryEntry) {
	t.Helper()
	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].Timestamp.After(entries[i-1].Timestamp),
			"entry %d (%s) is newer than entry %d (%s)", i, entries[i].Timestamp, i-1, entries[i-1].Timestamp)
	}
}
