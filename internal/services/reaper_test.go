package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caption-service/internal/logger"
	"caption-service/internal/storage"
)

func TestReaperRemovesOnlyOldOrphans(t *testing.T) {
	f := newFixture(t, threeObjectResponses())
	ctx := context.Background()
	uploaded := uploadThree(t, f, "adult-1", RoleAdult)

	orphanImage := storage.NewImageKey()
	orphanAudio := storage.NewAudioKey("mp3")
	require.NoError(t, f.store.Put(ctx, orphanImage, []byte("jpeg"), "image/jpeg"))
	require.NoError(t, f.store.Put(ctx, orphanAudio, []byte("mp3"), "audio/mpeg"))

	reaper := NewReaper(f.repo, f.store, 24*time.Hour, logger.Nop())

	removed, err := reaper.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed, "fresh orphans are within the grace period")

	reaper.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	removed, err = reaper.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = f.store.Get(ctx, orphanImage)
	assert.ErrorIs(t, err, storage.ErrAssetNotFound)

	images, audio := f.assetCount(t)
	assert.Equal(t, 1, images)
	assert.Equal(t, 4, audio)

	// Soft-deleted records still own their assets.
	require.NoError(t, f.svc.SoftDelete(ctx, uploaded.RecordID, "adult-1"))
	removed, err = reaper.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
