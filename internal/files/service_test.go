package files

import (
	"context"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"multichat/pkg/models"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.StoredFile{}))

	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	return NewService(db, store, 1<<20), db
}

func TestUpload_StoresBlobAndExtractsText(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	file, err := svc.Upload(ctx, 1, "notes.txt", "text/plain", strings.NewReader("release checklist"))
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", file.Name)
	assert.Equal(t, int64(17), file.SizeBytes)
	assert.Equal(t, "release checklist", file.ExtractedText)

	rc, meta, err := svc.Open(ctx, 1, file.ID)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, file.ID, meta.ID)
}

func TestUpload_BinaryFileHasNoText(t *testing.T) {
	svc, _ := newTestService(t)

	file, err := svc.Upload(context.Background(), 1, "photo.png", "image/png", strings.NewReader("\x89PNG..."))
	require.NoError(t, err)
	assert.Empty(t, file.ExtractedText)
}

func TestUpload_RejectsOversize(t *testing.T) {
	svc, _ := newTestService(t)
	svc.maxBytes = 8

	_, err := svc.Upload(context.Background(), 1, "big.txt", "text/plain", strings.NewReader("definitely more than eight bytes"))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestGet_EnforcesOwnership(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	file, err := svc.Upload(ctx, 1, "mine.txt", "text/plain", strings.NewReader("secret"))
	require.NoError(t, err)

	_, err = svc.Get(ctx, 2, file.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBuildContext_DelimitsEachFile(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Upload(ctx, 1, "a.txt", "text/plain", strings.NewReader("alpha contents"))
	require.NoError(t, err)
	b, err := svc.Upload(ctx, 1, "b.txt", "text/plain", strings.NewReader("beta contents"))
	require.NoError(t, err)

	out, err := svc.BuildContext(ctx, 1, []uint{a.ID, b.ID})
	require.NoError(t, err)
	assert.Contains(t, out, "[File: a.txt]\nalpha contents")
	assert.Contains(t, out, "[File: b.txt]\nbeta contents")
}

func TestBuildContext_SkipsForeignAndEmptyFiles(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	mine, err := svc.Upload(ctx, 1, "mine.txt", "text/plain", strings.NewReader("visible"))
	require.NoError(t, err)
	theirs, err := svc.Upload(ctx, 2, "theirs.txt", "text/plain", strings.NewReader("hidden"))
	require.NoError(t, err)
	binary, err := svc.Upload(ctx, 1, "img.png", "image/png", strings.NewReader("\x89PNG"))
	require.NoError(t, err)

	out, err := svc.BuildContext(ctx, 1, []uint{mine.ID, theirs.ID, binary.ID})
	require.NoError(t, err)
	assert.Contains(t, out, "visible")
	assert.NotContains(t, out, "hidden")
	assert.NotContains(t, out, "img.png")
}

func TestBuildContext_EmptyInput(t *testing.T) {
	svc, _ := newTestService(t)

	out, err := svc.BuildContext(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDelete_RemovesMetadataAndBlob(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	file, err := svc.Upload(ctx, 1, "gone.txt", "text/plain", strings.NewReader("bye"))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, 1, file.ID))

	_, err = svc.Get(ctx, 1, file.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
