package gallery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cafe/pkg/failure"
	"cafe/pkg/state"
)

type fakeRemote struct {
	images []Image
	err    error
	calls  int
	// after runs once the remote answered.
	after func()
}

func (f *fakeRemote) ListGalleryImages(ctx context.Context) ([]Image, error) {
	f.calls++
	return append([]Image(nil), f.images...), f.err
}

func (f *fakeRemote) UploadGalleryImage(ctx context.Context, u Upload) (Image, error) {
	f.calls++
	if f.after != nil {
		defer f.after()
	}
	if f.err != nil {
		return Image{}, f.err
	}
	return Image{ID: "new", Title: u.Title, Image: u.Image}, nil
}

func (f *fakeRemote) DeleteGalleryImage(ctx context.Context, id string) error {
	f.calls++
	if f.after != nil {
		defer f.after()
	}
	return f.err
}

func TestUploadPrependsAndDeleteFilters(t *testing.T) {
	remote := &fakeRemote{images: []Image{{ID: "1", Image: "a.jpg"}, {ID: "2", Image: "b.jpg"}}}
	s := NewStore(remote, nil)
	defer s.Shutdown()
	ctx := context.Background()

	_, err := s.FetchAll(ctx)
	require.NoError(t, err)
	_, err = s.Upload(ctx, Upload{Title: "Terrace", Image: "data:image/png;base64,AAAA"})
	require.NoError(t, err)

	st, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, st.Images, 3)
	assert.Equal(t, "new", st.Images[0].ID)

	require.NoError(t, s.Delete(ctx, "1"))
	st, err = s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "2"}, []string{st.Images[0].ID, st.Images[1].ID})
}

func TestUploadRequiresImage(t *testing.T) {
	remote := &fakeRemote{}
	s := NewStore(remote, nil)
	defer s.Shutdown()

	_, err := s.Upload(context.Background(), Upload{Title: "empty", Image: "  "})
	assert.ErrorIs(t, err, ErrMissingImage)
	assert.Zero(t, remote.calls)
}

func TestFailuresKeepImages(t *testing.T) {
	remote := &fakeRemote{images: []Image{{ID: "1"}}}
	s := NewStore(remote, nil)
	defer s.Shutdown()
	ctx := context.Background()

	_, err := s.FetchAll(ctx)
	require.NoError(t, err)

	remote.err = failure.Transport(errors.New("down"))
	_, err = s.FetchAll(ctx)
	require.Error(t, err)
	require.Error(t, s.Delete(ctx, "1"))

	st, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, st.Images, 1)
	assert.Equal(t, "Failed to delete image", st.Error)
}

func TestOutcomesRecordedAfterCallerCancellation(t *testing.T) {
	remote := &fakeRemote{images: []Image{{ID: "1", Image: "a.jpg"}}}
	s := NewStore(remote, nil)
	defer s.Shutdown()
	_, err := s.FetchAll(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	remote.after = cancel
	require.NoError(t, s.Delete(ctx, "1"))

	ctx, cancel = context.WithCancel(context.Background())
	remote.after = cancel
	remote.err = failure.Transport(errors.New("timeout"))
	_, err = s.Upload(ctx, Upload{Title: "Terrace", Image: "b.jpg"})
	require.Error(t, err)

	st, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, st.Images)
	assert.Equal(t, state.PhaseSucceeded, st.Ops.Phase(OpDelete))
	assert.Equal(t, state.PhaseFailed, st.Ops.Phase(OpUpload))
	assert.NotEmpty(t, st.Error)
}
