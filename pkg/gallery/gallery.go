// Package gallery caches the café photo gallery.
package gallery

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"cafe/pkg/failure"
	"cafe/pkg/orders"
	"cafe/pkg/state"
)

// Operation names recorded in State.Ops.
const (
	OpFetch  = "fetch"
	OpUpload = "upload"
	OpDelete = "delete"
)

var (
	// ErrMissingImage is returned when an upload carries no image reference or data.
	ErrMissingImage = failure.Validation("image is required")
	// ErrMissingID is returned when delete is called without an id.
	ErrMissingID = failure.Validation("image id is required")
)

var validate = validator.New()

// Image is one gallery entry. Image holds a URL or a data URI.
type Image struct {
	ID        string           `json:"id"`
	Title     string           `json:"title,omitempty"`
	Image     string           `json:"image"`
	CreatedAt orders.Timestamp `json:"created_at"`
}

// Upload is the body of an upload request.
type Upload struct {
	Title string `json:"title,omitempty"`
	Image string `json:"image" validate:"required"`
}

// Remote is the gallery service.
type Remote interface {
	ListGalleryImages(ctx context.Context) ([]Image, error)
	UploadGalleryImage(ctx context.Context, u Upload) (Image, error)
	DeleteGalleryImage(ctx context.Context, id string) error
}

// State is newest-first after uploads; fetched lists keep server order.
type State struct {
	Images []Image   `json:"images"`
	Ops    state.Ops `json:"ops"`
	Error  string    `json:"error,omitempty"`
}

func cloneState(s State) State {
	s.Images = append([]Image(nil), s.Images...)
	s.Ops = s.Ops.Clone()
	return s
}

// Store mirrors the remote gallery.
type Store struct {
	box    *state.Box[State]
	remote Remote
	logger *slog.Logger
}

func NewStore(remote Remote, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		box:    state.New(State{Images: []Image{}, Ops: state.Ops{}}, cloneState),
		remote: remote,
		logger: logger.With(slog.String("component", "gallery")),
	}
}

func (s *Store) Snapshot(ctx context.Context) (State, error) {
	return s.box.Snapshot(ctx)
}

func (s *Store) Subscribe(ctx context.Context) (<-chan State, func(), error) {
	return s.box.Subscribe(ctx)
}

// FetchAll replaces the cached images.
func (s *Store) FetchAll(ctx context.Context) ([]Image, error) {
	if err := s.begin(ctx, OpFetch); err != nil {
		return nil, err
	}
	images, err := s.remote.ListGalleryImages(ctx)
	if err != nil {
		return nil, s.fail(ctx, OpFetch, err, "Failed to fetch gallery images")
	}
	if images == nil {
		images = []Image{}
	}
	err = s.commit(ctx, func(st *State) error {
		st.Images = append([]Image(nil), images...)
		st.Ops[OpFetch] = state.PhaseSucceeded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return images, nil
}

// Upload sends the image and prepends the stored entry.
func (s *Store) Upload(ctx context.Context, u Upload) (Image, error) {
	u.Title = strings.TrimSpace(u.Title)
	u.Image = strings.TrimSpace(u.Image)
	if err := validate.Struct(u); err != nil {
		return Image{}, s.fail(ctx, OpUpload, ErrMissingImage, "Failed to upload image")
	}
	if err := s.begin(ctx, OpUpload); err != nil {
		return Image{}, err
	}
	created, err := s.remote.UploadGalleryImage(ctx, u)
	if err != nil {
		return Image{}, s.fail(ctx, OpUpload, err, "Failed to upload image")
	}
	err = s.commit(ctx, func(st *State) error {
		st.Images = append([]Image{created}, st.Images...)
		st.Ops[OpUpload] = state.PhaseSucceeded
		return nil
	})
	if err != nil {
		return Image{}, err
	}
	s.logger.Info("gallery image uploaded", slog.String("image_id", created.ID))
	return created, nil
}

// Delete removes the image after the remote confirmed it.
func (s *Store) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return s.fail(ctx, OpDelete, ErrMissingID, "Failed to delete image")
	}
	if err := s.begin(ctx, OpDelete); err != nil {
		return err
	}
	if err := s.remote.DeleteGalleryImage(ctx, id); err != nil {
		return s.fail(ctx, OpDelete, err, "Failed to delete image")
	}
	err := s.commit(ctx, func(st *State) error {
		kept := make([]Image, 0, len(st.Images))
		for _, img := range st.Images {
			if img.ID != id {
				kept = append(kept, img)
			}
		}
		st.Images = kept
		st.Ops[OpDelete] = state.PhaseSucceeded
		return nil
	})
	return err
}

func (s *Store) ClearError(ctx context.Context) error {
	_, err := s.box.Update(ctx, func(st *State) error {
		st.Error = ""
		return nil
	})
	return err
}

func (s *Store) Shutdown() {
	s.box.Close()
}

// commit applies a result the remote service already confirmed. Cancellation of ctx is ignored so
// only Shutdown can drop it.
func (s *Store) commit(ctx context.Context, fn func(*State) error) error {
	_, err := s.box.Update(context.WithoutCancel(ctx), fn)
	return err
}

func (s *Store) begin(ctx context.Context, op string) error {
	_, err := s.box.Update(ctx, func(st *State) error {
		st.Ops[op] = state.PhasePending
		st.Error = ""
		return nil
	})
	return err
}

func (s *Store) fail(ctx context.Context, op string, cause error, fallback string) error {
	s.logger.Warn("gallery operation failed", slog.String("op", op), slog.String("error", cause.Error()))
	reason := failure.Reason(cause, fallback)
	err := s.commit(ctx, func(st *State) error {
		st.Ops[op] = state.PhaseFailed
		st.Error = reason
		return nil
	})
	if err != nil {
		return err
	}
	return cause
}
