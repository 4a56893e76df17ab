package photo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/FACorreiaa/go-user-accounts/config"
	"github.com/FACorreiaa/go-user-accounts/internal/api/auth"
	"github.com/FACorreiaa/go-user-accounts/internal/types"
)

const (
	contentTypeJPEG = "image/jpeg"
	// maxPixels bounds decoding of images whose header claims huge dimensions.
	maxPixels = 40_000_000
)

var _ PhotoService = (*PhotoServiceImpl)(nil)

// PhotoRepo is the slice of the user repository the photo service needs.
type PhotoRepo interface {
	GetUserData(ctx context.Context, userID uuid.UUID) (*types.UserData, error)
	SetProfilePhotoKey(ctx context.Context, userID uuid.UUID, key string) (string, error)
}

type UserFinder interface {
	GetUserByEmail(ctx context.Context, email string) (*types.User, error)
}

// Photo is an object ready to be streamed. Callers close Body.
type Photo struct {
	Body        io.ReadCloser
	ContentType string
}

type PhotoService interface {
	Upload(ctx context.Context, user *types.User, src io.Reader) (*types.UserData, error)
	Delete(ctx context.Context, user *types.User) error
	Get(ctx context.Context, user *types.User) (*Photo, error)
	GetByEmail(ctx context.Context, email string) (*Photo, error)
}

type PhotoServiceImpl struct {
	logger *slog.Logger
	repo   PhotoRepo
	users  UserFinder
	store  PhotoStore
	cfg    config.PhotosConfig
}

func NewPhotoService(repo PhotoRepo, users UserFinder, store PhotoStore, cfg config.PhotosConfig, logger *slog.Logger) *PhotoServiceImpl {
	return &PhotoServiceImpl{
		logger: logger,
		repo:   repo,
		users:  users,
		store:  store,
		cfg:    cfg,
	}
}

// Upload resizes src to fit the configured square, stores it as JPEG and
// points the user's data at the new object.
func (s *PhotoServiceImpl) Upload(ctx context.Context, user *types.User, src io.Reader) (*types.UserData, error) {
	ctx, span := otel.Tracer("PhotoService").Start(ctx, "Upload")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", user.ID.String()))
	l := s.logger.With(slog.String("method", "Upload"), slog.String("userID", user.ID.String()))

	raw, err := io.ReadAll(io.LimitReader(src, s.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("error reading upload: %w", err)
	}
	if int64(len(raw)) > s.cfg.MaxBytes {
		span.SetStatus(codes.Error, "too large")
		return nil, &types.ValidationError{Fields: map[string]string{
			"file": fmt.Sprintf("must be at most %d bytes", s.cfg.MaxBytes),
		}}
	}

	encoded, err := s.resize(raw)
	if err != nil {
		span.SetStatus(codes.Error, "not an image")
		return nil, err
	}

	key := fmt.Sprintf("profile-photos/%s/%s.jpg", user.ID, uuid.New())
	if err = s.store.Put(ctx, key, contentTypeJPEG, encoded); err != nil {
		l.ErrorContext(ctx, "Failed to store photo", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		return nil, fmt.Errorf("error storing photo: %w", err)
	}

	previous, err := s.repo.SetProfilePhotoKey(ctx, user.ID, key)
	if err != nil {
		s.discard(ctx, l, key)
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		return nil, fmt.Errorf("error saving photo key: %w", err)
	}
	if previous != "" && previous != key {
		s.discard(ctx, l, previous)
	}

	l.InfoContext(ctx, "Profile photo uploaded", slog.String("key", key), slog.Int("bytes", len(encoded)))
	span.SetStatus(codes.Ok, "Photo uploaded")
	return s.repo.GetUserData(ctx, user.ID)
}

func (s *PhotoServiceImpl) resize(raw []byte) ([]byte, error) {
	invalid := &types.ValidationError{Fields: map[string]string{"file": "must be a JPEG, PNG or GIF image"}}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, invalid
	}
	switch format {
	case "jpeg", "png", "gif":
	default:
		return nil, invalid
	}
	if cfg.Width*cfg.Height > maxPixels {
		return nil, &types.ValidationError{Fields: map[string]string{"file": "image dimensions are too large"}}
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, invalid
	}
	img = imaging.Fit(img, s.cfg.MaxDimension, s.cfg.MaxDimension, imaging.Lanczos)

	var buf bytes.Buffer
	if err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("error encoding photo: %w", err)
	}
	return buf.Bytes(), nil
}

// discard deletes an object that is no longer referenced. Failures only
// leave an orphan behind, so they are logged.
func (s *PhotoServiceImpl) discard(ctx context.Context, l *slog.Logger, key string) {
	if err := s.store.Delete(ctx, key); err != nil {
		l.WarnContext(ctx, "Failed to delete photo object", slog.String("key", key), slog.Any("error", err))
	}
}

// Delete clears the user's photo. Deleting a missing photo succeeds.
func (s *PhotoServiceImpl) Delete(ctx context.Context, user *types.User) error {
	ctx, span := otel.Tracer("PhotoService").Start(ctx, "Delete")
	defer span.End()
	l := s.logger.With(slog.String("method", "Delete"), slog.String("userID", user.ID.String()))

	previous, err := s.repo.SetProfilePhotoKey(ctx, user.ID, "")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		return fmt.Errorf("error clearing photo key: %w", err)
	}
	if previous != "" {
		s.discard(ctx, l, previous)
	}
	span.SetStatus(codes.Ok, "Photo deleted")
	return nil
}

func (s *PhotoServiceImpl) Get(ctx context.Context, user *types.User) (*Photo, error) {
	ctx, span := otel.Tracer("PhotoService").Start(ctx, "Get")
	defer span.End()
	return s.open(ctx, user.ID)
}

func (s *PhotoServiceImpl) GetByEmail(ctx context.Context, email string) (*Photo, error) {
	ctx, span := otel.Tracer("PhotoService").Start(ctx, "GetByEmail")
	defer span.End()

	user, err := s.users.GetUserByEmail(ctx, auth.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, fmt.Errorf("photo: %w", types.ErrNotFound)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("error resolving user: %w", err)
	}
	return s.open(ctx, user.ID)
}

func (s *PhotoServiceImpl) open(ctx context.Context, userID uuid.UUID) (*Photo, error) {
	data, err := s.repo.GetUserData(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error loading user data: %w", err)
	}
	if data.ProfilePhotoKey == "" {
		return nil, fmt.Errorf("photo: %w", types.ErrNotFound)
	}
	body, contentType, err := s.store.Get(ctx, data.ProfilePhotoKey)
	if err != nil {
		return nil, fmt.Errorf("error opening photo: %w", err)
	}
	if contentType == "" {
		contentType = contentTypeJPEG
	}
	return &Photo{Body: body, ContentType: contentType}, nil
}
