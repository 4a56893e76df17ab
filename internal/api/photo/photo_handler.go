package photo

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/FACorreiaa/go-user-accounts/internal/api"
	"github.com/FACorreiaa/go-user-accounts/internal/api/auth"
	"github.com/FACorreiaa/go-user-accounts/internal/types"
)

// multipartOverhead leaves room for part headers and boundaries around
// the file itself.
const multipartOverhead = 64 << 10

type HandlerImpl struct {
	photoService PhotoService
	maxBytes     int64
	logger       *slog.Logger
}

func NewHandlerImpl(photoService PhotoService, maxBytes int64, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		photoService: photoService,
		maxBytes:     maxBytes,
		logger:       logger,
	}
}

// UploadPhoto godoc
// @Summary      Upload profile photo
// @Description  Accepts a JPEG, PNG or GIF in the multipart part "file". The image is resized and stored as JPEG.
// @Tags         Photos
// @Accept       multipart/form-data
// @Produce      json
// @Param        file formData file true "Image"
// @Success      200 {object} types.ResponseDTO{data=types.UserData}
// @Failure      400 {object} types.ResponseDTO
// @Security     SessionCookie
// @Router       /users/photo [post]
func (h *HandlerImpl) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("HandlerImpl", "UploadPhoto"))
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		api.HandleError(w, r, l, types.ErrUnauthenticated)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	file, _, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			api.HandleError(w, r, l, types.NewValidationError("file is too large"))
			return
		}
		api.HandleError(w, r, l, &types.ValidationError{Fields: map[string]string{"file": "is required"}})
		return
	}
	defer file.Close()

	data, err := h.photoService.Upload(r.Context(), user, file)
	if err != nil {
		api.HandleError(w, r, l, err)
		return
	}
	api.Respond(w, r, http.StatusOK, data)
}

// DeletePhoto godoc
// @Summary      Delete profile photo
// @Tags         Photos
// @Produce      json
// @Success      200 {object} types.ResponseDTO
// @Security     SessionCookie
// @Router       /users/photo [delete]
func (h *HandlerImpl) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("HandlerImpl", "DeletePhoto"))
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		api.HandleError(w, r, l, types.ErrUnauthenticated)
		return
	}

	if err := h.photoService.Delete(r.Context(), user); err != nil {
		api.HandleError(w, r, l, err)
		return
	}
	api.Respond(w, r, http.StatusOK, nil)
}

// GetPhoto godoc
// @Summary      Get own profile photo
// @Tags         Photos
// @Produce      image/jpeg
// @Success      200 {file} binary
// @Failure      404 {object} types.ResponseDTO
// @Security     SessionCookie
// @Router       /users/photo [get]
func (h *HandlerImpl) GetPhoto(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("HandlerImpl", "GetPhoto"))
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		api.HandleError(w, r, l, types.ErrUnauthenticated)
		return
	}

	photo, err := h.photoService.Get(r.Context(), user)
	h.stream(w, r, l, photo, err)
}

// GetPhotoByEmail godoc
// @Summary      Get another user's profile photo
// @Tags         Photos
// @Produce      image/jpeg
// @Param        email path string true "User email"
// @Success      200 {file} binary
// @Failure      404 {object} types.ResponseDTO
// @Security     SessionCookie
// @Router       /users/photo/{email} [get]
func (h *HandlerImpl) GetPhotoByEmail(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("HandlerImpl", "GetPhotoByEmail"))
	email := chi.URLParam(r, "email")
	if email == "" {
		api.HandleError(w, r, l, &types.ValidationError{Fields: map[string]string{"email": "is required"}})
		return
	}

	photo, err := h.photoService.GetByEmail(r.Context(), email)
	h.stream(w, r, l, photo, err)
}

func (h *HandlerImpl) stream(w http.ResponseWriter, r *http.Request, l *slog.Logger, photo *Photo, err error) {
	if err != nil {
		api.HandleError(w, r, l, err)
		return
	}
	defer photo.Body.Close()

	w.Header().Set("Content-Type", photo.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=60")
	w.WriteHeader(http.StatusOK)
	if _, err = io.Copy(w, photo.Body); err != nil {
		l.WarnContext(r.Context(), "Failed to stream photo", slog.Any("error", err))
	}
}
