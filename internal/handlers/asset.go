package handlers

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tasknest/apiserver/internal/services"
	"github.com/tasknest/apiserver/internal/storage"
)

const (
	maxMultipartMemory = 16 << 20
	maxAvatarBytes     = 1 << 20
	maxThumbnailBytes  = 3 << 20
	maxFileBytes       = 10 << 20

	formFieldAvatar    = "avatar"
	formFieldThumbnail = "thumbnail"
	formFieldFile      = "file"
)

// AssetHandler provides multipart upload endpoints backed by object
// storage.
type AssetHandler struct {
	uploader *storage.Uploader
	users    *services.UserService
	secret   []byte
}

// NewAssetHandler constructs an AssetHandler with the provided dependencies.
func NewAssetHandler(uploader *storage.Uploader, users *services.UserService, jwtSecret string) *AssetHandler {
	return &AssetHandler{
		uploader: uploader,
		users:    users,
		secret:   []byte(jwtSecret),
	}
}

// AssetRouter registers asset routes on the given router. Avatar upload
// stays unauthenticated because it happens during registration, before
// an account exists.
func AssetRouter(
	r chi.Router,
	uploader *storage.Uploader,
	users *services.UserService,
	jwtSecret string,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewAssetHandler(uploader, users, jwtSecret)

	r.Post("/upload-avatar", handler.UploadAvatar)
	r.With(authMiddleware).Post("/upload-thumbnail", handler.UploadThumbnail)
	r.With(authMiddleware).Post("/upload-file", handler.UploadFile)
}

// UploadAvatar accepts an image up to 1 MiB and stores it. The caller
// may be anonymous; an authenticated caller's ID keys the object instead
// of a random one.
func (h *AssetHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	uploadName := uuid.NewString()
	if user, err := authenticate(r, h.users, h.secret); err == nil {
		uploadName = user.ID.Hex()
	}

	h.upload(w, r, formFieldAvatar, uploadName, maxAvatarBytes, true)
}

// UploadThumbnail accepts an image up to 3 MiB and stores it.
func (h *AssetHandler) UploadThumbnail(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeErrors(w, http.StatusUnauthorized, toastError("unauthorized"))
		return
	}

	h.upload(w, r, formFieldThumbnail, user.ID.Hex(), maxThumbnailBytes, true)
}

// UploadFile accepts any payload up to 10 MiB and stores it.
func (h *AssetHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeErrors(w, http.StatusUnauthorized, toastError("unauthorized"))
		return
	}

	h.upload(w, r, formFieldFile, user.ID.Hex(), maxFileBytes, false)
}

func (h *AssetHandler) upload(w http.ResponseWriter, r *http.Request, field, uploadName string, maxBytes int64, imageOnly bool) {
	filename, data, contentType, err := readMultipartFile(r, field, maxBytes)
	if err != nil {
		writeErrors(w, http.StatusBadRequest, toastError(err.Error()))
		return
	}

	if imageOnly && !storage.IsImage(contentType) {
		writeErrors(w, http.StatusBadRequest, toastError(fmt.Sprintf("%s is not an image", field)))
		return
	}

	location, err := h.uploader.Upload(r.Context(), uploadName, filename, data, contentType)
	if err != nil {
		log.Printf("upload of %s failed: %v", field, err)
		writeErrors(w, http.StatusInternalServerError, toastError("internal server error"))
		return
	}

	writeData(w, http.StatusOK,
		map[string]string{"location": location},
		toastMessage(fmt.Sprintf("%s uploaded successfully", field)),
	)
}

func readMultipartFile(r *http.Request, field string, maxBytes int64) (string, []byte, string, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return "", nil, "", fmt.Errorf("%s not found", field)
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		return "", nil, "", fmt.Errorf("%s not found", field)
	}
	defer file.Close()

	if header.Size > maxBytes {
		return "", nil, "", fmt.Errorf("%s is too large", field)
	}

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return "", nil, "", errors.New("failed to read upload")
	}
	if int64(len(data)) > maxBytes {
		return "", nil, "", fmt.Errorf("%s is too large", field)
	}

	return header.Filename, data, header.Header.Get("Content-Type"), nil
}
