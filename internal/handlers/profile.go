package handlers

import (
	"errors"
	"net/http"

	"github.com/kaitanna/kaitanna-backend/internal/auth"
	"github.com/kaitanna/kaitanna-backend/internal/middleware"
	"github.com/kaitanna/kaitanna-backend/internal/services"
	"go.uber.org/zap"
)

// ProfileHandler serves the signed-in user's profile. avatars may be nil
// when uploads are not configured.
type ProfileHandler struct {
	auth    *AuthHandler
	avatars services.AvatarUploader
	log     *zap.Logger
}

func NewProfileHandler(svc *auth.Service, avatars services.AvatarUploader, log *zap.Logger) *ProfileHandler {
	return &ProfileHandler{auth: NewAuthHandler(svc, log), avatars: avatars, log: log}
}

type UpdateProfileRequest struct {
	Username string `json:"username"`
}

// GetProfile handles GET /api/profile.
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.auth.Profile(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		h.auth.authError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    user,
	})
}

// UpdateProfile handles PUT /api/profile.
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.auth.auth.UpdateUsername(r.Context(), middleware.UserIDFromContext(r.Context()), req.Username)
	if err != nil {
		h.auth.authError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Profile updated",
		"user":    user,
	})
}

// UploadAvatar handles POST /api/profile/avatar (multipart field "file").
func (h *ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	if h.avatars == nil {
		writeError(w, http.StatusServiceUnavailable, "Avatar uploads are not available")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, services.MaxAvatarSize+(1<<20))
	if err := r.ParseMultipartForm(services.MaxAvatarSize); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}
	_, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	file, err := services.OpenAvatar(fileHeader)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer file.Close()

	userID := middleware.UserIDFromContext(r.Context())
	url, err := h.avatars.UploadAvatar(r.Context(), userID, file)
	if err != nil {
		if errors.Is(err, services.ErrNotAnImage) || errors.Is(err, services.ErrAvatarTooLarge) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error("avatar upload failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "Failed to upload avatar")
		return
	}

	user, err := h.auth.auth.SetAvatar(r.Context(), userID, url)
	if err != nil {
		h.auth.authError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Avatar updated",
		"user":    user,
	})
}
