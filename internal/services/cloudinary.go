package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

const (
	avatarFolder  = "kaitanna/avatars"
	MaxAvatarSize = 5 << 20
)

var (
	ErrNotAnImage     = errors.New("avatar must be a JPEG, PNG, GIF or WebP image")
	ErrAvatarTooLarge = fmt.Errorf("avatar must be at most %d MB", MaxAvatarSize>>20)
)

// AvatarUploader stores profile pictures and returns their public URL.
type AvatarUploader interface {
	UploadAvatar(ctx context.Context, userID string, file io.Reader) (string, error)
}

type CloudinaryService struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinaryService(cloudName, apiKey, apiSecret string) (*CloudinaryService, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudinary: %w", err)
	}

	return &CloudinaryService{
		cld: cld,
	}, nil
}

// UploadAvatar uploads one image per user, overwriting the previous avatar.
func (s *CloudinaryService) UploadAvatar(ctx context.Context, userID string, file io.Reader) (string, error) {
	fileBytes, err := io.ReadAll(io.LimitReader(file, MaxAvatarSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	if err := CheckAvatar(fileBytes); err != nil {
		return "", err
	}

	overwrite := true
	uploadResult, err := s.cld.Upload.Upload(ctx, fileBytes, uploader.UploadParams{
		Folder:       avatarFolder,
		PublicID:     userID,
		Overwrite:    &overwrite,
		ResourceType: "image",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to Cloudinary: %w", err)
	}

	return uploadResult.SecureURL, nil
}

// OpenAvatar opens an uploaded multipart file for UploadAvatar.
func OpenAvatar(fileHeader *multipart.FileHeader) (multipart.File, error) {
	if fileHeader.Size > MaxAvatarSize {
		return nil, ErrAvatarTooLarge
	}
	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// CheckAvatar sniffs the content type and size of an avatar image.
func CheckAvatar(data []byte) error {
	if len(data) > MaxAvatarSize {
		return ErrAvatarTooLarge
	}
	switch http.DetectContentType(data) {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return nil
	}
	return ErrNotAnImage
}
