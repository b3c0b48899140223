package receipts

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// CloudinaryUploader uploads receipts as raw JSON files.
type CloudinaryUploader struct {
	cld    *cloudinary.Cloudinary
	folder string
}

// NewCloudinaryUploader creates an uploader for the given account.
func NewCloudinaryUploader(cloudName, apiKey, apiSecret, folder string) (*CloudinaryUploader, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary config error: %w", err)
	}
	if folder == "" {
		folder = "receipts"
	}
	return &CloudinaryUploader{cld: cld, folder: folder}, nil
}

// Upload stores body under the intent ID and returns its secure URL.
func (u *CloudinaryUploader) Upload(ctx context.Context, intentID string, body []byte) (string, error) {
	resp, err := u.cld.Upload.Upload(ctx, bytes.NewReader(body), uploader.UploadParams{
		PublicID:     intentID + ".json",
		Folder:       u.folder,
		ResourceType: "raw",
	})
	if err != nil {
		return "", fmt.Errorf("upload error: %w", err)
	}
	if resp.Error.Message != "" {
		return "", fmt.Errorf("upload rejected: %s", resp.Error.Message)
	}
	if resp.SecureURL == "" {
		return "", fmt.Errorf("upload returned no URL")
	}
	return resp.SecureURL, nil
}
