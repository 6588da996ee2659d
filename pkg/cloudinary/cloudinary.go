// Package cloudinary archives submitted files in Cloudinary so graded rows can
// link to the original upload.
package cloudinary

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	// Folder is the root folder; each batch gets a subfolder.
	Folder string
	// UploadPrefix overrides the API host, e.g. for a proxy.
	UploadPrefix string
}

// Archiver uploads submission files to Cloudinary.
type Archiver struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
}

// New constructs an Archiver.
func New(cfg Config, logger zerolog.Logger) (*Archiver, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}
	if cfg.UploadPrefix != "" {
		cld.Config.API.UploadPrefix = strings.TrimRight(cfg.UploadPrefix, "/")
	}

	return &Archiver{
		client: cld,
		folder: strings.Trim(cfg.Folder, "/"),
		logger: logger.With().Str("component", "cloudinary_archiver").Logger(),
	}, nil
}

// Upload stores the file and returns its secure URL. name may carry a
// directory part ("<batch>/<file>"), which becomes a subfolder. Uploading
// the same name twice overwrites the earlier asset.
func (a *Archiver) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	folder, publicID := splitName(a.folder, name)

	params := uploader.UploadParams{
		Folder:       folder,
		PublicID:     publicID,
		ResourceType: "auto",
		Overwrite:    api.Bool(true),
	}

	result, err := a.client.Upload.Upload(ctx, reader, params)
	if err != nil {
		return "", fmt.Errorf("failed to archive %s: %w", name, err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("failed to archive %s: %s", name, result.Error.Message)
	}

	a.logger.Debug().Str("public_id", result.PublicID).Msg("submission archived")
	return result.SecureURL, nil
}

func splitName(root, name string) (string, string) {
	name = strings.Trim(strings.ReplaceAll(name, "\\", "/"), "/")
	dir, file := path.Split(name)

	folder := strings.Trim(path.Join(root, dir), "/")
	if folder == "." {
		folder = ""
	}

	publicID := strings.TrimSuffix(file, path.Ext(file))
	if publicID == "" {
		publicID = "file"
	}
	return folder, publicID
}
