// Package storage keeps payment proofs.  Both backends return a reference
// string that is stored on the booking verbatim.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
)

// Local writes proofs under a directory with random file names.
type Local struct {
	dir string
}

func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create proof dir: %w", err)
	}
	return &Local{dir: dir}, nil
}

// Save copies r to a new file and returns its path.
func (l *Local) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(l.dir, uuid.NewString()+extension(name))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("open proof file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write proof file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close proof file: %w", err)
	}
	return path, nil
}

func extension(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) > 8 {
		return ""
	}
	return ext
}

// Cloudinary uploads proofs to a Cloudinary folder and returns the secure URL.
type Cloudinary struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinary(cloudName, apiKey, apiSecret, folder string) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudinary: %w", err)
	}
	return &Cloudinary{cld: cld, folder: folder}, nil
}

func (c *Cloudinary) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	res, err := c.cld.Upload.Upload(ctx, r, uploader.UploadParams{
		Folder:   c.folder,
		PublicID: uuid.NewString(),
		Tags:     []string{"payment-proof"},
	})
	if err != nil {
		return "", fmt.Errorf("upload proof %s: %w", name, err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("upload proof %s: %s", name, res.Error.Message)
	}
	if res.SecureURL == "" {
		return "", fmt.Errorf("upload proof %s: empty url", name)
	}
	return res.SecureURL, nil
}
