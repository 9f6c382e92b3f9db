// Package storage uploads call recordings to Google Cloud Storage so
// the speech recognizer can read them by URI.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	gcs "cloud.google.com/go/storage"
	"github.com/rotisserie/eris"
	"google.golang.org/api/option"
)

// Uploader stores local files in a durable bucket and returns the URI
// they are reachable under.
type Uploader interface {
	// Put uploads the file at localPath under the portal's prefix and
	// returns its gs:// URI.
	Put(ctx context.Context, portal, localPath string) (string, error)
	Close() error
}

type gcsUploader struct {
	client *gcs.Client
	bucket string
}

// NewGCSUploader opens a client against the given bucket. Credentials
// come from the environment unless a service account file is set.
func NewGCSUploader(ctx context.Context, bucket, credentialsFile string) (Uploader, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "creating storage client")
	}
	return &gcsUploader{client: client, bucket: bucket}, nil
}

func (u *gcsUploader) Put(ctx context.Context, portal, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", eris.Wrapf(err, "opening %s", localPath)
	}
	defer f.Close()

	object := path.Join(portal, path.Base(localPath))
	w := u.client.Bucket(u.bucket).Object(object).NewWriter(ctx)

	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return "", eris.Wrapf(err, "uploading %s", object)
	}
	if err := w.Close(); err != nil {
		return "", eris.Wrapf(err, "finalizing upload of %s", object)
	}

	return fmt.Sprintf("gs://%s/%s", u.bucket, object), nil
}

func (u *gcsUploader) Close() error {
	return u.client.Close()
}
