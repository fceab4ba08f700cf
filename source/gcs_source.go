package source

import (
	"context"
	"io"
	"path"
	"strconv"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/sardine-ai/go-remote-flags/model"
	"github.com/sirupsen/logrus"
)

// GcsSource is a Source that reads the flag listing from an object in a
// Google Cloud Storage bucket. The object generation is the validator, so an
// unchanged object is never downloaded twice.
type GcsSource struct {
	Name       string          // Name of the source
	BucketName string          // Name of the GCS bucket
	ObjectName string          // Object name; may contain EnvPlaceholder. Defaults to "{env}.json"
	Prefix     string          // Optional prefix joined before ObjectName
	Client     *storage.Client // GCS client instance

	clientOnce    sync.Once // Ensures client is initialized only once
	clientInitErr error     // Stores error from client initialization
}

// GetName returns the name of the source.
func (g *GcsSource) GetName() string {
	if g.Name == "" {
		return "gcs"
	}
	return g.Name
}

func (g *GcsSource) objectName(env string) string {
	name := g.ObjectName
	if name == "" {
		name = EnvPlaceholder + ".json"
	}
	return path.Join(g.Prefix, strings.ReplaceAll(name, EnvPlaceholder, env))
}

// getClient creates the storage client on first use unless one was provided.
func (g *GcsSource) getClient() (*storage.Client, error) {
	g.clientOnce.Do(func() {
		if g.Client == nil {
			g.Client, g.clientInitErr = storage.NewClient(context.Background())
		}
	})
	return g.Client, g.clientInitErr
}

// Fetch compares the object generation against req.Validator and downloads
// the object only when it changed.
func (g *GcsSource) Fetch(ctx context.Context, req Request) (Result, error) {
	client, err := g.getClient()
	if err != nil {
		return Result{}, transportError(g.GetName(), model.ReasonRequest, err)
	}

	name := g.objectName(req.Config.Environment)
	obj := client.Bucket(g.BucketName).Object(name)
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		logrus.WithField("object", name).Debug("error reading object attributes")
		return Result{}, transportError(g.GetName(), model.ReasonNetwork, err)
	}

	validator := strconv.FormatInt(attrs.Generation, 10)
	if req.Validator != "" && req.Validator == validator {
		return NotModified(), nil
	}

	// A write between Attrs and NewReader costs one extra download next time.
	reader, err := obj.NewReader(ctx)
	if err != nil {
		return Result{}, transportError(g.GetName(), model.ReasonNetwork, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return Result{}, transportError(g.GetName(), model.ReasonRead, err)
	}
	return Updated(data, validator), nil
}
