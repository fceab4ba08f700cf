package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/sardine-ai/go-remote-flags/model"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// EnvPlaceholder in a file or object path is replaced with the configured
// environment.
const EnvPlaceholder = "{env}"

// FileSource is a Source that reads the flag listing from a local file in
// the /v1/flags response shape. Files ending in .yaml or .yml are decoded as
// YAML and converted to JSON. The validator is the SHA-256 of the file.
type FileSource struct {
	Name string // Name of the source
	Path string // File path; may contain EnvPlaceholder
}

// GetName returns the name of the source.
func (f *FileSource) GetName() string {
	if f.Name == "" {
		return "file"
	}
	return f.Name
}

// Fetch reads the file for req.Config.Environment.
func (f *FileSource) Fetch(_ context.Context, req Request) (Result, error) {
	path := strings.ReplaceAll(f.Path, EnvPlaceholder, req.Config.Environment)

	data, err := os.ReadFile(path)
	if err != nil {
		logrus.WithField("path", path).Debug("error reading file")
		return Result{}, transportError(f.GetName(), model.ReasonRead, err)
	}

	validator := contentValidator(data)
	if req.Validator != "" && req.Validator == validator {
		return NotModified(), nil
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		converted, err := yamlToJSON(data)
		if err != nil {
			// Malformed YAML is handed on unconverted so the payload decoder
			// reports it.
			logrus.WithError(err).Debug("error converting yaml")
		} else {
			data = converted
		}
	}
	return Updated(data, validator), nil
}

func contentValidator(data []byte) string {
	sum := sha256.Sum256(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

// yamlToJSON re-encodes a YAML document as JSON.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}
