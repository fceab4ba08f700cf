package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sardine-ai/go-remote-flags/model"
)

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dev.json")
	if err := os.WriteFile(path, []byte(testPayload), 0o644); err != nil {
		t.Fatal(err)
	}

	src := &FileSource{Path: filepath.Join(dir, EnvPlaceholder+".json")}
	req := Request{Config: model.Config{ClientKey: "ck", Environment: "dev"}}

	result, err := src.Fetch(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if result.NotModified || string(result.Payload) != testPayload {
		t.Fatalf("unexpected result %+v", result)
	}

	req.Validator = result.Validator
	result, err = src.Fetch(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !result.NotModified {
		t.Error("expected not modified for unchanged file")
	}

	if err := os.WriteFile(path, []byte(`{"flags":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	result, err = src.Fetch(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if result.NotModified {
		t.Error("expected updated result for changed file")
	}
}

func TestFileSourceYAML(t *testing.T) {
	testData := `---
flags:
  - flag_id: f1
    key: max_retries
    environment_id: e1
    value_json: "7"
    rollout: 100
    updated_by: alice
  - flag_id: f2
    key: banner
    environment_id: e1
    value_json:
      text: hello
`
	path := filepath.Join(t.TempDir(), "flags.yaml")
	if err := os.WriteFile(path, []byte(testData), 0o644); err != nil {
		t.Fatal(err)
	}

	src := &FileSource{Path: path}
	result, err := src.Fetch(context.Background(), Request{Config: model.Config{ClientKey: "ck", Environment: "dev"}})
	if err != nil {
		t.Fatal(err)
	}
	snapshot, err := model.DecodePayload(result.Payload, result.Validator)
	if err != nil {
		t.Fatalf("expected converted payload to decode: %s", err)
	}
	if v, _ := snapshot.Get("max_retries"); v.Kind() != model.KindString {
		t.Errorf("expected max_retries to be a string, got %s", v.Kind())
	}
	if v, _ := snapshot.Get("banner"); v.Kind() != model.KindJSON {
		t.Errorf("expected banner to be json, got %s", v.Kind())
	}
}

func TestFileSourceMissingFile(t *testing.T) {
	src := &FileSource{Path: filepath.Join(t.TempDir(), "missing.json")}
	_, err := src.Fetch(context.Background(), Request{Config: model.Config{ClientKey: "ck", Environment: "dev"}})
	var transportErr *model.TransportError
	if !errors.As(err, &transportErr) || transportErr.Reason != model.ReasonRead {
		t.Errorf("expected read TransportError, got %v", err)
	}
}
