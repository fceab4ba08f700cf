package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestValueFromJSON(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
		kind Kind
	}{
		{name: "true", raw: "true", kind: KindBool},
		{name: "false", raw: " false ", kind: KindBool},
		{name: "integer", raw: "7", kind: KindNumber},
		{name: "negative float", raw: "-1.5e2", kind: KindNumber},
		{name: "string", raw: `"dark"`, kind: KindString},
		{name: "object", raw: `{"a":1}`, kind: KindJSON},
		{name: "array", raw: `[1,2]`, kind: KindJSON},
		{name: "null", raw: "null", kind: KindJSON},
		{name: "empty", raw: "", kind: KindJSON},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := ValueFromJSON(json.RawMessage(tc.raw))
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if v.Kind() != tc.kind {
				t.Errorf("expected kind %s, got %s", tc.kind, v.Kind())
			}
		})
	}

	for _, raw := range []string{"tru", `"open`, "12abc", "{", "1e400"} {
		if _, err := ValueFromJSON(json.RawMessage(raw)); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestValueAccessors(t *testing.T) {
	if b, ok := BoolValue(true).AsBool(); !ok || !b {
		t.Errorf("expected bool true, got %v %v", b, ok)
	}
	if _, ok := StringValue("true").AsBool(); ok {
		t.Error("string value must not read as bool")
	}
	if n, ok := NumberValue(3).AsNumber(); !ok || n != 3 {
		t.Errorf("expected 3, got %v %v", n, ok)
	}
	if s, ok := StringValue("x").AsString(); !ok || s != "x" {
		t.Errorf("expected x, got %q %v", s, ok)
	}
	if _, ok := NumberValue(1).AsString(); ok {
		t.Error("number value must not read as string")
	}
	if string(NumberValue(2.5).Raw()) != "2.5" {
		t.Errorf("unexpected raw %s", NumberValue(2.5).Raw())
	}
	obj := JSONValue(json.RawMessage(`{"a":"b"}`))
	m, ok := obj.Interface().(map[string]interface{})
	if !ok || m["a"] != "b" {
		t.Errorf("unexpected interface value %v", obj.Interface())
	}
}

func TestDecodePayload(t *testing.T) {
	body := `{"flags":[
		{"flag_id":"f1","key":"dark_mode","environment_id":"e1","value_json":true,"rollout":100,"rules_json":{},"updated_at":"2024-03-01T10:00:00Z","updated_by":"alice","type":"boolean"},
		{"flag_id":"f2","environment_id":"e1","value_json":"7","rollout":50,"rules_json":null,"updated_at":"2024-03-01T10:00:00Z","updated_by":"bob"},
		{"flag_id":"f3","key":"theme","environment_id":"e1","value_json":{"color":"blue"},"rollout":0,"updated_at":"2024-03-01T10:00:00Z","updated_by":"bob"}
	]}`
	snapshot, err := DecodePayload([]byte(body), `W/"1"`)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if snapshot.Len() != 3 {
		t.Fatalf("expected 3 flags, got %d", snapshot.Len())
	}
	if snapshot.Validator() != `W/"1"` {
		t.Errorf("unexpected validator %q", snapshot.Validator())
	}
	if v, _ := snapshot.Get("dark_mode"); v.Kind() != KindBool {
		t.Errorf("expected dark_mode to be bool, got %s", v.Kind())
	}
	// key absent falls back to flag_id
	if v, ok := snapshot.Get("f2"); !ok || v.Kind() != KindString {
		t.Errorf("expected f2 to be a string flag, got %v %s", ok, v.Kind())
	}
	if v, _ := snapshot.Get("theme"); v.Kind() != KindJSON {
		t.Errorf("expected theme to be json, got %s", v.Kind())
	}
	keys := snapshot.Keys()
	if len(keys) != 3 || keys[0] != "dark_mode" || keys[1] != "f2" || keys[2] != "theme" {
		t.Errorf("unexpected keys %v", keys)
	}
}

func TestDecodePayloadIgnoresMetadata(t *testing.T) {
	testCases := []struct {
		name  string
		extra string
	}{
		{name: "local time", extra: `"updated_at":"2024-03-01T10:00:00"`},
		{name: "basic offset", extra: `"updated_at":"2024-03-01T10:00:00+0000"`},
		{name: "date only", extra: `"updated_at":"2024-03-01"`},
		{name: "empty timestamp", extra: `"updated_at":""`},
		{name: "numeric timestamp", extra: `"updated_at":1709287200`},
		{name: "string rollout", extra: `"rollout":"50"`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			body := `{"flags":[{"flag_id":"f1","key":"dark_mode","value_json":true,` + tc.extra + `}]}`
			snapshot, err := DecodePayload([]byte(body), "")
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if v, ok := snapshot.Get("dark_mode"); !ok || !v.Equal(BoolValue(true)) {
				t.Errorf("expected dark_mode to be true, got %v", v.Interface())
			}
		})
	}
}

func TestDecodePayloadErrors(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{name: "not json", body: "<html>"},
		{name: "missing flags", body: `{"items":[]}`},
		{name: "null flags", body: `{"flags":null}`},
		{name: "flags not a list", body: `{"flags":{}}`},
		{name: "no key or id", body: `{"flags":[{"value_json":true}]}`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodePayload([]byte(tc.body), "")
			var payloadErr *PayloadError
			if !errors.As(err, &payloadErr) {
				t.Errorf("expected PayloadError, got %v", err)
			}
		})
	}
}

func TestDecodePayloadEmptyList(t *testing.T) {
	snapshot, err := DecodePayload([]byte(`{"flags":[]}`), "")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if snapshot.Len() != 0 {
		t.Errorf("expected empty snapshot, got %d flags", snapshot.Len())
	}
}

func TestSnapshotIsImmutable(t *testing.T) {
	values := map[string]Value{"a": BoolValue(true)}
	snapshot := NewSnapshot(values, "v1")
	values["a"] = BoolValue(false)
	values["b"] = StringValue("x")

	if v, _ := snapshot.Get("a"); !v.Equal(BoolValue(true)) {
		t.Error("snapshot changed after source map was modified")
	}
	out := snapshot.Map()
	out["c"] = NumberValue(1)
	if _, ok := snapshot.Get("c"); ok {
		t.Error("snapshot changed after Map() copy was modified")
	}
	if !snapshot.Equal(NewSnapshot(map[string]Value{"a": BoolValue(true)}, "other")) {
		t.Error("expected snapshots with equal content to be equal")
	}
	if snapshot.WithVersion(4).Version() != 4 {
		t.Error("expected version to be set")
	}
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		name  string
		cfg   Config
		field string
	}{
		{name: "valid", cfg: Config{ClientKey: "k", Environment: "dev"}},
		{name: "missing key", cfg: Config{Environment: "dev"}, field: "ClientKey"},
		{name: "missing env", cfg: Config{ClientKey: "k"}, field: "Environment"},
		{name: "bad url", cfg: Config{ClientKey: "k", Environment: "dev", BaseURL: "not a url"}, field: "BaseURL"},
		{name: "url without scheme", cfg: Config{ClientKey: "k", Environment: "dev", BaseURL: "localhost:8080"}, field: "BaseURL"},
		{name: "non http scheme", cfg: Config{ClientKey: "k", Environment: "dev", BaseURL: "ftp://flags.local"}, field: "BaseURL"},
		{name: "http url", cfg: Config{ClientKey: "k", Environment: "dev", BaseURL: "http://localhost:8080"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.field == "" {
				if err != nil {
					t.Errorf("unexpected error: %s", err)
				}
				return
			}
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if cfgErr.Field != tc.field {
				t.Errorf("expected field %s, got %s", tc.field, cfgErr.Field)
			}
		})
	}
}

func TestConfigFlagsURL(t *testing.T) {
	cfg := Config{ClientKey: "key 1", Environment: "prod", ProjectID: "p1", BaseURL: "http://flags.local/api"}
	u, err := cfg.FlagsURL()
	if err != nil {
		t.Fatal(err)
	}
	if u.Path != "/api/v1/flags" {
		t.Errorf("unexpected path %s", u.Path)
	}
	q := u.Query()
	if q.Get("env") != "prod" || q.Get("client_key") != "key 1" || q.Get("project_id") != "p1" {
		t.Errorf("unexpected query %s", u.RawQuery)
	}

	u, err = Config{ClientKey: "k", Environment: "dev"}.FlagsURL()
	if err != nil {
		t.Fatal(err)
	}
	if u.Host != "api.flagforge.dev" {
		t.Errorf("expected default host, got %s", u.Host)
	}
	if u.Query().Has("project_id") {
		t.Error("project_id must be omitted when empty")
	}
}
