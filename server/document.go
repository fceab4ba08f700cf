package server

import (
	"encoding/json"
	"fmt"

	"github.com/sardine-ai/go-remote-flags/model"
	"gopkg.in/yaml.v3"
)

// document is the flag file served by the server:
//
//	project_id: p1
//	environments:
//	  dev:
//	    - key: dark_mode
//	      value_json: true
type document struct {
	ProjectID    string                  `json:"project_id"`
	Environments map[string][]model.Flag `json:"environments"`
}

// listing is a pre-encoded /v1/flags response for one environment.
type listing struct {
	body  []byte
	count int
}

// parseDocument decodes a YAML or JSON flag file and encodes the response of
// every environment. Each response is checked with the same decoder the SDK
// uses, so the server never serves a listing its clients would reject.
func parseDocument(data []byte) (string, map[string]listing, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return "", nil, fmt.Errorf("error parsing flag file: %w", err)
	}
	converted, err := json.Marshal(raw)
	if err != nil {
		return "", nil, fmt.Errorf("error converting flag file: %w", err)
	}
	var doc document
	if err := json.Unmarshal(converted, &doc); err != nil {
		return "", nil, fmt.Errorf("error decoding flag file: %w", err)
	}

	listings := make(map[string]listing, len(doc.Environments))
	for env, flags := range doc.Environments {
		if flags == nil {
			flags = []model.Flag{}
		}
		body, err := json.Marshal(model.Payload{Flags: flags})
		if err != nil {
			return "", nil, fmt.Errorf("error encoding environment %s: %w", env, err)
		}
		if _, err := model.DecodePayload(body, ""); err != nil {
			return "", nil, fmt.Errorf("invalid flags for environment %s: %w", env, err)
		}
		listings[env] = listing{body: body, count: len(flags)}
	}
	return doc.ProjectID, listings, nil
}
