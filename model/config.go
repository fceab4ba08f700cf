package model

import (
	"errors"
	"net/url"

	"github.com/go-playground/validator/v10"
)

// DefaultBaseURL is used when a Config does not name a flag service.
const DefaultBaseURL = "https://api.flagforge.dev"

var validate = validator.New()

// Config is the configuration of a single flag client. It selects one
// project/environment pair on one flag service.
type Config struct {
	// ClientKey is sent as client_key.
	ClientKey string `validate:"required"`
	// Environment is sent as env and selects which flag values apply.
	Environment string `validate:"required"`
	// ProjectID is sent as project_id when set.
	ProjectID string
	// BaseURL is the http(s) root of the flag service. Defaults to
	// DefaultBaseURL.
	BaseURL string `validate:"omitempty,http_url"`
}

// WithDefaults returns a copy of c with BaseURL filled in when empty.
func (c Config) WithDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	return c
}

// Validate checks that the fields required before any fetch are set.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ConfigurationError{Field: fe.Field(), Reason: fe.Tag()}
	}
	return &ConfigurationError{Reason: err.Error()}
}

// FlagsURL builds the listing endpoint for c, including the query parameters
// of the wire contract.
func (c Config) FlagsURL() (*url.URL, error) {
	base, err := url.Parse(c.WithDefaults().BaseURL)
	if err != nil {
		return nil, &ConfigurationError{Field: "BaseURL", Reason: err.Error()}
	}
	u := base.JoinPath("v1", "flags")
	q := u.Query()
	if c.ProjectID != "" {
		q.Set("project_id", c.ProjectID)
	}
	q.Set("env", c.Environment)
	q.Set("client_key", c.ClientKey)
	u.RawQuery = q.Encode()
	return u, nil
}
