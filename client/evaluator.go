package client

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Bool returns the flag stored under key if it is a boolean, and def
// otherwise. Strings and numbers are never read as booleans.
func (c *Client) Bool(key string, def bool) bool {
	v, ok := c.Snapshot().Get(key)
	if !ok {
		return def
	}
	if b, ok := v.AsBool(); ok {
		return b
	}
	return def
}

// Number returns the flag stored under key if it is a number, or the parsed
// value of a string flag that is entirely a finite decimal number. Otherwise
// it returns def.
func (c *Client) Number(key string, def float64) float64 {
	v, ok := c.Snapshot().Get(key)
	if !ok {
		return def
	}
	if n, ok := v.AsNumber(); ok {
		return n
	}
	if s, ok := v.AsString(); ok {
		if n, ok := parseDecimal(s); ok {
			return n
		}
	}
	return def
}

// String returns the flag stored under key if it is a string, and def
// otherwise. Other kinds are not stringified.
func (c *Client) String(key string, def string) string {
	v, ok := c.Snapshot().Get(key)
	if !ok {
		return def
	}
	if s, ok := v.AsString(); ok {
		return s
	}
	return def
}

// JSON returns the JSON encoding of the flag stored under key, whatever its
// kind, or def when the key is absent.
func (c *Client) JSON(key string, def json.RawMessage) json.RawMessage {
	v, ok := c.Snapshot().Get(key)
	if !ok {
		return def
	}
	return v.Raw()
}

// parseDecimal accepts plain decimal notation ("7", "-0.5", "1e3"). Hex
// floats, NaN and infinities are rejected.
func parseDecimal(s string) (float64, bool) {
	if s == "" || strings.ContainsAny(s, "xX_") {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}
