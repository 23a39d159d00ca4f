package models

import (
	"strings"
)

// MockServer is the root of a configuration document. Each file holds one or
// more simulated backends.
type MockServer struct {
	Backends []Backend `yaml:"backends" json:"backends" validate:"required,min=1,dive"`
}

type Backend struct {
	Name       string           `yaml:"name" json:"name" validate:"required"`
	Version    *string          `yaml:"version" json:"version"`
	Logger     *bool            `yaml:"logger" json:"logger"`
	LoggerPath *string          `yaml:"logger_path" json:"logger_path"`
	Journal    *JournalSettings `yaml:"journal" json:"journal"`
	Endpoints  []Endpoint       `yaml:"endpoints" json:"endpoints" validate:"required,min=1,dive"`
	Scenarios  []ScenarioSpec   `yaml:"scenarios" json:"scenarios" validate:"dive"`
}

type LogDescriptor struct {
	Name    string
	Version string
	Path    string
	File    bool
	Logger  bool
}

// Endpoint binds a method and a path template to its response configuration.
type Endpoint struct {
	Path           string `yaml:"path" json:"path" validate:"required,startswith=/"`
	Method         string `yaml:"method" json:"method" validate:"required,alpha"`
	EndpointConfig `yaml:",inline"`
}

// EndpointConfig describes how a matched request is answered.
type EndpointConfig struct {
	Schema        any              `yaml:"schema" json:"schema"`
	StatusCode    int              `yaml:"status_code" json:"statusCode" validate:"omitempty,min=100,max=599"`
	Headers       Headers          `yaml:"headers" json:"headers"`
	Delay         *Delay           `yaml:"delay" json:"delay"`
	Error         *ErrorSimulation `yaml:"error" json:"error"`
	Repeat        *int             `yaml:"repeat" json:"repeat"`
	RequestSchema any              `yaml:"request_schema" json:"requestSchema"`
}

// Status returns the configured status code, 200 when unset.
func (c EndpointConfig) Status() int {
	if c.StatusCode == 0 {
		return 200
	}
	return c.StatusCode
}

type Headers map[string]string

// Clone returns an independent copy; nil stays nil.
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Get looks a header up case-insensitively.
func (h Headers) Get(name string) (string, bool) {
	if v, ok := h[name]; ok {
		return v, true
	}
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// ErrorSimulation short-circuits a request with an error response with the
// given probability.
type ErrorSimulation struct {
	Probability Probability `yaml:"probability" json:"probability"`
	Status      StatusList  `yaml:"status" json:"status"`
	Body        any         `yaml:"body" json:"body"`
}

type ScenarioSpec struct {
	Name       string  `yaml:"name" json:"name" validate:"required"`
	Endpoint   string  `yaml:"endpoint" json:"endpoint"`
	When       string  `yaml:"when" json:"when"`
	Preset     string  `yaml:"preset" json:"preset" validate:"omitempty,oneof=server_error not_found unauthorized maintenance rate_limit"`
	Limit      int     `yaml:"limit" json:"limit" validate:"omitempty,min=1"`
	WindowMs   int     `yaml:"window_ms" json:"windowMs" validate:"omitempty,min=1"`
	StatusCode *int    `yaml:"status_code" json:"statusCode" validate:"omitempty,min=100,max=599"`
	Headers    Headers `yaml:"headers" json:"headers"`
	Body       any     `yaml:"body" json:"body"`
	Active     bool    `yaml:"active" json:"active"`
}

type JournalSettings struct {
	Path            string `yaml:"path" json:"path" validate:"required"`
	BatchSize       int    `yaml:"batch_size" json:"batchSize" validate:"omitempty,min=1"`
	FlushIntervalMs int    `yaml:"flush_interval_ms" json:"flushIntervalMs" validate:"omitempty,min=1"`
	MaxWorkers      int    `yaml:"max_workers" json:"maxWorkers" validate:"omitempty,min=1"`
}

type LogSettings struct {
	Console            bool   `yaml:"console"`
	BeautifyConsoleLog bool   `yaml:"beautify_console"`
	File               bool   `yaml:"file"`
	Path               string `yaml:"path"`
	MinLevel           string `yaml:"min_level"`
	RotationMaxSizeMB  int    `yaml:"rotation_max_size_mb"`
	MaxAgeDay          int    `yaml:"max_age_day"`
	MaxBackups         int    `yaml:"max_backups"`
	Compress           bool   `yaml:"compress"`
}

// StateStore is the slice of the key/value store visible to generators and
// scenario conditions.
type StateStore interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// Request is the already-parsed input of the pipeline. Params is filled by the
// router on match.
type Request struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Params  map[string]string `json:"params,omitempty"`
	Query   map[string]string `json:"query,omitempty"`
	Headers Headers           `json:"headers,omitempty"`
	Body    any               `json:"body,omitempty"`
	State   StateStore        `json:"-"`
}

// Response is the materialized result of one request.
type Response struct {
	StatusCode int     `json:"status"`
	Headers    Headers `json:"headers"`
	Body       any     `json:"body"`
}
