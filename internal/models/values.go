package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Configuration errors. They are returned at registration time, never while
// answering a request.
var (
	ErrInvalidDelay       = errors.New("invalid delay")
	ErrInvalidProbability = errors.New("invalid error probability")
	ErrInvalidStatus      = errors.New("invalid status code")
)

// Delay is a latency in milliseconds, either fixed (Min == Max and !Ranged)
// or sampled uniformly from the inclusive range [Min, Max].
type Delay struct {
	Min    int  `json:"min"`
	Max    int  `json:"max"`
	Ranged bool `json:"ranged"`
}

func FixedDelay(ms int) *Delay {
	return &Delay{Min: ms, Max: ms}
}

func RangeDelay(min, max int) *Delay {
	return &Delay{Min: min, Max: max, Ranged: true}
}

func (d *Delay) Validate() error {
	if d == nil {
		return nil
	}
	if d.Min < 0 || d.Max < 0 {
		return fmt.Errorf("%w: negative value [%d, %d]", ErrInvalidDelay, d.Min, d.Max)
	}
	if d.Min > d.Max {
		return fmt.Errorf("%w: min %d is greater than max %d", ErrInvalidDelay, d.Min, d.Max)
	}
	return nil
}

// UnmarshalYAML accepts `delay: 100`, `delay: [50, 150]` and
// `delay: {min: 50, max: 150}`.
func (d *Delay) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var ms int
		if err := value.Decode(&ms); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidDelay, err)
		}
		*d = *FixedDelay(ms)
		return nil
	case yaml.SequenceNode:
		var bounds []int
		if err := value.Decode(&bounds); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidDelay, err)
		}
		return d.setRange(bounds)
	case yaml.MappingNode:
		var bounds struct {
			Min int `yaml:"min"`
			Max int `yaml:"max"`
		}
		if err := value.Decode(&bounds); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidDelay, err)
		}
		*d = *RangeDelay(bounds.Min, bounds.Max)
		return nil
	}
	return fmt.Errorf("%w: unsupported yaml node", ErrInvalidDelay)
}

// UnmarshalJSON accepts the same shapes as UnmarshalYAML.
func (d *Delay) UnmarshalJSON(data []byte) error {
	var ms int
	if err := json.Unmarshal(data, &ms); err == nil {
		*d = *FixedDelay(ms)
		return nil
	}
	var bounds []int
	if err := json.Unmarshal(data, &bounds); err == nil {
		return d.setRange(bounds)
	}
	var obj struct {
		Min    int   `json:"min"`
		Max    int   `json:"max"`
		Ranged *bool `json:"ranged"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDelay, err)
	}
	*d = Delay{Min: obj.Min, Max: obj.Max, Ranged: obj.Ranged == nil || *obj.Ranged}
	return nil
}

func (d *Delay) setRange(bounds []int) error {
	if len(bounds) != 2 {
		return fmt.Errorf("%w: range needs exactly two values, got %d", ErrInvalidDelay, len(bounds))
	}
	*d = *RangeDelay(bounds[0], bounds[1])
	return nil
}

// Probability is a value in [0, 1]. Configuration files may also write it as
// a percentage string such as "25%".
type Probability float64

func (p *Probability) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: expected a scalar", ErrInvalidProbability)
	}
	parsed, err := parseProbability(value.Value)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func (p *Probability) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*p = Probability(num)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProbability, err)
	}
	parsed, err := parseProbability(str)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func parseProbability(raw string) (Probability, error) {
	raw = strings.TrimSpace(raw)
	percent := strings.HasSuffix(raw, "%")
	num, err := strconv.ParseFloat(strings.TrimSuffix(raw, "%"), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidProbability, raw)
	}
	if percent {
		num /= 100
	}
	return Probability(num), nil
}

// StatusList holds one or more candidate status codes.
type StatusList []int

func (s *StatusList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var code int
		if err := value.Decode(&code); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidStatus, err)
		}
		*s = StatusList{code}
		return nil
	case yaml.SequenceNode:
		var codes []int
		if err := value.Decode(&codes); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidStatus, err)
		}
		*s = codes
		return nil
	}
	return fmt.Errorf("%w: unsupported yaml node", ErrInvalidStatus)
}

func (s *StatusList) UnmarshalJSON(data []byte) error {
	var code int
	if err := json.Unmarshal(data, &code); err == nil {
		*s = StatusList{code}
		return nil
	}
	var codes []int
	if err := json.Unmarshal(data, &codes); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidStatus, err)
	}
	*s = codes
	return nil
}

func (e *ErrorSimulation) Validate() error {
	if e == nil {
		return nil
	}
	if math.IsNaN(float64(e.Probability)) || e.Probability < 0 || e.Probability > 1 {
		return fmt.Errorf("%w: %v is outside [0, 1]", ErrInvalidProbability, float64(e.Probability))
	}
	for _, code := range e.Status {
		if !validStatus(code) {
			return fmt.Errorf("%w: %d", ErrInvalidStatus, code)
		}
	}
	return nil
}

// Validate reports static misconfiguration of an endpoint.
func (c EndpointConfig) Validate() error {
	if c.StatusCode != 0 && !validStatus(c.StatusCode) {
		return fmt.Errorf("%w: %d", ErrInvalidStatus, c.StatusCode)
	}
	if err := c.Delay.Validate(); err != nil {
		return err
	}
	return c.Error.Validate()
}

func validStatus(code int) bool {
	return code >= 100 && code <= 599
}
