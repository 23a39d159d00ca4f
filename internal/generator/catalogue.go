package generator

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"mimic/internal/invalid"
	"mimic/internal/models"

	"github.com/go-faker/faker/v4"
	"github.com/google/uuid"
	"github.com/ohler55/ojg/jp"
)

var (
	ErrMissingArgument = errors.New("missing argument")
	ErrBadArgument     = errors.New("bad argument")
)

const (
	alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	digits       = "0123456789"
)

var countries = []string{
	"Argentina", "Brazil", "Canada", "Chile", "Colombia", "France", "Germany",
	"India", "Italy", "Japan", "Mexico", "Spain", "United Kingdom", "United States",
	"Venezuela",
}

func (r *Registry) catalogue() map[Kind]Func {
	return map[Kind]Func{
		KindUUID:          func(*models.Request, []any) (any, error) { return uuid.New().String(), nil },
		KindFullName:      fakeField(func(p *fakePerson) string { return strings.TrimSpace(p.FirstName + " " + p.LastName) }),
		KindFirstName:     fakeField(func(p *fakePerson) string { return p.FirstName }),
		KindLastName:      fakeField(func(p *fakePerson) string { return p.LastName }),
		KindEmail:         fakeField(func(c *fakeContact) string { return c.Email }),
		KindPhone:         fakeField(func(c *fakeContact) string { return c.Phone }),
		KindUsername:      fakeField(func(c *fakeContact) string { return c.Username }),
		KindWord:          fakeField(func(t *fakeText) string { return t.Word }),
		KindSentence:      fakeField(func(t *fakeText) string { return t.Sentence }),
		KindParagraph:     fakeField(func(t *fakeText) string { return t.Paragraph }),
		KindCity:          address(func(a faker.RealAddress) string { return a.City }),
		KindCountry:       func(*models.Request, []any) (any, error) { return countries[rand.IntN(len(countries))], nil },
		KindZip:           address(func(a faker.RealAddress) string { return a.PostalCode }),
		KindAddress:       address(func(a faker.RealAddress) string { return a.Address }),
		KindURL:           fakeField(func(n *fakeNetwork) string { return n.URL }),
		KindIPv4:          fakeField(func(n *fakeNetwork) string { return n.IPv4 }),
		KindInt:           randomInt,
		KindFloat:         randomFloat,
		KindBool:          func(*models.Request, []any) (any, error) { return rand.IntN(2) == 1, nil },
		KindPick:          pick,
		KindDate:          fakeField(func(t *fakeTime) string { return t.Date }),
		KindTimestamp:     fakeField(func(t *fakeTime) string { return t.Timestamp }),
		KindNow:           now,
		KindSequence:      r.sequence,
		KindString:        randomChars(alphanumeric),
		KindNumericString: randomChars(digits),
		KindInvalidUTF8:   invalidUTF8,
		KindState:         state,
		KindJSONPath:      jsonPath,
	}
}

// ErrEmptyValue reports a faker field that came back empty.
var ErrEmptyValue = errors.New("generator produced an empty value")

// fakeData fills v from its faker tags. Tests replace it to force failures.
var fakeData = func(v any) error {
	return faker.FakeData(v)
}

type fakePerson struct {
	FirstName string `faker:"first_name"`
	LastName  string `faker:"last_name"`
}

type fakeContact struct {
	Email    string `faker:"email"`
	Phone    string `faker:"phone_number"`
	Username string `faker:"username"`
}

type fakeText struct {
	Word      string `faker:"word"`
	Sentence  string `faker:"sentence"`
	Paragraph string `faker:"paragraph"`
}

type fakeNetwork struct {
	URL  string `faker:"url"`
	IPv4 string `faker:"ipv4"`
}

type fakeTime struct {
	Date      string `faker:"date"`
	Timestamp string `faker:"timestamp"`
}

// fakeField fills a T through faker and returns the field chosen by get.
// Faker errors and empty values are returned so the caller can report them.
func fakeField[T any](get func(*T) string) Func {
	return func(*models.Request, []any) (any, error) {
		var v T
		if err := fakeData(&v); err != nil {
			return nil, fmt.Errorf("faker: %w", err)
		}
		return nonEmpty(get(&v))
	}
}

func address(get func(faker.RealAddress) string) Func {
	return func(*models.Request, []any) (any, error) {
		return nonEmpty(get(faker.GetRealAddress()))
	}
}

func nonEmpty(s string) (any, error) {
	if strings.TrimSpace(s) == "" {
		return nil, ErrEmptyValue
	}
	return s, nil
}

// randomInt returns an integer in the inclusive range [min, max]. The
// defaults are 0 and 100.
func randomInt(_ *models.Request, args []any) (any, error) {
	lo, err := intArg(args, 0, 0)
	if err != nil {
		return nil, err
	}
	hi, err := intArg(args, 1, 100)
	if err != nil {
		return nil, err
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo + rand.IntN(hi-lo+1), nil
}

// randomFloat returns a float in [min, max) rounded to precision digits.
func randomFloat(_ *models.Request, args []any) (any, error) {
	lo, err := floatArg(args, 0, 0)
	if err != nil {
		return nil, err
	}
	hi, err := floatArg(args, 1, 1)
	if err != nil {
		return nil, err
	}
	precision, err := intArg(args, 2, 2)
	if err != nil {
		return nil, err
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	value := lo + rand.Float64()*(hi-lo)
	scale := math.Pow(10, float64(precision))
	return math.Round(value*scale) / scale, nil
}

func pick(_ *models.Request, args []any) (any, error) {
	choices := args
	if len(args) == 1 {
		if list, ok := args[0].([]any); ok {
			choices = list
		}
	}
	if len(choices) == 0 {
		return nil, fmt.Errorf("pick needs at least one choice: %w", ErrMissingArgument)
	}
	return choices[rand.IntN(len(choices))], nil
}

// now formats the current UTC time. The optional argument is a Go layout.
func now(_ *models.Request, args []any) (any, error) {
	layout := time.RFC3339
	if len(args) > 0 {
		if s, ok := args[0].(string); ok && s != "" {
			layout = s
		}
	}
	return time.Now().UTC().Format(layout), nil
}

func (r *Registry) sequence(_ *models.Request, args []any) (any, error) {
	name := "default"
	if len(args) > 0 {
		name = fmt.Sprint(args[0])
	}
	start, err := intArg(args, 1, 1)
	if err != nil {
		return nil, err
	}
	return r.sequences.Next(name, start), nil
}

func randomChars(alphabet string) Func {
	return func(_ *models.Request, args []any) (any, error) {
		length, err := intArg(args, 0, 10)
		if err != nil {
			return nil, err
		}
		if length < 0 {
			return nil, fmt.Errorf("length %d: %w", length, ErrBadArgument)
		}
		result := make([]byte, length)
		for i := range result {
			result[i] = alphabet[rand.IntN(len(alphabet))]
		}
		return string(result), nil
	}
}

// invalidUTF8 takes its kind from the utf8_type query parameter first, then
// from the first argument.
func invalidUTF8(req *models.Request, args []any) (any, error) {
	if req != nil {
		if kind := req.Query["utf8_type"]; kind != "" {
			return invalid.UTF8String(kind), nil
		}
	}
	if len(args) > 0 {
		if s, ok := args[0].(string); ok && s != "" {
			return invalid.UTF8String(s), nil
		}
	}
	return invalid.UTF8String("random"), nil
}

func state(req *models.Request, args []any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("state needs a key: %w", ErrMissingArgument)
	}
	var fallback any
	if len(args) > 1 {
		fallback = args[1]
	}
	if req == nil || req.State == nil {
		return fallback, nil
	}
	if value, ok := req.State.Get(fmt.Sprint(args[0])); ok {
		return value, nil
	}
	return fallback, nil
}

// jsonPath evaluates an expression against the request body. A single hit is
// returned as is, several as a list and none as nil.
func jsonPath(req *models.Request, args []any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("jsonpath needs an expression: %w", ErrMissingArgument)
	}
	expression, ok := args[0].(string)
	if !ok || expression == "" {
		return nil, fmt.Errorf("jsonpath expression %v: %w", args[0], ErrBadArgument)
	}
	if req == nil || req.Body == nil {
		return nil, nil
	}
	return Query(req.Body, expression)
}

// Query runs a JSONPath expression over data. Expressions without a leading
// "$" are treated as relative to the root.
func Query(data any, expression string) (any, error) {
	if !strings.HasPrefix(expression, "$") {
		expression = "$." + expression
	}
	path, err := jp.ParseString(expression)
	if err != nil {
		return nil, fmt.Errorf("parse jsonpath %q: %w", expression, err)
	}
	results := path.Get(data)
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

func intArg(args []any, i, fallback int) (int, error) {
	if i >= len(args) || args[i] == nil {
		return fallback, nil
	}
	switch v := args[i].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("argument %d %q: %w", i, v, ErrBadArgument)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("argument %d %v: %w", i, v, ErrBadArgument)
	}
}

func floatArg(args []any, i int, fallback float64) (float64, error) {
	if i >= len(args) || args[i] == nil {
		return fallback, nil
	}
	switch v := args[i].(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("argument %d %q: %w", i, v, ErrBadArgument)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("argument %d %v: %w", i, v, ErrBadArgument)
	}
}
