package generator

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"mimic/internal/models"
)

// Func produces one value for a placeholder. args are the already-coerced
// placeholder arguments.
type Func func(req *models.Request, args []any) (any, error)

var (
	ErrEmptyName    = errors.New("generator name is empty")
	ErrNilGenerator = errors.New("generator func is nil")
	ErrBuiltinName  = errors.New("generator name is reserved by a built-in")
)

// Kind enumerates the built-in generators.
type Kind int

const (
	KindUUID Kind = iota
	KindFullName
	KindFirstName
	KindLastName
	KindEmail
	KindPhone
	KindUsername
	KindWord
	KindSentence
	KindParagraph
	KindCity
	KindCountry
	KindZip
	KindAddress
	KindURL
	KindIPv4
	KindInt
	KindFloat
	KindBool
	KindPick
	KindDate
	KindTimestamp
	KindNow
	KindSequence
	KindString
	KindNumericString
	KindInvalidUTF8
	KindState
	KindJSONPath
)

var kindNames = map[Kind]string{
	KindUUID:          "uuid",
	KindFullName:      "fullName",
	KindFirstName:     "firstName",
	KindLastName:      "lastName",
	KindEmail:         "email",
	KindPhone:         "phone",
	KindUsername:      "username",
	KindWord:          "word",
	KindSentence:      "sentence",
	KindParagraph:     "paragraph",
	KindCity:          "city",
	KindCountry:       "country",
	KindZip:           "zip",
	KindAddress:       "address",
	KindURL:           "url",
	KindIPv4:          "ipv4",
	KindInt:           "int",
	KindFloat:         "float",
	KindBool:          "bool",
	KindPick:          "pick",
	KindDate:          "date",
	KindTimestamp:     "timestamp",
	KindNow:           "now",
	KindSequence:      "sequence",
	KindString:        "string",
	KindNumericString: "numericString",
	KindInvalidUTF8:   "invalidUTF8",
	KindState:         "state",
	KindJSONPath:      "jsonpath",
}

var kindsByName = func() map[string]Kind {
	out := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		out[name] = k
	}
	return out
}()

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind resolves the name of a built-in generator.
func ParseKind(name string) (Kind, bool) {
	k, ok := kindsByName[name]
	return k, ok
}

// Registry resolves placeholder identifiers to generators. Built-ins are
// fixed; extensions are added with Register.
type Registry struct {
	mu         sync.RWMutex
	builtins   map[Kind]Func
	extensions map[string]Func
	sequences  *Sequences
}

func NewRegistry() *Registry {
	r := &Registry{
		extensions: make(map[string]Func),
		sequences:  NewSequences(),
	}
	r.builtins = r.catalogue()
	return r
}

// Register adds a named extension generator.
func (r *Registry) Register(name string, fn Func) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if fn == nil {
		return fmt.Errorf("%s: %w", name, ErrNilGenerator)
	}
	if _, ok := ParseKind(name); ok {
		return fmt.Errorf("%s: %w", name, ErrBuiltinName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.extensions[name] = fn
	return nil
}

// Unregister removes an extension. Built-ins cannot be removed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.extensions[name]; !ok {
		return false
	}
	delete(r.extensions, name)
	return true
}

// Lookup returns the generator for name, built-ins first.
func (r *Registry) Lookup(name string) (Func, bool) {
	if k, ok := ParseKind(name); ok {
		return r.builtins[k], true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.extensions[name]
	return fn, ok
}

// Names lists every resolvable identifier, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(kindNames)+len(r.extensions))
	for _, name := range kindNames {
		names = append(names, name)
	}
	for name := range r.extensions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Sequences() *Sequences {
	return r.sequences
}
