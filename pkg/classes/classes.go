// Package classes loads class names from a dataset descriptor and resolves
// user input to class ids.
package classes

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Willayat060/data-annotating-tool/internal/errors"
)

const (
	// DefaultDescriptor is the descriptor file name looked up first.
	DefaultDescriptor = "data_cleaned.yaml"
	// DefaultCount is the size of the placeholder list used without a descriptor.
	DefaultCount = 100
	// Placeholder names a gap in an id-keyed descriptor.
	Placeholder = "?"
	// Unknown is displayed for ids beyond the list.
	Unknown = "???"
)

// List is an ordered list of class names indexed by class id.
type List []string

// Defaults returns n placeholder names "Class 0" … "Class n-1".
func Defaults(n int) List {
	l := make(List, n)
	for i := range l {
		l[i] = fmt.Sprintf("Class %d", i)
	}
	return l
}

type descriptor struct {
	Names yaml.Node `yaml:"names"`
}

// Parse reads the names key of a YAML descriptor. names may be a list or an
// id-to-name mapping; mapping gaps are filled with Placeholder.
func Parse(data []byte) (List, error) {
	var d descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, errors.New(err).
			Component("classes").
			Category(errors.CategoryFileParsing).
			Build()
	}

	switch d.Names.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := d.Names.Decode(&names); err != nil {
			return nil, parseError(err)
		}
		return List(names), nil
	case yaml.MappingNode:
		var byID map[int]string
		if err := d.Names.Decode(&byID); err != nil {
			return nil, parseError(err)
		}
		if len(byID) == 0 {
			return List{}, nil
		}
		maxID := -1
		for id := range byID {
			if id < 0 {
				return nil, parseError(fmt.Errorf("negative class id %d", id))
			}
			maxID = max(maxID, id)
		}
		l := make(List, maxID+1)
		for i := range l {
			l[i] = Placeholder
		}
		for id, name := range byID {
			l[id] = name
		}
		return l, nil
	case 0:
		return nil, parseError(fmt.Errorf("descriptor has no names key"))
	default:
		return nil, parseError(fmt.Errorf("names must be a list or a mapping"))
	}
}

func parseError(err error) error {
	return errors.Newf("invalid class names: %w", err).
		Component("classes").
		Category(errors.CategoryFileParsing).
		Build()
}

// Load reads and parses the descriptor at path.
func Load(path string) (List, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("classes").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	l, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// FindDescriptor looks for name in dir, then in dir's parent, then falls back
// to the first *.yaml file in dir. It returns "" when nothing is found.
func FindDescriptor(dir, name string) string {
	if name != "" {
		for _, p := range []string{filepath.Join(dir, name), filepath.Join(dir, "..", name)} {
			if info, err := os.Stat(p); err == nil && !info.IsDir() {
				return filepath.Clean(p)
			}
		}
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil || len(matches) == 0 {
		return ""
	}
	slices.Sort(matches)
	return matches[0]
}

// Lookup returns the name of id and whether it is in the list.
func (l List) Lookup(id int) (string, bool) {
	if id < 0 || id >= len(l) {
		return "", false
	}
	return l[id], true
}

// Name returns the name of id, or Placeholder when id is not in the list.
func (l List) Name(id int) string {
	if n, ok := l.Lookup(id); ok {
		return n
	}
	return Placeholder
}

// Label formats id as "[id] name" for display.
func (l List) Label(id int) string {
	if n, ok := l.Lookup(id); ok {
		return fmt.Sprintf("[%d] %s", id, n)
	}
	return strconv.Itoa(id)
}

// Resolve maps user input to a class id. All-digit input is taken as the id
// itself; anything else must match a name case-insensitively.
func (l List) Resolve(input string) (int, error) {
	s := strings.TrimSpace(input)
	if s != "" && isDigits(s) {
		id, err := strconv.Atoi(s)
		if err == nil {
			return id, nil
		}
	}
	if s != "" {
		for i, n := range l {
			if strings.EqualFold(n, s) {
				return i, nil
			}
		}
	}
	return -1, errors.Newf("%q: %w", input, errors.ErrUnresolvedClass).
		Component("classes").
		Category(errors.CategoryValidation).
		Context("input", input).
		Build()
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Candidate is one entry of a class suggestion list.
type Candidate struct {
	ID   int
	Name string
}

func (c Candidate) String() string {
	return fmt.Sprintf("[%d] %s", c.ID, c.Name)
}

// Suggest returns the classes whose id or lower-cased name contains filter.
// An empty filter returns every class.
func (l List) Suggest(filter string) []Candidate {
	f := strings.ToLower(strings.TrimSpace(filter))
	var out []Candidate
	for i, n := range l {
		if strings.Contains(strconv.Itoa(i), f) || strings.Contains(strings.ToLower(n), f) {
			out = append(out, Candidate{ID: i, Name: n})
		}
	}
	return out
}
