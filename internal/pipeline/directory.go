package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// Leaf is one directory page: a faculty URL, or a department URL within a faculty.
type Leaf struct {
	Faculty    string
	Department string
	URL        string
}

// Directory is one university's faculty/department tree, flattened to leaves in
// the order they appear in the configuration file.
type Directory []Leaf

// Faculties counts the distinct faculties in d.
func (d Directory) Faculties() int {
	seen := make(map[string]struct{})
	for _, l := range d {
		seen[l.Faculty] = struct{}{}
	}
	return len(seen)
}

// Catalog maps university names to their directories, keeping file order.
type Catalog struct {
	names []string
	dirs  map[string]Directory
	raw   map[string]json.RawMessage
}

// LoadCatalog reads a universities JSON file.
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open directory config: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseCatalog(f)
}

// ParseCatalog decodes {"University": {"Faculty": "url" | {"Department": "url"}}}.
func ParseCatalog(r io.Reader) (*Catalog, error) {
	dec := json.NewDecoder(r)
	if err := expectDelim(dec, '{'); err != nil {
		return nil, fmt.Errorf("directory config: %w", err)
	}
	c := &Catalog{dirs: make(map[string]Directory), raw: make(map[string]json.RawMessage)}
	for dec.More() {
		name, err := stringToken(dec)
		if err != nil {
			return nil, fmt.Errorf("directory config: %w", err)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("directory config %q: %w", name, err)
		}
		dir, err := ParseDirectory(raw)
		if err != nil {
			return nil, fmt.Errorf("directory config %q: %w", name, err)
		}
		if _, dup := c.dirs[name]; !dup {
			c.names = append(c.names, name)
		}
		c.dirs[name] = dir
		c.raw[name] = raw
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, fmt.Errorf("directory config: %w", err)
	}
	return c, nil
}

// Names lists the universities in file order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Directory returns the directory configured for name.
func (c *Catalog) Directory(name string) (Directory, bool) {
	d, ok := c.dirs[name]
	return d, ok
}

// Raw returns the configuration of name exactly as it appeared in the file.
func (c *Catalog) Raw(name string) []byte {
	return c.raw[name]
}

// ParseDirectory decodes one university's faculty mapping, preserving key order.
func ParseDirectory(data []byte) (Directory, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	var dir Directory
	for dec.More() {
		faculty, err := stringToken(dec)
		if err != nil {
			return nil, err
		}
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("faculty %q: %w", faculty, err)
		}
		switch v := tok.(type) {
		case string:
			dir = append(dir, Leaf{Faculty: faculty, URL: v})
		case json.Delim:
			if v != '{' {
				return nil, fmt.Errorf("faculty %q: expected a URL or a department mapping", faculty)
			}
			for dec.More() {
				department, err := stringToken(dec)
				if err != nil {
					return nil, fmt.Errorf("faculty %q: %w", faculty, err)
				}
				url, err := stringToken(dec)
				if err != nil {
					return nil, fmt.Errorf("faculty %q department %q: %w", faculty, department, err)
				}
				dir = append(dir, Leaf{Faculty: faculty, Department: department, URL: url})
			}
			if err := expectDelim(dec, '}'); err != nil {
				return nil, fmt.Errorf("faculty %q: %w", faculty, err)
			}
		default:
			return nil, fmt.Errorf("faculty %q: expected a URL or a department mapping", faculty)
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return dir, nil
}

var errUnexpectedToken = errors.New("unexpected token")

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w %v, want %q", errUnexpectedToken, tok, want)
	}
	return nil
}

func stringToken(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	s, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("%w %v, want string", errUnexpectedToken, tok)
	}
	return s, nil
}
