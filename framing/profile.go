package framing

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	yaml "gopkg.in/yaml.v3"

	"github.com/moriyoshi/bytestream/internal/expand"
)

type Mode string

const (
	// ModeLines splits at "\n" or "\r\n" and decodes each line.
	ModeLines Mode = "lines"
	// ModeDelimiter splits at an arbitrary byte sequence.
	ModeDelimiter Mode = "delimiter"
	// ModeByte splits at a single byte; a frame must fit in the buffer.
	ModeByte Mode = "byte"
	// ModeFixed cuts records of exactly Size bytes.
	ModeFixed Mode = "fixed"
)

// Profile describes how a stream is cut into frames.
type Profile struct {
	Name       string
	Mode       Mode
	Delimiter  []byte
	Size       int
	Encoding   string
	BufferSize int
}

func (p *Profile) validate() error {
	switch p.Mode {
	case ModeLines:
	case ModeDelimiter:
		if len(p.Delimiter) == 0 {
			return fmt.Errorf("%w %q: delimiter must not be empty", ErrInvalidProfile, p.Name)
		}
	case ModeByte:
		if len(p.Delimiter) != 1 {
			return fmt.Errorf("%w %q: delimiter must be a single byte", ErrInvalidProfile, p.Name)
		}
	case ModeFixed:
		if p.Size <= 0 {
			return fmt.Errorf("%w %q: size must be positive", ErrInvalidProfile, p.Name)
		}
	default:
		return fmt.Errorf("%w %q: unknown mode %q", ErrInvalidProfile, p.Name, p.Mode)
	}
	if p.BufferSize < 0 {
		return fmt.Errorf("%w %q: negative buffer size", ErrInvalidProfile, p.Name)
	}
	return nil
}

func stringValue(v map[string]interface{}, key string) (string, bool, error) {
	x, ok := v[key]
	if !ok {
		return "", false, nil
	}
	s, ok := x.(string)
	if !ok {
		return "", false, fmt.Errorf("key '%s' is not a string", key)
	}
	s, err := expand.Unescape(expand.Expand(s, expand.Env))
	if err != nil {
		return "", false, fmt.Errorf("key '%s': %w", key, err)
	}
	return s, true, nil
}

func intValue(v map[string]interface{}, key string) (int, error) {
	switch x := v[key].(type) {
	case nil:
		return 0, nil
	case int:
		return x, nil
	case float64:
		if x != float64(int(x)) {
			return 0, fmt.Errorf("key '%s' is not an integer", key)
		}
		return int(x), nil
	default:
		return 0, fmt.Errorf("key '%s' is not a number", key)
	}
}

// UnmarshalStructure fills p from a decoded JSON or YAML object. String
// values go through ${env.NAME} expansion and backslash escapes.
func (p *Profile) UnmarshalStructure(v map[string]interface{}) error {
	var np Profile
	name, _, err := stringValue(v, "name")
	if err != nil {
		return err
	}
	np.Name = name
	mode, ok, err := stringValue(v, "mode")
	if err != nil {
		return err
	}
	np.Mode = ModeLines
	if ok {
		np.Mode = Mode(strings.ToLower(mode))
	}
	d, _, err := stringValue(v, "delimiter")
	if err != nil {
		return err
	}
	if d != "" {
		np.Delimiter = []byte(d)
	}
	np.Encoding, _, err = stringValue(v, "encoding")
	if err != nil {
		return err
	}
	np.Size, err = intValue(v, "size")
	if err != nil {
		return err
	}
	np.BufferSize, err = intValue(v, "buffer_size")
	if err != nil {
		return err
	}
	*p = np
	return nil
}

func (p *Profile) UnmarshalJSON(b []byte) error {
	var v interface{}
	err := json.Unmarshal(b, &v)
	if err != nil {
		return err
	}
	if v, ok := v.(map[string]interface{}); ok {
		return p.UnmarshalStructure(v)
	} else {
		return fmt.Errorf("profile is not an object")
	}
}

// Profiles is a set of profiles. It unmarshals from either a list of
// objects carrying a "name" key or an object mapping names to profiles.
type Profiles []Profile

func (ps *Profiles) UnmarshalJSON(b []byte) error {
	var v interface{}
	err := json.Unmarshal(b, &v)
	if err != nil {
		return err
	}
	return ps.unmarshalInner(v)
}

func (ps *Profiles) UnmarshalYAML(n *yaml.Node) error {
	var v interface{}
	err := n.Decode(&v)
	if err != nil {
		return err
	}
	return ps.unmarshalInner(v)
}

func (ps *Profiles) unmarshalInner(v interface{}) error {
	switch v := v.(type) {
	case map[string]interface{}:
		names := make([]string, 0, len(v))
		for name := range v {
			names = append(names, name)
		}
		slices.Sort(names)
		_ps := make([]Profile, 0, len(v))
		for _, name := range names {
			if body, ok := v[name].(map[string]interface{}); !ok {
				return fmt.Errorf("value for key %q is not an object", name)
			} else {
				var p Profile
				err := p.UnmarshalStructure(body)
				if err != nil {
					return fmt.Errorf("profile %q: %w", name, err)
				}
				p.Name = expand.Expand(name, expand.Env)
				_ps = append(_ps, p)
			}
		}
		*ps = _ps
	case []interface{}:
		_ps := make([]Profile, 0, len(v))
		for _, body := range v {
			if body, ok := body.(map[string]interface{}); !ok {
				return fmt.Errorf("profile is not an object")
			} else {
				var p Profile
				err := p.UnmarshalStructure(body)
				if err != nil {
					return err
				}
				_ps = append(_ps, p)
			}
		}
		*ps = _ps
	default:
		return fmt.Errorf("profiles is not an object or an array")
	}
	return nil
}

// DefaultProfiles returns the profile set used when none is configured: a
// single lines profile named "default".
func DefaultProfiles() Profiles {
	return Profiles{{Name: DefaultProfileName, Mode: ModeLines}}
}

const DefaultProfileName = "default"
