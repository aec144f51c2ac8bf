package rbac

import (
	"encoding/json"
	"fmt"
	"sort"
)

// PermissionSet maps a resource class to the permission tokens granted for
// it. Instances are treated as immutable snapshots once parsed; grants and
// revokes go through WritePermissions with a whole replacement set.
type PermissionSet map[Resource][]string

// ParsePermissions decodes the serialized JSON permission map stored on a
// role into a typed set. Every key must be a known resource class and every
// token must belong to that class's vocabulary; anything else is treated as
// store corruption and rejected.
func ParsePermissions(raw []byte) (PermissionSet, error) {
	var obj map[string][]string
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: permissions are not a JSON object of string arrays: %v", ErrInvalidInput, err)
	}
	set := make(PermissionSet, len(obj))
	for key, tokens := range obj {
		resource, err := ParseResource(key)
		if err != nil {
			return nil, err
		}
		clean := make([]string, 0, len(tokens))
		seen := make(map[string]struct{}, len(tokens))
		for _, tok := range tokens {
			if !ValidToken(resource, tok) {
				return nil, fmt.Errorf("%w: permission %q is outside the %s vocabulary", ErrInvalidInput, tok, resource)
			}
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			clean = append(clean, tok)
		}
		if len(clean) > 0 {
			set[resource] = clean
		}
	}
	return set, nil
}

// Serialize encodes the set back to its canonical JSON form: resource keys
// and tokens sorted, empty classes dropped. Validation mirrors
// ParsePermissions so a set that round-trips is guaranteed well formed.
func (p PermissionSet) Serialize() ([]byte, error) {
	out := make(map[string][]string, len(p))
	for resource, tokens := range p {
		if !ValidResource(resource) {
			return nil, fmt.Errorf("%w: unknown resource class %q", ErrInvalidInput, resource)
		}
		clean := make([]string, 0, len(tokens))
		seen := make(map[string]struct{}, len(tokens))
		for _, tok := range tokens {
			if !ValidToken(resource, tok) {
				return nil, fmt.Errorf("%w: permission %q is outside the %s vocabulary", ErrInvalidInput, tok, resource)
			}
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			clean = append(clean, tok)
		}
		if len(clean) == 0 {
			continue
		}
		sort.Strings(clean)
		out[string(resource)] = clean
	}
	return json.Marshal(out)
}

// Contains reports whether the set grants the given token under any
// resource class.
func (p PermissionSet) Contains(tok string) bool {
	for _, tokens := range p {
		for _, t := range tokens {
			if t == tok {
				return true
			}
		}
	}
	return false
}
