package rbac

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("rbac: invalid input")
	ErrNotFound     = errors.New("rbac: not found")
)

// Resource classes the service knows about. The set is closed: permission
// writes against any other key are rejected before persistence.
type Resource string

const (
	ResourceImage        Resource = "image"
	ResourceDocument     Resource = "document"
	ResourceConfidential Resource = "confidential"
)

// Action verbs shared by every resource class. The serialized permission
// token namespaces the verb per class, so view_doc and view_conf are
// unrelated grants even though the verb reads the same.
type Action string

const (
	ActionCreate Action = "create"
	ActionView   Action = "view"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

var resourceSuffix = map[Resource]string{
	ResourceImage:        "image",
	ResourceDocument:     "doc",
	ResourceConfidential: "conf",
}

var allActions = []Action{ActionCreate, ActionView, ActionUpdate, ActionDelete}

// Token serializes an (action, resource) pair into its namespaced string
// form, e.g. Token(ActionView, ResourceConfidential) == "view_conf".
func Token(action Action, resource Resource) string {
	return string(action) + "_" + resourceSuffix[resource]
}

// Resources lists the closed resource-class set in a stable order.
func Resources() []Resource {
	return []Resource{ResourceImage, ResourceDocument, ResourceConfidential}
}

// TokensFor returns the full action vocabulary for a resource class.
func TokensFor(resource Resource) []string {
	out := make([]string, 0, len(allActions))
	for _, a := range allActions {
		out = append(out, Token(a, resource))
	}
	return out
}

// ValidResource reports whether the key names a known resource class.
func ValidResource(r Resource) bool {
	_, ok := resourceSuffix[r]
	return ok
}

// ValidToken reports whether tok belongs to the closed vocabulary of the
// given resource class.
func ValidToken(resource Resource, tok string) bool {
	if !ValidResource(resource) {
		return false
	}
	for _, a := range allActions {
		if tok == Token(a, resource) {
			return true
		}
	}
	return false
}

// ParseResource converts a raw store key into a Resource, rejecting keys
// outside the closed set.
func ParseResource(raw string) (Resource, error) {
	r := Resource(raw)
	if !ValidResource(r) {
		return "", fmt.Errorf("%w: unknown resource class %q", ErrInvalidInput, raw)
	}
	return r, nil
}
