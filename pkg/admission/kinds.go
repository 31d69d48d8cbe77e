package admission

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/runtime/schema"
)

// KindSet is the set of object kinds whose trace context is managed. The
// zero value and an empty set match every kind.
type KindSet struct {
	kinds map[schema.GroupVersionKind]struct{}
}

// ParseKinds parses "group/version/Kind" and "version/Kind" entries. A
// leading slash ("/v1/ConfigMap") also selects the core group.
func ParseKinds(entries []string) (*KindSet, error) {
	set := &KindSet{kinds: make(map[schema.GroupVersionKind]struct{}, len(entries))}
	for _, entry := range entries {
		gvk, err := parseKind(entry)
		if err != nil {
			return nil, err
		}
		set.kinds[gvk] = struct{}{}
	}
	return set, nil
}

func parseKind(entry string) (schema.GroupVersionKind, error) {
	parts := strings.Split(strings.TrimSpace(entry), "/")
	var gvk schema.GroupVersionKind
	switch len(parts) {
	case 2:
		gvk = schema.GroupVersionKind{Version: parts[0], Kind: parts[1]}
	case 3:
		gvk = schema.GroupVersionKind{Group: parts[0], Version: parts[1], Kind: parts[2]}
	default:
		return gvk, fmt.Errorf("invalid kind %q: must be 'group/version/Kind' or 'version/Kind'", entry)
	}
	if gvk.Version == "" || gvk.Kind == "" {
		return gvk, fmt.Errorf("invalid kind %q: version and kind are required", entry)
	}
	return gvk, nil
}

// Matches reports whether gvk is traced.
func (s *KindSet) Matches(gvk schema.GroupVersionKind) bool {
	if s == nil || len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[gvk]
	return ok
}

// Len returns the number of configured kinds. Zero means every kind.
func (s *KindSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.kinds)
}
