package obs

import "strings"

// Sub-resources whose parent segment is an entity identifier.
var scopedSuffixes = map[string]struct{}{
	"phase":       {},
	"teams":       {},
	"permissions": {},
	"members":     {},
	"roles":       {},
}

// CanonicalPath collapses entity identifiers in well-known API paths so that
// metric label cardinality stays bounded. Unknown shapes pass through as-is.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 || parts[0] != "v1" {
		return path
	}
	switch parts[1] {
	case "projects", "teams", "roles", "users":
	default:
		return path
	}
	out := make([]string, len(parts))
	copy(out, parts)
	switch len(parts) {
	case 3:
		out[2] = ":id"
	case 4:
		if _, ok := scopedSuffixes[parts[3]]; !ok {
			return path
		}
		out[2] = ":id"
	case 5:
		if parts[3] != "members" {
			return path
		}
		out[2] = ":id"
		out[4] = ":id"
	default:
		return path
	}
	return "/" + strings.Join(out, "/")
}
