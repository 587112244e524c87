package artifact

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the date component of generated ids.
const DateLayout = "20060102"

// NewID builds an id of the form {prefix}_{date}_{runID}_v{version}.
func NewID(prefix string, date time.Time, runID string, version int) string {
	return fmt.Sprintf("%s_%s_%s_v%d", prefix, date.UTC().Format(DateLayout), runID, version)
}

// ParseID splits id into its family name and numeric version. The family is
// everything before the final "_v<N>" suffix.
func ParseID(id string) (family string, version int, err error) {
	i := strings.LastIndex(id, "_v")
	if i <= 0 || i+2 >= len(id) {
		return "", 0, &Error{Kind: ErrInvalidID, ID: id, Msg: "missing _v<N> suffix"}
	}
	digits := id[i+2:]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", 0, &Error{Kind: ErrInvalidID, ID: id, Msg: "non-numeric version"}
		}
	}
	version, err = strconv.Atoi(digits)
	if err != nil || version < 1 {
		return "", 0, &Error{Kind: ErrInvalidID, ID: id, Msg: "version must be a positive integer"}
	}
	return id[:i], version, nil
}

// VersionID returns the id of the given version within family.
func VersionID(family string, version int) string {
	return fmt.Sprintf("%s_v%d", family, version)
}

// RunIDOf recovers the run id from an id shaped {prefix}_{date}_{runID}_v{N}.
// Run ids may themselves contain underscores.
func RunIDOf(id string) (string, error) {
	family, _, err := ParseID(id)
	if err != nil {
		return "", err
	}
	parts := strings.SplitN(family, "_", 3)
	if len(parts) < 3 || parts[2] == "" {
		return "", &Error{Kind: ErrInvalidID, ID: id, Msg: "no run id component"}
	}
	return parts[2], nil
}

// SortIDs orders ids by family name and then by numeric version, so that
// "x_v2" precedes "x_v10". Ids without a version suffix sort after the rest
// in plain string order.
func SortIDs(ids []string) {
	type key struct {
		family  string
		version int
		ok      bool
	}
	keys := make(map[string]key, len(ids))
	for _, id := range ids {
		f, v, err := ParseID(id)
		keys[id] = key{family: f, version: v, ok: err == nil}
	}
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := keys[ids[i]], keys[ids[j]]
		if a.ok != b.ok {
			return a.ok
		}
		if !a.ok {
			return ids[i] < ids[j]
		}
		if a.family != b.family {
			return a.family < b.family
		}
		return a.version < b.version
	})
}
