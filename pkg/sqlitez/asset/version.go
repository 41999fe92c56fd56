package asset

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
)

var scriptPattern = regexp.MustCompile(`^.*_upgrade_([0-9]+)-([0-9]+).*$`)

// ParseScriptName extracts the versions from a name such as
// "databases/app.db_upgrade_2-3.sql".
func ParseScriptName(name string) (from, to int, err error) {
	m := scriptPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %s", ErrInvalidScriptName, name)
	}
	if from, err = strconv.Atoi(m[1]); err != nil {
		return 0, 0, fmt.Errorf("%w: %s", ErrInvalidScriptName, name)
	}
	if to, err = strconv.Atoi(m[2]); err != nil {
		return 0, 0, fmt.Errorf("%w: %s", ErrInvalidScriptName, name)
	}
	return from, to, nil
}

// CompareVersions orders two upgrade script names by their from version,
// then by their to version.
func CompareVersions(a, b string) (int, error) {
	aFrom, aTo, err := ParseScriptName(a)
	if err != nil {
		return 0, err
	}
	bFrom, bTo, err := ParseScriptName(b)
	if err != nil {
		return 0, err
	}
	switch {
	case aFrom != bFrom:
		return cmpInt(aFrom, bFrom), nil
	default:
		return cmpInt(aTo, bTo), nil
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// SortScripts sorts names in place with CompareVersions. Nothing is
// reordered when a name does not parse.
func SortScripts(names []string) error {
	for _, n := range names {
		if _, _, err := ParseScriptName(n); err != nil {
			return err
		}
	}
	sort.SliceStable(names, func(i, j int) bool {
		c, _ := CompareVersions(names[i], names[j])
		return c < 0
	})
	return nil
}

// scriptName is the asset path of the script upgrading from a to b.
func (h *Helper) scriptName(a, b int) string {
	return path.Join(h.opts.AssetDir, fmt.Sprintf("%s_upgrade_%d-%d.sql", h.opts.Name, a, b))
}
