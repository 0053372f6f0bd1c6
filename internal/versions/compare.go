package versions

import "github.com/Masterminds/semver/v3"

// CompareModuleVersions orders two module manifest versions.
// It returns a positive number when a is newer than b, a negative number when
// b is newer, and zero when they are equal. Valid semantic versions are compared
// as such; anything else falls back to plain string ordering, and an empty
// version always loses against a non-empty one.
func CompareModuleVersions(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return -1
	case b == "":
		return 1
	}

	av, errA := semver.NewVersion(a)
	bv, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		if a > b {
			return 1
		}
		return -1
	}

	return av.Compare(bv)
}
