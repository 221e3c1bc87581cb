package jdkversion

import (
	"fmt"
	"strconv"
	"strings"
)

// Streams returns the release-stream keys the version ships in. Two issues
// belong to the same stream iff their versions produce a common key.
//
// For feature >= 9 the update component decides: no update means the version
// is still in the feature-release train, updates 1 and 2 ship in both the
// Oracle and the OpenJDK update streams, later updates ship in exactly one
// of them depending on the "oracle" opt (with a BPR stream when a patch
// component is present). For 7 and 8 the resolved-in-build number decides.
func (v Version) Streams() []string {
	if v.Feature >= 9 {
		feature := strconv.Itoa(v.Feature)
		switch {
		case v.Update == 0:
			return []string{
				"features",
				feature + "+updates-oracle",
				feature + "+updates-openjdk",
			}
		case v.Update <= 2:
			return []string{
				feature + "+updates-oracle",
				feature + "+updates-openjdk",
			}
		case v.Opt == "oracle":
			if v.Patch != 0 {
				return []string{feature + "+bpr"}
			}
			return []string{feature + "+updates-oracle"}
		default:
			return []string{feature + "+updates-openjdk"}
		}
	}

	if v.Feature == 7 || v.Feature == 8 {
		feature := strconv.Itoa(v.Feature)
		if v.ResolvedInBuild == "" {
			return []string{feature}
		}
		n, ok := buildNumber(v.ResolvedInBuild)
		if !ok {
			// "team" and other unnumbered builds never join a stream.
			return nil
		}
		switch {
		case n < 31:
			return []string{feature}
		case n < 60:
			return []string{feature + "+bpr"}
		default:
			return nil
		}
	}

	return nil
}

// buildNumber extracts N from a "bNN" resolved-in-build value.
func buildNumber(resolved string) (int, bool) {
	if !strings.HasPrefix(resolved, "b") {
		return 0, false
	}
	n, err := strconv.Atoi(resolved[1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// ShouldReplaceBuild decides whether candidate may overwrite current as an
// issue's resolved-in-build value. "team" never wins over anything set;
// "master" only replaces "team"; a numbered build is replaced only by a
// strictly lower-numbered one; other values replace only unset or equal
// values.
func ShouldReplaceBuild(current, candidate string) bool {
	if candidate == current {
		return false
	}
	if current == "" {
		return candidate != ""
	}
	switch candidate {
	case "team":
		return false
	case "master":
		return current == "team"
	}
	cn, cok := buildNumber(candidate)
	on, ook := buildNumber(current)
	if cok && ook {
		return cn < on
	}
	if cok {
		return current == "team" || current == "master"
	}
	return false
}

// FormatBuild renders a build number in the conventional "bNN" form.
func FormatBuild(n int) string {
	return fmt.Sprintf("b%02d", n)
}
