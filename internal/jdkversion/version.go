// Package jdkversion models JDK fix versions and the release streams they
// ship in. A version is an ordered tuple of numeric components (feature,
// interim, update, patch) with an optional "-opt" suffix, e.g. "17.0.2",
// "11.0.9.1-oracle". The legacy "8u292" form maps onto the same tuple.
package jdkversion

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a parsed JDK fix version. ResolvedInBuild travels with the
// version because the 7/8 stream rules depend on it.
type Version struct {
	Feature         int
	Interim         int
	Update          int
	Patch           int
	Opt             string
	ResolvedInBuild string
}

// IsScratch reports whether raw names no real version: empty, any "tbd"
// variant, or "unknown".
func IsScratch(raw string) bool {
	v := strings.ToLower(strings.TrimSpace(raw))
	return v == "" || v == "unknown" || strings.HasPrefix(v, "tbd")
}

// Parse parses a fix-version string. Supported forms are dotted numeric
// components with an optional "-opt" suffix ("17", "17.0.2", "11.0.9.1-oracle")
// and the legacy update form "8u292". Pool and open placeholders
// ("17-pool", "17-open") parse with the placeholder kept as Opt.
func Parse(raw string) (Version, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Version{}, fmt.Errorf("empty version")
	}

	var opt string
	if i := strings.IndexByte(s, '-'); i >= 0 {
		opt = s[i+1:]
		s = s[:i]
	}

	// Legacy "NuMM" update form.
	if i := strings.IndexByte(s, 'u'); i >= 0 {
		feature, err := strconv.Atoi(s[:i])
		if err != nil {
			return Version{}, fmt.Errorf("parse version %q: %w", raw, err)
		}
		update, err := strconv.Atoi(s[i+1:])
		if err != nil {
			return Version{}, fmt.Errorf("parse version %q: %w", raw, err)
		}
		return Version{Feature: feature, Update: update, Opt: opt}, nil
	}

	parts := strings.Split(s, ".")
	if len(parts) > 4 {
		return Version{}, fmt.Errorf("parse version %q: too many components", raw)
	}
	nums := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, fmt.Errorf("parse version %q: %w", raw, err)
		}
		nums[i] = n
	}
	return Version{
		Feature: nums[0],
		Interim: nums[1],
		Update:  nums[2],
		Patch:   nums[3],
		Opt:     opt,
	}, nil
}

func (v Version) String() string {
	components := []int{v.Feature, v.Interim, v.Update, v.Patch}
	last := 0
	for i, c := range components {
		if c != 0 {
			last = i
		}
	}
	parts := make([]string, 0, last+1)
	for i := 0; i <= last; i++ {
		parts = append(parts, strconv.Itoa(components[i]))
	}
	s := strings.Join(parts, ".")
	if v.Opt != "" {
		s += "-" + v.Opt
	}
	return s
}

// Compare orders versions by numeric components, feature first. Opt does not
// participate in the ordering.
func (v Version) Compare(other Version) int {
	pairs := [4][2]int{
		{v.Feature, other.Feature},
		{v.Interim, other.Interim},
		{v.Update, other.Update},
		{v.Patch, other.Patch},
	}
	for _, p := range pairs {
		if p[0] != p[1] {
			if p[0] < p[1] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// LessThan reports whether v orders before other.
func (v Version) LessThan(other Version) bool {
	return v.Compare(other) < 0
}
