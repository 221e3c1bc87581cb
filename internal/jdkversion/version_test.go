package jdkversion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		raw  string
		want Version
	}{
		{"17", Version{Feature: 17}},
		{"17.0.2", Version{Feature: 17, Update: 2}},
		{"11.0.9.1", Version{Feature: 11, Update: 9, Patch: 1}},
		{"11.0.9.1-oracle", Version{Feature: 11, Update: 9, Patch: 1, Opt: "oracle"}},
		{"8u292", Version{Feature: 8, Update: 292}},
		{"17-pool", Version{Feature: 17, Opt: "pool"}},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := Parse(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "x.y", "17.0.2.1.9", "u92"} {
		_, err := Parse(raw)
		assert.Error(t, err, raw)
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, raw := range []string{"17", "17.0.2", "11.0.9.1-oracle"} {
		v, err := Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, v.String())
	}
}

func TestCompare(t *testing.T) {
	lt := func(a, b string) {
		va, err := Parse(a)
		require.NoError(t, err)
		vb, err := Parse(b)
		require.NoError(t, err)
		assert.True(t, va.LessThan(vb), "%s < %s", a, b)
		assert.False(t, vb.LessThan(va), "%s >= %s", b, a)
	}
	lt("11.0.9", "11.0.10")
	lt("11.0.9", "17")
	lt("17", "17.0.1")
	lt("11.0.9", "11.0.9.1")

	a, _ := Parse("17.0.2-oracle")
	b, _ := Parse("17.0.2")
	assert.Equal(t, 0, a.Compare(b))
}

func TestIsScratch(t *testing.T) {
	assert.True(t, IsScratch(""))
	assert.True(t, IsScratch("tbd"))
	assert.True(t, IsScratch("tbd_minor"))
	assert.True(t, IsScratch("unknown"))
	assert.False(t, IsScratch("17"))
}

func TestStreamsFeatureRelease(t *testing.T) {
	v, err := Parse("17")
	require.NoError(t, err)
	assert.Equal(t, []string{"features", "17+updates-oracle", "17+updates-openjdk"}, v.Streams())
}

func TestStreamsEarlyUpdates(t *testing.T) {
	for _, raw := range []string{"17.0.1", "17.0.2"} {
		v, err := Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, []string{"17+updates-oracle", "17+updates-openjdk"}, v.Streams(), raw)
	}
}

func TestStreamsLateUpdates(t *testing.T) {
	open, err := Parse("11.0.9")
	require.NoError(t, err)
	assert.Equal(t, []string{"11+updates-openjdk"}, open.Streams())

	oracle, err := Parse("11.0.9-oracle")
	require.NoError(t, err)
	assert.Equal(t, []string{"11+updates-oracle"}, oracle.Streams())

	bpr, err := Parse("11.0.9.1-oracle")
	require.NoError(t, err)
	assert.Equal(t, []string{"11+bpr"}, bpr.Streams())
}

func TestStreamsLegacy(t *testing.T) {
	base, err := Parse("8u292")
	require.NoError(t, err)
	assert.Equal(t, []string{"8"}, base.Streams())

	early := base
	early.ResolvedInBuild = "b07"
	assert.Equal(t, []string{"8"}, early.Streams())

	bpr := base
	bpr.ResolvedInBuild = "b31"
	assert.Equal(t, []string{"8+bpr"}, bpr.Streams())

	late := base
	late.ResolvedInBuild = "b60"
	assert.Nil(t, late.Streams())

	team := base
	team.ResolvedInBuild = "team"
	assert.Nil(t, team.Streams())
}

func TestShouldReplaceBuild(t *testing.T) {
	tests := []struct {
		current, candidate string
		want               bool
	}{
		{"", "team", true},
		{"team", "team", false},
		{"team", "master", true},
		{"master", "team", false},
		{"master", "master", false},
		{"b12", "b07", true},
		{"b07", "b12", false},
		{"b12", "team", false},
		{"team", "b12", true},
		{"", "b12", true},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ShouldReplaceBuild(tc.current, tc.candidate),
			"current=%q candidate=%q", tc.current, tc.candidate)
	}
}
