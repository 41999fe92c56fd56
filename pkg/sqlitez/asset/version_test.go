package asset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScriptName(t *testing.T) {
	from, to, err := ParseScriptName("databases/app.db_upgrade_12-13.sql")
	require.NoError(t, err)
	assert.Equal(t, 12, from)
	assert.Equal(t, 13, to)

	_, _, err = ParseScriptName("databases/app.db_patch_1-2.sql")
	assert.ErrorIs(t, err, ErrInvalidScriptName)
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"x_upgrade_1-2.sql", "x_upgrade_2-3.sql", -1},
		{"x_upgrade_2-3.sql", "x_upgrade_1-2.sql", 1},
		{"x_upgrade_1-2.sql", "x_upgrade_1-3.sql", -1},
		{"x_upgrade_1-3.sql", "x_upgrade_1-2.sql", 1},
		{"a_upgrade_4-5.sql", "b_upgrade_4-5.sql", 0},
		{"x_upgrade_9-10.sql", "x_upgrade_10-11.sql", -1},
	}
	for _, tt := range tests {
		got, err := CompareVersions(tt.a, tt.b)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s vs %s", tt.a, tt.b)
	}

	_, err := CompareVersions("x_upgrade_1-2.sql", "readme.txt")
	assert.ErrorIs(t, err, ErrInvalidScriptName)
	_, err = CompareVersions("readme.txt", "x_upgrade_1-2.sql")
	assert.ErrorIs(t, err, ErrInvalidScriptName)
}

func TestSortScripts(t *testing.T) {
	names := []string{"d_upgrade_10-11.sql", "d_upgrade_2-4.sql", "d_upgrade_1-2.sql", "d_upgrade_4-10.sql"}
	require.NoError(t, SortScripts(names))
	assert.Equal(t, []string{"d_upgrade_1-2.sql", "d_upgrade_2-4.sql", "d_upgrade_4-10.sql", "d_upgrade_10-11.sql"}, names)

	bad := []string{"d_upgrade_2-3.sql", "oops.sql", "d_upgrade_1-2.sql"}
	assert.ErrorIs(t, SortScripts(bad), ErrInvalidScriptName)
	assert.Equal(t, "d_upgrade_2-3.sql", bad[0], "left untouched on error")
}
