package pattern_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localsearchd/localsearchd/internal/pattern"
)

func TestShouldIncludeNoPatterns(t *testing.T) {
	m, err := pattern.New(nil, nil)
	require.NoError(t, err)
	assert.True(t, m.ShouldInclude("/home/user/docs/report.pdf"))
}

func TestShouldIncludeExcludeMatchesFullPath(t *testing.T) {
	m, err := pattern.New(nil, []string{"**/node_modules/**"})
	require.NoError(t, err)
	assert.False(t, m.ShouldInclude("/repo/node_modules/pkg/index.js"))
	assert.True(t, m.ShouldInclude("/repo/src/index.js"))
}

func TestShouldIncludeIncludeMatchesBasenameOnly(t *testing.T) {
	m, err := pattern.New([]string{"*.md"}, nil)
	require.NoError(t, err)
	assert.True(t, m.ShouldInclude("/repo/docs/readme.md"))
	assert.False(t, m.ShouldInclude("/repo/docs/readme.txt"))
}

func TestShouldIncludeExcludeWinsOverInclude(t *testing.T) {
	m, err := pattern.New([]string{"*.md"}, []string{"**/archive/**"})
	require.NoError(t, err)
	assert.False(t, m.ShouldInclude("/repo/archive/readme.md"))
}

func TestNewRejectsUnparseablePattern(t *testing.T) {
	_, err := m(t, []string{"["}, nil)
	require.Error(t, err)
}

func m(t *testing.T, include, exclude []string) (*pattern.Matcher, error) {
	t.Helper()
	return pattern.New(include, exclude)
}

func TestShouldIncludeEmptyIncludeListAdmitsAll(t *testing.T) {
	m, err := pattern.New([]string{}, []string{"**/*.tmp"})
	require.NoError(t, err)
	assert.True(t, m.ShouldInclude("/repo/main.go"))
	assert.False(t, m.ShouldInclude("/repo/scratch.tmp"))
}
