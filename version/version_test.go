package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogFieldsSkipsEmpty(t *testing.T) {
	defer func(c, v string) { GitCommit, Version = c, v }(GitCommit, Version)
	GitCommit = "abc123"
	Version = "1.2.0"

	assert.Equal(t, []interface{}{"GitCommit", "abc123", "Version", "1.2.0"}, LogFields())
	assert.True(t, strings.HasSuffix(String(), "version: 1.2.0"))
}
