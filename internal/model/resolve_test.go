package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsExternalFileReference(t *testing.T) {
	assert.True(t, IsExternalFileReference("data/config.json"))
	assert.True(t, IsExternalFileReference("README.MD")) // case-insensitive
	assert.False(t, IsExternalFileReference("pkg/mod.py"))
	assert.False(t, IsExternalFileReference("no_extension"))
	assert.False(t, IsExternalFileReference("trailing."))
}

func TestResolveModuleName_Relative(t *testing.T) {
	known := map[string]struct{}{"pkg/sub/mod.py": {}}
	assert.True(t, ResolveModuleName(".sub.mod", known))
	assert.True(t, ResolveModuleName("..sub.mod", known))
	assert.False(t, ResolveModuleName(".other.mod", known))
	assert.False(t, ResolveModuleName(".", known))
}

func TestResolveModuleName_Absolute(t *testing.T) {
	known := map[string]struct{}{"pkg/sub/mod.py": {}}
	assert.True(t, ResolveModuleName("pkg.sub.mod", known))
	assert.False(t, ResolveModuleName("pkg.sub.other", known))
}

func TestResolveModuleName_Bare(t *testing.T) {
	known := map[string]struct{}{"vendor/requests/__init__.py": {}}
	assert.True(t, ResolveModuleName("requests", known))
	assert.False(t, ResolveModuleName("flask", known))
}

func TestResolveModuleName_Empty(t *testing.T) {
	assert.False(t, ResolveModuleName("", map[string]struct{}{"a": {}}))
}
