package config

import (
	"reflect"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittorelay/internal/bytesize"
)

func TestSchema_TopLevelProperties(t *testing.T) {
	s := Schema()
	require.NotNil(t, s.Properties)

	for _, key := range []string{"logging", "api", "journal", "power", "relays"} {
		_, ok := s.Properties.Get(key)
		assert.True(t, ok, "missing property %q", key)
	}
}

func TestMapType(t *testing.T) {
	size := mapType(reflect.TypeOf(bytesize.ByteSize(0)))
	require.NotNil(t, size)
	require.Len(t, size.OneOf, 2)

	pattern := regexp.MustCompile(size.OneOf[1].Pattern)
	for _, ok := range []string{"64Mi", "1GiB", "512", "1.5 GB", "4k"} {
		assert.True(t, pattern.MatchString(ok), ok)
	}
	for _, bad := range []string{"", "Mi", "12 parsecs"} {
		assert.False(t, pattern.MatchString(bad), bad)
	}

	assert.NotNil(t, mapType(reflect.TypeOf(time.Duration(0))))
	assert.Nil(t, mapType(reflect.TypeOf("")))
}
