package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-4))
	assert.Equal(t, MaxLimit, NormalizeLimit(500))
	assert.Equal(t, 7, NormalizeLimit(7))
}

func TestParamsOffsetAndMeta(t *testing.T) {
	p := Params{Page: 3, Limit: 10}
	assert.Equal(t, 20, p.Offset())

	meta := p.Meta(41)
	assert.Equal(t, 3, meta.Page)
	assert.Equal(t, 10, meta.Limit)
	assert.EqualValues(t, 41, meta.Total)
	assert.Equal(t, 5, meta.Pages)
}

func TestParamsNormalizeDefaults(t *testing.T) {
	p := Params{}.Normalize()
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, DefaultLimit, p.Limit)
	assert.Equal(t, 0, Params{Page: -2}.Offset())
	assert.Equal(t, 0, Params{}.Meta(0).Pages)
}
