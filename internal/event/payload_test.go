package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPayloadAccessors(t *testing.T) {
	p := Payload{
		"Name":  "",
		"Alias": "QHY268M",
		"Stats": map[string]any{
			"HFR":   2.34,
			"Stars": "812",
			"Flags": map[string]any{"Bayer": true},
		},
		"Null": nil,
	}

	s, ok := p.String("Name", "Alias")
	assert.True(t, ok)
	assert.Equal(t, "QHY268M", s, "empty strings are skipped")

	f, ok := p.Float("Stats.HFR")
	assert.True(t, ok)
	assert.Equal(t, 2.34, f)

	n, ok := p.Int("Stats.Stars")
	assert.True(t, ok, "numeric strings coerce")
	assert.Equal(t, 812, n)

	b, ok := p.Bool("Stats.Flags.Bayer")
	assert.True(t, ok)
	assert.True(t, b)

	_, ok = p.Float("Stats.Missing", "Null")
	assert.False(t, ok)
	assert.False(t, p.Has("Null"))
	assert.True(t, p.Has("Stats.Flags"))

	assert.NotNil(t, p.Object("Stats"))
	assert.Nil(t, p.Object("Alias"))
}
