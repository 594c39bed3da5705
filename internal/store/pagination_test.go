package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPage(t *testing.T) {
	p := DefaultPage()
	assert.Equal(t, 0, p.Offset)
	assert.Equal(t, 10, p.Limit)
}

func TestPage_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   Page
		want Page
	}{
		{"unchanged", Page{Offset: 20, Limit: 5}, Page{Offset: 20, Limit: 5}},
		{"zero limit defaults", Page{Offset: 3}, Page{Offset: 3, Limit: DefaultLimit}},
		{"negative limit defaults", Page{Limit: -4}, Page{Limit: DefaultLimit}},
		{"limit capped", Page{Limit: 5000}, Page{Limit: MaxLimit}},
		{"negative offset clamped", Page{Offset: -1, Limit: 2}, Page{Offset: 0, Limit: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}
