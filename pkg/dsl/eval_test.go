package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/recserve/core"
)

func TestCompile_Empty(t *testing.T) {
	p, err := Compile("")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestEligible(t *testing.T) {
	rating := 1.5
	p, err := Compile(`item.category != "Discontinued" && (!has(item.rating) || item.rating >= 2.0)`)
	require.NoError(t, err)

	tests := []struct {
		name string
		item core.ItemRecord
		want bool
	}{
		{"no rating", core.ItemRecord{ItemID: 0, Category: "Books"}, true},
		{"low rating", core.ItemRecord{ItemID: 1, Category: "Books", Rating: &rating}, false},
		{"discontinued", core.ItemRecord{ItemID: 2, Category: "Discontinued"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Eligible(tt.item)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	_, err := Compile(`item.price >`)
	assert.Error(t, err)

	_, err = Compile(`1 + 2`)
	assert.Error(t, err)

	// dyn 类型在求值时才发现不是 bool
	p, err := Compile(`item.name`)
	require.NoError(t, err)
	_, err = p.Eligible(core.ItemRecord{Name: "x"})
	assert.Error(t, err)
}
