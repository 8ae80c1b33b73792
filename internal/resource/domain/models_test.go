package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameFromID(t *testing.T) {
	cases := []struct {
		in   string
		want *string
	}{
		{"/some/path/res1", strPtr("res1")},
		{"/some/path/res1/", strPtr("res1")},
		{"/some/path/res1///", strPtr("res1")},
		{"res1", strPtr("res1")},
		{"", nil},
		{"   ", nil},
		{"/", nil},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, NameFromID(tc.in))
		})
	}
}

func TestNormalizeGroup(t *testing.T) {
	assert.Equal(t, strPtr("myrg"), NormalizeGroup(" MyRG "))
	assert.Equal(t, strPtr("rg-prod"), NormalizeGroup("RG-Prod"))
	assert.Nil(t, NormalizeGroup(""))
	assert.Nil(t, NormalizeGroup("   "))
}

func strPtr(v string) *string { return &v }
