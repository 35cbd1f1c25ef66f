package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtestValidate(t *testing.T) {
	m := ProtestModel{}

	_, err := m.Validate(Protest{Title: "   "})
	assert.Equal(t, ErrTitleMissing, err)

	p, err := m.Validate(Protest{Title: "  Save the harbour  ", Location: " Hamburg "})
	require.NoError(t, err)
	assert.Equal(t, "Save the harbour", p.Title)
	assert.Equal(t, "Hamburg", p.Location)
}

func TestBoycottValidate(t *testing.T) {
	m := BoycottModel{}

	_, err := m.Validate(Boycott{Title: ""})
	assert.Equal(t, ErrTitleMissing, err)

	_, err = m.Validate(Boycott{Title: "No more fast fashion"})
	assert.Equal(t, ErrTargetMissing, err)

	b, err := m.Validate(Boycott{Title: "No more fast fashion", TargetName: " MegaCorp "})
	require.NoError(t, err)
	assert.Equal(t, "MegaCorp", b.TargetName)
}
