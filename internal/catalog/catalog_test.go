package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/portalads/internal/models"
)

func TestLoad(t *testing.T) {
	c, err := Load("testdata/slots.yaml")
	require.NoError(t, err)

	all := c.All()
	require.Len(t, all, 3)
	assert.Equal(t, []string{"Footer", "Header", "Sidebar"}, []string{all[0].Name, all[1].Name, all[2].Name})

	header, ok := c.Get("Header")
	require.True(t, ok)
	assert.Equal(t, 1, header.Capacity)
	assert.Equal(t, 970, header.RecommendedWidth)
	assert.True(t, header.ScopeAgnostic())

	sidebar := c.Lookup("Sidebar")
	require.NotNil(t, sidebar)
	assert.Equal(t, []string{"news", "events"}, sidebar.AllowedScopes)

	assert.Equal(t, 0, c.Capacity("Footer"), "footer has no capacity limit")
}

func TestUnknownSlotIsUnbounded(t *testing.T) {
	c, err := New([]models.Slot{{Name: "Header", Capacity: 1}})
	require.NoError(t, err)
	assert.Nil(t, c.Lookup("Popup"))
	assert.Equal(t, 0, c.Capacity("Popup"))

	var nilCatalog *Catalog
	assert.Equal(t, 0, nilCatalog.Capacity("Header"))
	assert.Nil(t, nilCatalog.All())
}

func TestNewRejectsBadSlots(t *testing.T) {
	_, err := New([]models.Slot{{Name: "Header"}, {Name: "Header"}})
	assert.Error(t, err)

	_, err = New([]models.Slot{{Name: ""}})
	assert.Error(t, err)

	_, err = New([]models.Slot{{Name: "Header", Capacity: -1}})
	assert.Error(t, err)

	_, err = Parse([]byte("slots: [oops"))
	assert.Error(t, err)
}
