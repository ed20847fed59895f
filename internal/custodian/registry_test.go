package custodian

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryFirstConnectorIsDefault(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewMockConnector("paysera"))
	registry.Register(NewMockConnector("santander"))

	def, err := registry.Default()
	require.NoError(t, err)
	assert.Equal(t, "paysera", def.Name())
}

func TestRegistrySetDefault(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewMockConnector("paysera"))
	registry.Register(NewMockConnector("santander"))

	require.NoError(t, registry.SetDefault("santander"))

	def, err := registry.Default()
	require.NoError(t, err)
	assert.Equal(t, "santander", def.Name())

	assert.ErrorIs(t, registry.SetDefault("deutsche_bank"), ErrCustodianNotFound)
}

func TestRegistryConnectorLookup(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewMockConnector("paysera"))

	connector, err := registry.Connector("paysera")
	require.NoError(t, err)
	assert.Equal(t, "paysera", connector.Name())

	_, err = registry.Connector("santander")
	assert.ErrorIs(t, err, ErrCustodianNotFound)
}

func TestRegistryNamesAreSorted(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewMockConnector("santander"))
	registry.Register(NewMockConnector("mock"))
	registry.Register(NewMockConnector("paysera"))

	assert.Equal(t, []string{"mock", "paysera", "santander"}, registry.Names())
}

func TestRegistryAvailableNames(t *testing.T) {
	registry := NewRegistry()
	paysera := NewMockConnector("paysera")
	santander := NewMockConnector("santander")
	santander.SetAvailable(false)
	registry.Register(paysera)
	registry.Register(santander)

	assert.Equal(t, []string{"paysera"}, registry.AvailableNames(context.Background()))
}
