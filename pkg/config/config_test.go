package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rizard/fboss/pkg/fabric"
)

func TestParseVlanSpec(t *testing.T) {
	v, err := ParseVlanSpec("10:100,101")
	require.NoError(t, err)
	require.Equal(t, fabric.VlanID(10), v.VlanID)
	require.Equal(t, fabric.InterfaceID(10), v.InterfaceID)
	require.Equal(t, []fabric.PortID{100, 101}, v.Ports)
	require.Equal(t, defaultMTU, v.MTU)
}

func TestParseVlanSpecSinglePort(t *testing.T) {
	v, err := ParseVlanSpec("5:1")
	require.NoError(t, err)
	require.Equal(t, []fabric.PortID{1}, v.Ports)
}

func TestParseVlanSpecRejectsMissingColon(t *testing.T) {
	_, err := ParseVlanSpec("10")
	require.Error(t, err)
}

func TestParseVlanSpecRejectsNonNumericVlan(t *testing.T) {
	_, err := ParseVlanSpec("abc:100")
	require.Error(t, err)
}

func TestParseVlanSpecRejectsEmptyPorts(t *testing.T) {
	_, err := ParseVlanSpec("10:")
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	c := Config{}
	require.Error(t, c.Validate())

	c.TapPrefix = "tap"
	require.Error(t, c.Validate())

	c.Vlans = []VlanConfig{{VlanID: 10}}
	require.NoError(t, c.Validate())
}
