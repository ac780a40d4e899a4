// Package config parses the bridge's process-level configuration. Spec §6
// names exactly one required value (the tap device name prefix); the
// VLAN set and metrics bind address are operational additions every
// deployment of this kind needs, grounded in the reference stack's
// cli.Flag-driven command style.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rizard/fboss/pkg/fabric"
)

// Config is the fully parsed, validated configuration for one bridge
// process.
type Config struct {
	TapPrefix          string
	MetricsBindAddress string
	Vlans              []VlanConfig
}

// VlanConfig is one --vlan flag occurrence, "vlanID:portID[,portID...]".
type VlanConfig struct {
	VlanID      fabric.VlanID
	InterfaceID fabric.InterfaceID
	Ports       []fabric.PortID
	MTU         int
}

const defaultMTU = 1500

// ParseVlanSpec parses one "--vlan" flag value of the form
// "<vlan-id>:<port-id>[,<port-id>...]", e.g. "10:100,101". The VLAN's
// interface id is assigned equal to its VLAN id, matching spec.md §3's
// "both are derived 1:1 from the seed VLAN id."
func ParseVlanSpec(spec string) (VlanConfig, error) {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 {
		return VlanConfig{}, fmt.Errorf("config: invalid --vlan %q, want vlan-id:port-id[,port-id...]", spec)
	}
	vlanNum, err := strconv.Atoi(parts[0])
	if err != nil {
		return VlanConfig{}, fmt.Errorf("config: invalid vlan id in %q: %w", spec, err)
	}

	portStrs := strings.Split(parts[1], ",")
	ports := make([]fabric.PortID, 0, len(portStrs))
	for _, ps := range portStrs {
		p, err := strconv.Atoi(strings.TrimSpace(ps))
		if err != nil {
			return VlanConfig{}, fmt.Errorf("config: invalid port id in %q: %w", spec, err)
		}
		ports = append(ports, fabric.PortID(p))
	}
	if len(ports) == 0 {
		return VlanConfig{}, fmt.Errorf("config: %q names no ports", spec)
	}

	return VlanConfig{
		VlanID:      fabric.VlanID(vlanNum),
		InterfaceID: fabric.InterfaceID(vlanNum),
		Ports:       ports,
		MTU:         defaultMTU,
	}, nil
}

// Validate checks the fields Config requires to start the bridge.
func (c Config) Validate() error {
	if c.TapPrefix == "" {
		return fmt.Errorf("config: tap-prefix must not be empty")
	}
	if len(c.Vlans) == 0 {
		return fmt.Errorf("config: at least one --vlan is required")
	}
	return nil
}
