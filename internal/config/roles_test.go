package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRolesConfig(t *testing.T) {
	valid := RolesConfig{Templates: []TemplateSeed{
		{Slot: 2, Permissions: []string{"settings:manage"}},
		{Slot: 3},
	}}
	assert.NoError(t, validateRolesConfig(valid))

	cases := []struct {
		name string
		cfg  RolesConfig
	}{
		{"empty", RolesConfig{}},
		{"slot zero", RolesConfig{Templates: []TemplateSeed{{Slot: 0}}}},
		{"slot above range", RolesConfig{Templates: []TemplateSeed{{Slot: 11}}}},
		{"slot one", RolesConfig{Templates: []TemplateSeed{{Slot: 1}}}},
		{"duplicate slot", RolesConfig{Templates: []TemplateSeed{{Slot: 2}, {Slot: 2}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, validateRolesConfig(tc.cfg))
		})
	}
}

func TestDefaultRolesConfigIsValid(t *testing.T) {
	cfg := DefaultRolesConfig()
	require.NoError(t, validateRolesConfig(cfg))

	// Every non-admin slot has a seed entry, slot 1 has none.
	slots := make(map[int]bool, len(cfg.Templates))
	for _, tpl := range cfg.Templates {
		slots[tpl.Slot] = true
	}
	for slot := 2; slot <= 10; slot++ {
		assert.True(t, slots[slot], "slot %d", slot)
	}
	assert.False(t, slots[1])
}
