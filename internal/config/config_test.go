package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbo-vision/coreflow/internal/corefail"
)

func TestDefaults_Validate(t *testing.T) {
	require.NoError(t, Defaults().Validate())
}

func TestMerge_OverridesOnlyNonNilFields(t *testing.T) {
	base := Defaults()
	fps := 30
	overrides := &Config{CaptureFPS: &fps}

	out := overrides.Merge(base)

	assert.Equal(t, 30, out.CaptureFPS)
	assert.Equal(t, base.SpoolPath, out.SpoolPath)
	assert.Equal(t, base.MotionThresholdPct, out.MotionThresholdPct)
}

func TestMerge_DoesNotMutateBase(t *testing.T) {
	base := Defaults()
	originalFPS := base.CaptureFPS
	fps := base.CaptureFPS + 100
	(&Config{CaptureFPS: &fps}).Merge(base)

	assert.Equal(t, originalFPS, base.CaptureFPS)
}

func TestMerge_NilConfigReturnsCopyOfBase(t *testing.T) {
	base := Defaults()
	var overrides *Config
	out := overrides.Merge(base)
	assert.Equal(t, *base, *out)
}

func TestValidate_RejectsInvalidCombinations(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Snapshot)
	}{
		{"non-positive capture fps", func(s *Snapshot) { s.CaptureFPS = 0 }},
		{"empty spool path", func(s *Snapshot) { s.SpoolPath = "" }},
		{"min interval exceeds max", func(s *Snapshot) { s.MinInterval, s.MaxInterval = s.MaxInterval, s.MinInterval }},
		{"motion threshold out of range", func(s *Snapshot) { s.MotionThresholdPct = 150 }},
		{"confidence out of range", func(s *Snapshot) { s.MinConfidence = 1.5 }},
		{"digest mode without interval", func(s *Snapshot) { s.Mode = AlerterDigest; s.DigestIntervalSec = 0 }},
		{"unknown alerter mode", func(s *Snapshot) { s.Mode = AlerterMode("unknown") }},
		{"negative cooldown", func(s *Snapshot) { s.CooldownSec = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := *Defaults()
			tc.mutate(&snap)
			err := snap.Validate()
			require.Error(t, err)
			assert.True(t, corefail.Is(err, corefail.ConfigInvalid))
		})
	}
}
