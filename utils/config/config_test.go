package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/agentsociety-signal-timing/utils/config"
	"gopkg.in/yaml.v2"
)

const sample = `
input:
  junctions: {file: junctions.yaml}
  flow: {file: flows.yaml}
output:
  file: plans.yaml
control:
  algorithm: both
  search: {step: 1, timeout: 2.5, provisional_cap: true}
  junction_ids: [3, 5]
`

func TestRuntimeConfigDefaults(t *testing.T) {
	var c config.Config
	require.Nil(t, yaml.UnmarshalStrict([]byte(sample), &c))
	rc, err := config.NewRuntimeConfig(c)
	require.Nil(t, err)
	assert.Equal(t, 6., rc.C.Interval)
	assert.Equal(t, 3., rc.C.StartLoss)
	assert.Equal(t, 0.9, rc.C.Webster.CoverageQuantile)
	assert.Equal(t, 1, rc.C.Segment.MaxClusters)
	assert.Equal(t, 30., rc.C.Segment.MinInterval)
	assert.Equal(t, 1., rc.C.Search.Step)
	assert.True(t, rc.C.Search.ProvisionalCap)
	assert.Equal(t, []string{config.AlgorithmWebster, config.AlgorithmBnB}, rc.Algorithms())
	assert.True(t, rc.Selected(5))
	assert.False(t, rc.Selected(4))
	assert.Equal(t, "plans.yaml", rc.All.Output.File)
}

func TestRuntimeConfigStrict(t *testing.T) {
	var c config.Config
	err := yaml.UnmarshalStrict([]byte(sample+"  unknown_key: 1\n"), &c)
	assert.NotNil(t, err)
}

func TestRuntimeConfigInvalid(t *testing.T) {
	base := func() config.Config {
		return config.Config{
			Input: config.Input{
				Junctions: config.InputPath{File: "j.yaml"},
				Flow:      config.InputPath{File: "f.yaml"},
			},
		}
	}
	cases := map[string]func(*config.Config){
		"algorithm":    func(c *config.Config) { c.Control.Algorithm = "fixed" },
		"quantile":     func(c *config.Config) { c.Control.Webster.CoverageQuantile = 1.5 },
		"step":         func(c *config.Config) { c.Control.Search.Step = -1 },
		"interval":     func(c *config.Config) { c.Control.Interval = -6 },
		"no junctions": func(c *config.Config) { c.Input.Junctions = config.InputPath{} },
		"no flow":      func(c *config.Config) { c.Input.Flow = config.InputPath{} },
		"no uri":       func(c *config.Config) { c.Input.Flow = config.InputPath{DB: "signal", Col: "flow"} },
		"days":         func(c *config.Config) { c.Input.Synthetic = &config.Synthetic{} },
		"missing rate": func(c *config.Config) { c.Input.Synthetic = &config.Synthetic{Days: 1, MissingRate: 1} },
	}
	for name, modify := range cases {
		c := base()
		modify(&c)
		_, err := config.NewRuntimeConfig(c)
		assert.ErrorIs(t, err, config.ErrInvalidConfig, name)
	}

	c := base()
	c.Input.Flow = config.InputPath{}
	c.Input.Synthetic = &config.Synthetic{Days: 3}
	rc, err := config.NewRuntimeConfig(c)
	require.Nil(t, err)
	assert.Equal(t, []string{config.AlgorithmWebster}, rc.Algorithms())
	assert.True(t, rc.Selected(42))
}
