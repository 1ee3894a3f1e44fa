package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProfiler_ScopesAndCounts(t *testing.T) {
	p := NewProfiler()
	p.BeginScope("required")
	p.EndScope("required")
	p.BeginScope("activate")
	p.EndScope("activate")
	p.BeginScope("required")
	p.EndScope("required")
	p.SetCount("active", 81)

	assert.Equal(t, []string{"required", "activate"}, p.Order)
	s := p.GetStatsString()
	assert.Less(t, strings.Index(s, "required"), strings.Index(s, "activate"))
	assert.Contains(t, s, "active")
	assert.Contains(t, s, "81")

	p.Reset()
	assert.Zero(t, p.Scope("required"))
	assert.Len(t, p.Order, 2)
}

func TestProfiler_NilIsNoop(t *testing.T) {
	var p *Profiler
	p.BeginScope("x")
	p.EndScope("x")
	p.SetCount("y", 1)
	assert.Zero(t, p.Scope("x"))
	assert.Empty(t, p.GetStatsString())
}

func TestOrNop(t *testing.T) {
	l := OrNop(nil)
	assert.NotNil(t, l)
	assert.False(t, l.DebugEnabled())
	l.Infof("dropped %d", 1)

	d := NewDefaultLogger("grass", false)
	assert.Same(t, d, OrNop(d))
	d.SetDebug(true)
	assert.True(t, d.DebugEnabled())
}
