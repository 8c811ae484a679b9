package dataflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestPortValue_Present tests present value accessors.
func TestPortValue_Present(t *testing.T) {
	v := Value(42)

	assert.True(t, v.IsPresent())
	assert.False(t, v.IsAbsent())
	assert.False(t, v.IsDisabled())

	got, ok := v.Get()
	assert.True(t, ok)
	assert.Equal(t, 42, got)
	assert.Equal(t, 42, v.Any())
}

// TestPortValue_PresentNil tests that a present nil stays distinct from absent.
func TestPortValue_PresentNil(t *testing.T) {
	v := Value(nil)

	assert.True(t, v.IsPresent())
	got, ok := v.Get()
	assert.True(t, ok)
	assert.Nil(t, got)
}

// TestPortValue_Absent tests absent value accessors.
func TestPortValue_Absent(t *testing.T) {
	v := Absent()

	assert.True(t, v.IsAbsent())
	assert.False(t, v.IsPresent())

	got, ok := v.Get()
	assert.False(t, ok)
	assert.Nil(t, got)
}

// TestPortValue_ZeroValueIsAbsent tests the zero value reads as absent.
func TestPortValue_ZeroValueIsAbsent(t *testing.T) {
	var v PortValue
	assert.True(t, v.IsAbsent())
}

// TestPortValue_Disabled tests disabled marker accessors.
func TestPortValue_Disabled(t *testing.T) {
	v := DisabledValue("blur", "image")

	assert.True(t, v.IsDisabled())
	assert.False(t, v.IsPresent())
	assert.False(t, v.IsAbsent())

	nodeID, port, ok := v.DisabledSource()
	assert.True(t, ok)
	assert.Equal(t, "blur", nodeID)
	assert.Equal(t, "image", port)

	_, gotOK := v.Get()
	assert.False(t, gotOK)
}

// TestPortValue_DisabledSource_NotDisabled tests the source accessor on
// other kinds.
func TestPortValue_DisabledSource_NotDisabled(t *testing.T) {
	_, _, ok := Value(1).DisabledSource()
	assert.False(t, ok)
}

// TestPortValue_String tests the debug rendering.
func TestPortValue_String(t *testing.T) {
	assert.Equal(t, "value(7)", Value(7).String())
	assert.Equal(t, "absent", Absent().String())
	assert.Equal(t, "disabled(a.out)", DisabledValue("a", "out").String())
}
