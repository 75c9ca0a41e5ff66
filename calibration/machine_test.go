package calibration

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/mastercactapus/apawinder/coord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachineDefaults(t *testing.T) {
	dir, err := ioutil.TempDir("", "machine")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	m, err := LoadMachine(filepath.Join(dir, "none.xml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultMachine(), m)

	path := filepath.Join(dir, "machine.xml")
	require.NoError(t, ioutil.WriteFile(path, []byte(`<MachineCalibration><transferLeft>480</transferLeft><headArmLength>110</headArmLength></MachineCalibration>`), 0644))
	m, err = LoadMachine(path)
	require.NoError(t, err)
	assert.Equal(t, 480.0, m.TransferLeft)
	assert.Equal(t, 110.0, m.HeadArmLength)
	assert.Equal(t, 6860.0, m.TransferRight)

	require.NoError(t, m.Save(path))
	again, err := LoadMachine(path)
	require.NoError(t, err)
	assert.Equal(t, m, again)
}

func TestMachineLimits(t *testing.T) {
	m := DefaultMachine()
	assert.True(t, m.InLimits(coord.Point{X: 100, Y: 100, Z: 0}))
	assert.False(t, m.InLimits(coord.Point{X: 7300, Y: 100}))
	assert.False(t, m.InLimits(coord.Point{X: 100, Y: 100, Z: 500}))
	assert.Equal(t, coord.Box{Left: 500, Top: 2600, Right: 6860, Bottom: 60}, m.TransferBox())
}

func TestMachineBadXML(t *testing.T) {
	dir, err := ioutil.TempDir("", "machine")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "machine.xml")
	require.NoError(t, ioutil.WriteFile(path, []byte(`<MachineCalibration>`), 0644))
	_, err = LoadMachine(path)
	assert.Error(t, err)
}
