package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeConfig struct {
	Foo string        `yaml:"foo"`
	Bar string        `yaml:"bar"`
	Sub fakeSubConfig `yaml:"sub"`
}

type fakeSubConfig struct {
	Car int `yaml:"car"`
}

func TestLoad(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		f, err := os.CreateTemp("", "rumor")
		assert.NoError(t, err)

		_, err = f.WriteString(`foo: val1
bar: val2
sub:
  car: 5`)
		assert.NoError(t, err)

		var conf fakeConfig
		assert.NoError(t, Load(&conf, f.Name(), false))

		assert.Equal(t, "val1", conf.Foo)
		assert.Equal(t, "val2", conf.Bar)
		assert.Equal(t, 5, conf.Sub.Car)
	})

	t.Run("expand env", func(t *testing.T) {
		f, err := os.CreateTemp("", "rumor")
		assert.NoError(t, err)

		_ = os.Setenv("RUMOR_VAL1", "val1")
		_ = os.Setenv("RUMOR_VAL2", "val2")

		_, err = f.WriteString(`foo: $RUMOR_VAL1
bar: ${RUMOR_VAL2}
sub:
  car: ${RUMOR_VAL3:5}`)
		assert.NoError(t, err)

		var conf fakeConfig
		assert.NoError(t, Load(&conf, f.Name(), true))

		assert.Equal(t, "val1", conf.Foo)
		assert.Equal(t, "val2", conf.Bar)
		assert.Equal(t, 5, conf.Sub.Car)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		f, err := os.CreateTemp("", "rumor")
		assert.NoError(t, err)

		_, err = f.WriteString(`invalid yaml...`)
		assert.NoError(t, err)

		var conf fakeConfig
		assert.Error(t, Load(&conf, f.Name(), false))
	})

	t.Run("not found", func(t *testing.T) {
		var conf fakeConfig
		assert.Error(t, Load(&conf, "notfound", false))
	})

	t.Run("unknown field", func(t *testing.T) {
		f, err := os.CreateTemp("", "rumor")
		assert.NoError(t, err)

		_, err = f.WriteString(`foo: val1
unknown: val2`)
		assert.NoError(t, err)

		var conf fakeConfig
		assert.Error(t, Load(&conf, f.Name(), false))
	})
}

func TestFile_Load(t *testing.T) {
	t.Run("no path", func(t *testing.T) {
		conf := fakeConfig{Foo: "default"}
		file := &File{}
		assert.NoError(t, file.Load(&conf))
		assert.Equal(t, "default", conf.Foo)
	})

	t.Run("path", func(t *testing.T) {
		f, err := os.CreateTemp("", "rumor")
		assert.NoError(t, err)

		_ = os.Setenv("RUMOR_FOO", "val1")

		_, err = f.WriteString(`foo: ${RUMOR_FOO}`)
		assert.NoError(t, err)

		conf := fakeConfig{Bar: "default"}
		file := &File{Path: f.Name(), ExpandEnv: true}
		assert.NoError(t, file.Load(&conf))
		assert.Equal(t, "val1", conf.Foo)
		// Unset fields keep their defaults.
		assert.Equal(t, "default", conf.Bar)
	})
}

func TestExpandVar(t *testing.T) {
	_ = os.Setenv("RUMOR_SET", "val")
	_ = os.Setenv("RUMOR_EMPTY", "")

	assert.Equal(t, "val", expandVar("RUMOR_SET"))
	assert.Equal(t, "val", expandVar("RUMOR_SET:default"))
	assert.Equal(t, "", expandVar("RUMOR_EMPTY:default"))
	assert.Equal(t, "default", expandVar("RUMOR_UNSET:default"))
	assert.Equal(t, "", expandVar("RUMOR_UNSET"))
}
