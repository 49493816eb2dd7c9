package twi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_LayoutV1(t *testing.T) {
	require.NoError(t, LayoutV1.Validate())
	assert.Equal(t, 1, LayoutV1.Version)
	assert.EqualValues(t, RegionSize, LayoutV1.Size)

	for offset, reg := range []Register{RegStatus, RegAddress, RegData, RegControl} {
		f, ok := LayoutV1.Lookup(uint16(offset))
		require.True(t, ok)
		assert.Equal(t, reg, f.Register)
		assert.Equal(t, reg.String(), f.Name)

		off, ok := LayoutV1.Offset(reg)
		require.True(t, ok)
		assert.EqualValues(t, offset, off)
	}

	_, ok := LayoutV1.Lookup(RegionSize)
	assert.False(t, ok)
}

func Test_LayoutValidate(t *testing.T) {
	testDo := func(t *testing.T, fields []Field, size uint16) error {
		err := Layout{Version: 2, Size: size, Fields: fields}.Validate()
		require.Error(t, err)
		var cfgErr *ConfigurationError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "layout", cfgErr.Component)
		return err
	}

	t.Run("wide register", func(t *testing.T) {
		err := testDo(t, []Field{
			{RegStatus, "TWSR", 0, 1},
			{RegAddress, "TWAR", 1, 1},
			{RegData, "TWDR", 2, 2},
			{RegControl, "TWCR", 4, 1},
		}, 5)
		assert.True(t, errors.Is(err, ErrRegisterWidth))
	})

	t.Run("gap", func(t *testing.T) {
		testDo(t, []Field{
			{RegStatus, "TWSR", 0, 1},
			{RegAddress, "TWAR", 1, 1},
			{RegData, "TWDR", 2, 1},
			{RegControl, "TWCR", 4, 1},
		}, 5)
	})

	t.Run("overlap", func(t *testing.T) {
		testDo(t, []Field{
			{RegStatus, "TWSR", 0, 1},
			{RegAddress, "TWAR", 1, 1},
			{RegData, "TWDR", 1, 1},
			{RegControl, "TWCR", 3, 1},
		}, 4)
	})

	t.Run("duplicate register", func(t *testing.T) {
		testDo(t, []Field{
			{RegStatus, "TWSR", 0, 1},
			{RegStatus, "TWSR", 1, 1},
			{RegData, "TWDR", 2, 1},
			{RegControl, "TWCR", 3, 1},
		}, 4)
	})

	t.Run("missing register", func(t *testing.T) {
		testDo(t, []Field{
			{RegStatus, "TWSR", 0, 1},
			{RegData, "TWDR", 1, 1},
			{RegControl, "TWCR", 2, 1},
		}, 3)
	})

	t.Run("past the end", func(t *testing.T) {
		testDo(t, []Field{
			{RegStatus, "TWSR", 0, 1},
			{RegAddress, "TWAR", 1, 1},
			{RegData, "TWDR", 2, 1},
			{RegControl, "TWCR", 3, 1},
		}, 3)
	})
}
