package manifest

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalBinary(t *testing.T) {
	b, err := New(1217, 797, 29, 256).MarshalBinary()
	require.Nil(t, err)
	assert.Equal(t, "<IMAGE_PROPERTIES WIDTH=\"1217\" HEIGHT=\"797\" NUMTILES=\"29\" NUMIMAGES=\"1\" TILESIZE=\"256\" VERSION=\"1.8\" />\n", string(b))

	b, err = (&Properties{Width: 10, Height: 20, NumTiles: 1, NumImages: 1, TileSize: 256}).MarshalBinary()
	require.Nil(t, err)
	assert.Contains(t, string(b), "VERSION=\"1.8\"")
}

func TestMarshalBinaryVersion(t *testing.T) {
	input := "<IMAGE_PROPERTIES WIDTH=\"10\" HEIGHT=\"20\" NUMTILES=\"1\" NUMIMAGES=\"1\" TILESIZE=\"256\" VERSION=\"1.9\" />\n"

	p := new(Properties)
	require.Nil(t, p.UnmarshalBinary([]byte(input)))
	assert.Equal(t, "1.9", p.Version)

	b, err := p.MarshalBinary()
	require.Nil(t, err)
	assert.Equal(t, input, string(b))
}

func TestUnmarshalBinary(t *testing.T) {
	tables := []struct {
		name  string
		input string
		want  *Properties
		err   error
	}{
		{
			"self-closing",
			`<IMAGE_PROPERTIES WIDTH="10" HEIGHT="20" NUMTILES="1" NUMIMAGES="1" TILESIZE="256" VERSION="1.8" />`,
			New(10, 20, 1, 256),
			nil,
		},
		{
			"vips",
			"<IMAGE_PROPERTIES WIDTH=\"3000\" HEIGHT=\"2000\" NUMTILES=\"127\" NUMIMAGES=\"1\" VERSION=\"1.8\" TILESIZE=\"256\"></IMAGE_PROPERTIES>\n",
			New(3000, 2000, 127, 256),
			nil,
		},
		{
			"wrong element",
			`<image WIDTH="10" />`,
			nil,
			errBadElement,
		},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			p := new(Properties)
			err := p.UnmarshalBinary([]byte(table.input))
			if table.err != nil {
				assert.Equal(t, table.err, err)
				return
			}
			require.Nil(t, err)
			assert.Equal(t, table.want.Width, p.Width)
			assert.Equal(t, table.want.Height, p.Height)
			assert.Equal(t, table.want.NumTiles, p.NumTiles)
			assert.Equal(t, table.want.NumImages, p.NumImages)
			assert.Equal(t, table.want.TileSize, p.TileSize)
			assert.Equal(t, table.want.Version, p.Version)
		})
	}
}

func TestWriteRead(t *testing.T) {
	dir, err := ioutil.TempDir("", "manifest")
	require.Nil(t, err)
	defer os.RemoveAll(dir)

	require.Nil(t, Write(dir, 1217, 797, 29, 256))

	p, err := Read(dir)
	require.Nil(t, err)
	assert.Equal(t, 1217, p.Width)
	assert.Equal(t, 797, p.Height)
	assert.Equal(t, 29, p.NumTiles)
	assert.Equal(t, 1, p.NumImages)
	assert.Equal(t, 256, p.TileSize)
	assert.Equal(t, Version, p.Version)
}

func TestWriteMissingDirectory(t *testing.T) {
	dir, err := ioutil.TempDir("", "manifest")
	require.Nil(t, err)
	defer os.RemoveAll(dir)

	err = Write(filepath.Join(dir, "missing"), 1, 1, 1, 256)
	assert.True(t, os.IsNotExist(err))

	_, err = Read(filepath.Join(dir, "missing"))
	assert.True(t, os.IsNotExist(err))
}
