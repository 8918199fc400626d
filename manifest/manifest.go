/*
Package manifest implements the ImageProperties.xml file written at the root
of every Zoomify pyramid.

The file holds a single self-closing element:

	<IMAGE_PROPERTIES WIDTH="1217" HEIGHT="797" NUMTILES="29" NUMIMAGES="1" TILESIZE="256" VERSION="1.8" />

Viewers only read the attributes so the element is written verbatim rather
than through encoding/xml, which cannot produce a self-closing tag.
*/
package manifest

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
)

const (
	// Filename is the expected filename used when writing to disk
	Filename = "ImageProperties.xml"

	// Version is the Zoomify format version written to every manifest
	Version = "1.8"
)

var errBadElement = errors.New("manifest: not an IMAGE_PROPERTIES document")

// Properties is the manifest object. It implements the
// encoding.BinaryMarshaler and encoding.BinaryUnmarshaler interfaces.
type Properties struct {
	XMLName   xml.Name `xml:"IMAGE_PROPERTIES"`
	Width     int      `xml:"WIDTH,attr"`
	Height    int      `xml:"HEIGHT,attr"`
	NumTiles  int      `xml:"NUMTILES,attr"`
	NumImages int      `xml:"NUMIMAGES,attr"`
	TileSize  int      `xml:"TILESIZE,attr"`
	Version   string   `xml:"VERSION,attr"`
}

// New returns the properties of a single image pyramid
func New(width, height, numTiles, tileSize int) *Properties {
	return &Properties{
		Width:     width,
		Height:    height,
		NumTiles:  numTiles,
		NumImages: 1,
		TileSize:  tileSize,
		Version:   Version,
	}
}

// MarshalBinary encodes the properties into XML and returns the result. An
// empty Version is written as the current one.
func (p *Properties) MarshalBinary() ([]byte, error) {
	version := p.Version
	if version == "" {
		version = Version
	}
	return []byte(fmt.Sprintf("<IMAGE_PROPERTIES WIDTH=\"%d\" HEIGHT=\"%d\" NUMTILES=\"%d\" NUMIMAGES=\"%d\" TILESIZE=\"%d\" VERSION=\"%s\" />\n",
		p.Width, p.Height, p.NumTiles, p.NumImages, p.TileSize, version)), nil
}

// UnmarshalBinary decodes the properties from XML. Manifests written by
// other tools are accepted as long as the root element matches.
func (p *Properties) UnmarshalBinary(b []byte) error {
	var tmp Properties
	if err := xml.Unmarshal(b, &tmp); err != nil {
		if _, ok := err.(xml.UnmarshalError); ok {
			return errBadElement
		}
		return err
	}
	tmp.XMLName = xml.Name{}
	*p = tmp
	return nil
}

// Write creates the manifest in dir
func Write(dir string, width, height, numTiles, tileSize int) error {
	b, err := New(width, height, numTiles, tileSize).MarshalBinary()
	if err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(dir, Filename))
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err = f.Write(b); err != nil {
		return err
	}

	return f.Close()
}

// Read parses the manifest found in dir
func Read(dir string) (*Properties, error) {
	b, err := ioutil.ReadFile(filepath.Join(dir, Filename))
	if err != nil {
		return nil, err
	}

	p := new(Properties)
	if err := p.UnmarshalBinary(b); err != nil {
		return nil, err
	}

	return p, nil
}
