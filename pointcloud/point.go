package pointcloud

import (
	"image/color"

	"github.com/golang/geo/r3"
)

// NewVector returns the point (x, y, z).
func NewVector(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}
}

// Data is what a cloud stores along with a position: optionally a color read from the sensor
// and optionally an integer value, such as the occupancy count of an octree voxel.
type Data interface {
	HasColor() bool
	// RGB255 returns the color components; zero when HasColor is false.
	RGB255() (r, g, b uint8)
	HasValue() bool
	// Value returns the integer value; zero when HasValue is false.
	Value() int
}

type dataFlags uint8

const (
	colored dataFlags = 1 << iota
	valued
)

type pointData struct {
	flags dataFlags
	rgb   [3]uint8
	value int
}

// NewBasicData returns data carrying neither color nor value.
func NewBasicData() Data {
	return pointData{}
}

// NewColoredData returns data carrying c. Alpha is dropped.
func NewColoredData(c color.NRGBA) Data {
	return pointData{flags: colored, rgb: [3]uint8{c.R, c.G, c.B}}
}

// NewValueData returns data carrying v.
func NewValueData(v int) Data {
	return pointData{flags: valued, value: v}
}

func (d pointData) HasColor() bool { return d.flags&colored != 0 }

func (d pointData) RGB255() (uint8, uint8, uint8) { return d.rgb[0], d.rgb[1], d.rgb[2] }

func (d pointData) HasValue() bool { return d.flags&valued != 0 }

func (d pointData) Value() int { return d.value }
