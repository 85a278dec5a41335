package pointcloud

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edaniels/lidario"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/agimus-project/agimus/spatialmath"
)

// PCDType is the DATA encoding of a PCD file.
type PCDType int

// PCD encodings. Compressed files are recognized but not supported.
const (
	PCDAscii PCDType = iota
	PCDBinary
	PCDCompressed
)

var pcdTypeNames = map[string]PCDType{
	"ascii":             PCDAscii,
	"binary":            PCDBinary,
	"binary_compressed": PCDCompressed,
}

// PCD stores metres; clouds are in millimetres.
const metresToMM = 1000.

// NewFromFile reads the cloud stored in fn, a .pcd or .las file.
func NewFromFile(fn string) (PointCloud, error) {
	switch ext := filepath.Ext(fn); ext {
	case ".pcd":
		//nolint:gosec
		f, err := os.Open(fn)
		if err != nil {
			return nil, err
		}
		defer utils.UncheckedErrorFunc(f.Close)
		return ReadPCD(f)
	case ".las":
		return NewFromLASFile(fn)
	default:
		return nil, errors.Errorf("do not know how to read %q files (%s)", ext, fn)
	}
}

// WriteToFile writes cloud to fn, choosing the format from the extension: binary PCD for .pcd
// and LAS for .las.
func WriteToFile(cloud PointCloud, fn string) error {
	switch ext := filepath.Ext(fn); ext {
	case ".pcd":
		return WriteToPCDFile(cloud, fn, PCDBinary)
	case ".las":
		return WriteToLASFile(cloud, fn)
	default:
		return errors.Errorf("do not know how to write %q files (%s)", ext, fn)
	}
}

// lasValueTag is the description of the variable length record holding the point values, one
// little endian uint64 per point.
const lasValueTag = "agimus|values"

// NewFromLASFile reads a LAS file. LAS coordinates are taken as millimetres; point format 2
// colors and values stored by WriteToLASFile are restored.
func NewFromLASFile(fn string) (PointCloud, error) {
	lf, err := lidario.NewLasFile(fn, "r")
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(lf.Close)

	var values []byte
	for _, vlr := range lf.VlrData {
		if vlr.Description == lasValueTag {
			values = vlr.BinaryData
		}
	}
	if values != nil && len(values) < 8*lf.Header.NumberPoints {
		return nil, errors.Errorf("value record holds %d bytes for %d points", len(values), lf.Header.NumberPoints)
	}

	pc := NewWithPrealloc(lf.Header.NumberPoints)
	for i := 0; i < lf.Header.NumberPoints; i++ {
		p, err := lf.LasPoint(i)
		if err != nil {
			return nil, errors.Wrapf(err, "reading point %d", i)
		}
		var d Data = NewBasicData()
		switch {
		case values != nil:
			d = NewValueData(int(binary.LittleEndian.Uint64(values[8*i:])))
		case lf.Header.PointFormatID == 2 && p.RgbData() != nil:
			rgb := p.RgbData()
			d = NewColoredData(color.NRGBA{R: uint8(rgb.Red >> 8), G: uint8(rgb.Green >> 8), B: uint8(rgb.Blue >> 8), A: 255})
		}
		pd := p.PointData()
		if err := pc.Set(r3.Vector{X: pd.X, Y: pd.Y, Z: pd.Z}, d); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

// WriteToLASFile writes cloud to fn. Colored clouds use point format 2; point values go to a
// variable length record.
func WriteToLASFile(cloud PointCloud, fn string) (err error) {
	lf, err := lidario.NewLasFile(fn, "w")
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, lf.Close())
	}()

	meta := cloud.MetaData()
	header := lidario.LasHeader{}
	if meta.HasColor {
		header.PointFormatID = 2
	}
	if err := lf.AddHeader(header); err != nil {
		return err
	}

	var values bytes.Buffer
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		rec := &lidario.PointRecord0{
			X: p.X, Y: p.Y, Z: p.Z,
			// return number 1 of 1
			BitField:      lidario.PointBitField{Value: 1 | 1<<3},
			PointSourceID: 1,
		}
		var point lidario.LasPointer = rec
		if meta.HasColor {
			r, g, b := uint8(255), uint8(255), uint8(255)
			if d != nil && d.HasColor() {
				r, g, b = d.RGB255()
			}
			point = &lidario.PointRecord2{
				PointRecord0: rec,
				RGB:          &lidario.RgbData{Red: uint16(r) << 8, Green: uint16(g) << 8, Blue: uint16(b) << 8},
			}
		}
		if meta.HasValue {
			v := 0
			if d != nil && d.HasValue() {
				v = d.Value()
			}
			values.Write(binary.LittleEndian.AppendUint64(nil, uint64(v)))
		}
		err = lf.AddLasPoint(point)
		return err == nil
	})
	if err != nil || !meta.HasValue {
		return err
	}
	return lf.AddVLR(lidario.VLR{
		Description:             lasValueTag,
		BinaryData:              values.Bytes(),
		RecordLengthAfterHeader: values.Len(),
	})
}

// WriteToPCDFile writes cloud to fn with the given encoding.
func WriteToPCDFile(cloud PointCloud, fn string, outputType PCDType) (err error) {
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	w := bufio.NewWriter(f)
	if err := ToPCD(cloud, w, outputType); err != nil {
		return err
	}
	return w.Flush()
}

// pcdLayout describes the per point fields of a file: x y z, optionally followed by a packed
// rgb integer.
type pcdLayout struct {
	withColor bool
	types     []string
}

func (l pcdLayout) width() int {
	if l.withColor {
		return 4
	}
	return 3
}

func packRGB(d Data) uint32 {
	if d == nil || !d.HasColor() {
		return 0xFF0000
	}
	r, g, b := d.RGB255()
	return uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

func unpackRGB(v uint32) Data {
	return NewColoredData(color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255})
}

// ToPCD encodes cloud in the PCD 0.7 format.
func ToPCD(cloud PointCloud, out io.Writer, outputType PCDType) error {
	var data string
	switch outputType {
	case PCDAscii:
		data = "ascii"
	case PCDBinary:
		data = "binary"
	case PCDCompressed:
		return errors.New("writing compressed pcd is not supported")
	default:
		return errors.Errorf("unknown pcd output type %d", outputType)
	}

	layout := pcdLayout{withColor: cloud.MetaData().HasColor}
	fields, sizes, types, counts := "x y z", "4 4 4", "F F F", "1 1 1"
	if layout.withColor {
		fields, sizes, types, counts = fields+" rgb", sizes+" 4", types+" I", counts+" 1"
	}
	n := cloud.Size()
	if _, err := fmt.Fprintf(out,
		"VERSION .7\nFIELDS %s\nSIZE %s\nTYPE %s\nCOUNT %s\nWIDTH %d\nHEIGHT 1\nVIEWPOINT 0 0 0 1 0 0 0\nPOINTS %d\nDATA %s\n",
		fields, sizes, types, counts, n, n, data); err != nil {
		return err
	}

	var err error
	record := make([]byte, 0, 16)
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		x, y, z := p.X/metresToMM, p.Y/metresToMM, p.Z/metresToMM
		if outputType == PCDAscii {
			if layout.withColor {
				_, err = fmt.Fprintf(out, "%f %f %f %d\n", x, y, z, packRGB(d))
			} else {
				_, err = fmt.Fprintf(out, "%f %f %f\n", x, y, z)
			}
			return err == nil
		}
		record = record[:0]
		for _, c := range [3]float64{x, y, z} {
			record = binary.LittleEndian.AppendUint32(record, math.Float32bits(float32(c)))
		}
		if layout.withColor {
			record = binary.LittleEndian.AppendUint32(record, packRGB(d))
		}
		_, err = out.Write(record)
		return err == nil
	})
	return err
}

type pcdHeader struct {
	layout    pcdLayout
	width     uint64
	height    uint64
	viewpoint spatialmath.Pose
	points    uint64
	data      PCDType
}

// pcdHeaderKeys are the header entries in the order the format mandates.
var pcdHeaderKeys = []string{"VERSION", "FIELDS", "SIZE", "TYPE", "COUNT", "WIDTH", "HEIGHT", "VIEWPOINT", "POINTS", "DATA"}

func parseUints(key string, tokens []string) ([]uint64, error) {
	out := make([]uint64, 0, len(tokens))
	for _, tok := range tokens {
		v, err := strconv.ParseUint(tok, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s value %q", key, tok)
		}
		out = append(out, v)
	}
	return out, nil
}

func (h *pcdHeader) set(key string, tokens []string) error {
	perField := func() error {
		if len(tokens) != h.layout.width() {
			return errors.Errorf("%s has %d entries, expected %d", key, len(tokens), h.layout.width())
		}
		return nil
	}
	single := func() (uint64, error) {
		vals, err := parseUints(key, tokens)
		if err != nil {
			return 0, err
		}
		if len(vals) != 1 {
			return 0, errors.Errorf("%s expects a single value", key)
		}
		return vals[0], nil
	}

	var err error
	switch key {
	case "VERSION":
		if len(tokens) != 1 || (tokens[0] != ".7" && tokens[0] != "0.7") {
			return errors.Errorf("unsupported pcd version %v", tokens)
		}
	case "FIELDS":
		switch strings.Join(tokens, " ") {
		case "x y z":
		case "x y z rgb":
			h.layout.withColor = true
		default:
			return errors.Errorf("unsupported pcd fields %v", tokens)
		}
	case "SIZE":
		if err := perField(); err != nil {
			return err
		}
		sizes, err := parseUints(key, tokens)
		if err != nil {
			return err
		}
		for _, s := range sizes {
			if s != 4 {
				return errors.Errorf("unsupported field size %d, only 4 byte fields are read", s)
			}
		}
	case "TYPE":
		if err := perField(); err != nil {
			return err
		}
		for _, tok := range tokens {
			if tok != "F" && tok != "I" && tok != "U" {
				return errors.Errorf("invalid field type %q", tok)
			}
		}
		h.layout.types = tokens
	case "COUNT":
		if err := perField(); err != nil {
			return err
		}
		_, err = parseUints(key, tokens)
	case "WIDTH":
		h.width, err = single()
	case "HEIGHT":
		h.height, err = single()
	case "VIEWPOINT":
		if len(tokens) != 7 {
			return errors.Errorf("VIEWPOINT has %d entries, expected 7", len(tokens))
		}
		vp := make([]float64, 7)
		for i, tok := range tokens {
			if vp[i], err = strconv.ParseFloat(tok, 64); err != nil {
				return errors.Wrapf(err, "invalid VIEWPOINT value %q", tok)
			}
		}
		h.viewpoint = spatialmath.NewPose(
			r3.Vector{X: vp[0], Y: vp[1], Z: vp[2]}.Mul(metresToMM), spatialmath.QuatFromSlice(vp[3:]))
	case "POINTS":
		if h.points, err = single(); err != nil {
			return err
		}
		if h.points != h.width*h.height {
			return errors.Errorf("POINTS %d does not match WIDTH*HEIGHT %d", h.points, h.width*h.height)
		}
	case "DATA":
		t, ok := pcdTypeNames[strings.Join(tokens, " ")]
		if !ok {
			return errors.Errorf("unsupported pcd data %v", tokens)
		}
		h.data = t
	}
	return err
}

func readPCDHeader(in *bufio.Reader) (pcdHeader, error) {
	var h pcdHeader
	for next := 0; next < len(pcdHeaderKeys); {
		line, err := in.ReadString('\n')
		if err != nil {
			return h, errors.Wrapf(err, "reading pcd header, expecting %s", pcdHeaderKeys[next])
		}
		line, _, _ = strings.Cut(line, "#")
		tokens := strings.Fields(line)
		if len(tokens) == 0 {
			continue
		}
		if tokens[0] != pcdHeaderKeys[next] {
			return h, errors.Errorf("expected %s in pcd header, got %q", pcdHeaderKeys[next], strings.TrimSpace(line))
		}
		if err := h.set(tokens[0], tokens[1:]); err != nil {
			return h, err
		}
		next++
	}
	return h, nil
}

// ReadPCD decodes an ascii or binary PCD stream with x y z or x y z rgb fields.
func ReadPCD(r io.Reader) (PointCloud, error) {
	in := bufio.NewReader(r)
	h, err := readPCDHeader(in)
	if err != nil {
		return nil, err
	}
	var next func() ([]float64, error)
	switch h.data {
	case PCDAscii:
		next = asciiRecords(in, h.layout)
	case PCDBinary:
		next = binaryRecords(in, h.layout)
	default:
		return nil, errors.New("compressed pcd is not supported")
	}

	pc := NewWithPrealloc(int(h.points))
	for i := uint64(0); i < h.points; i++ {
		rec, err := next()
		if err != nil {
			return nil, errors.Wrapf(err, "reading point %d", i)
		}
		var d Data = NewBasicData()
		if h.layout.withColor {
			d = unpackRGB(uint32(rec[3]))
		}
		if err := pc.Set(r3.Vector{X: rec[0], Y: rec[1], Z: rec[2]}.Mul(metresToMM), d); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

func asciiRecords(in *bufio.Reader, layout pcdLayout) func() ([]float64, error) {
	return func() ([]float64, error) {
		line, err := in.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return nil, err
		}
		tokens := strings.Fields(line)
		if len(tokens) != layout.width() {
			return nil, errors.Errorf("%d fields instead of %d", len(tokens), layout.width())
		}
		rec := make([]float64, len(tokens))
		for i, tok := range tokens {
			if rec[i], err = strconv.ParseFloat(tok, 64); err != nil {
				return nil, errors.Wrapf(err, "invalid value %q", tok)
			}
		}
		return rec, nil
	}
}

func binaryRecords(in *bufio.Reader, layout pcdLayout) func() ([]float64, error) {
	buf := make([]byte, 4*layout.width())
	return func() ([]float64, error) {
		if _, err := io.ReadFull(in, buf); err != nil {
			return nil, err
		}
		rec := make([]float64, layout.width())
		for i := range rec {
			raw := binary.LittleEndian.Uint32(buf[4*i:])
			if i < 3 && layout.types[i] == "F" {
				// float32 noise is rounded off at a tenth of a millimetre
				rec[i] = math.Round(float64(math.Float32frombits(raw))*1e4) / 1e4
			} else {
				rec[i] = float64(raw)
			}
		}
		return rec, nil
	}
}
