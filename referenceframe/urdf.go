package referenceframe

import (
	"encoding/xml"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/agimus-project/agimus/spatialmath"
)

// Supported URDF joint types.
const (
	FixedJoint      = "fixed"
	ContinuousJoint = "continuous"
	RevoluteJoint   = "revolute"
	PrismaticJoint  = "prismatic"
)

// URDFConfig represents all supported fields in a Universal Robot Description Format (URDF) file.
type URDFConfig struct {
	XMLName xml.Name    `xml:"robot"`
	Name    string      `xml:"name,attr"`
	Links   []URDFLink  `xml:"link"`
	Joints  []URDFJoint `xml:"joint"`
}

// URDFLink is a struct which details the XML used in a URDF link element.
type URDFLink struct {
	XMLName  xml.Name      `xml:"link"`
	Name     string        `xml:"name,attr"`
	Inertial *URDFInertial `xml:"inertial,omitempty"`
}

// URDFInertial holds the mass of a link.
type URDFInertial struct {
	Mass struct {
		Value float64 `xml:"value,attr"`
	} `xml:"mass"`
}

// URDFLimit is the limit element of a joint.
type URDFLimit struct {
	XMLName xml.Name `xml:"limit"`
	Lower   float64  `xml:"lower,attr"` // translation limits are in meters, revolute limits are in radians
	Upper   float64  `xml:"upper,attr"` // translation limits are in meters, revolute limits are in radians
}

// URDFFrame names the link at one end of a joint.
type URDFFrame struct {
	Link string `xml:"link,attr"`
}

// URDFPose is the origin element of a joint, in meters and radians.
type URDFPose struct {
	XYZ string `xml:"xyz,attr"`
	RPY string `xml:"rpy,attr"`
}

// URDFAxis is the axis element of a joint.
type URDFAxis struct {
	XYZ string `xml:"xyz,attr"`
}

// URDFJoint is a struct which details the XML used in a URDF joint element.
type URDFJoint struct {
	XMLName xml.Name   `xml:"joint"`
	Name    string     `xml:"name,attr"`
	Type    string     `xml:"type,attr"`
	Parent  URDFFrame  `xml:"parent"`
	Child   URDFFrame  `xml:"child"`
	Origin  *URDFPose  `xml:"origin,omitempty"`
	Axis    *URDFAxis  `xml:"axis,omitempty"`
	Limit   *URDFLimit `xml:"limit,omitempty"`
}

// ParseURDFFile will read a given file and parse the contained URDF XML data into a Model.
func ParseURDFFile(filename, modelName string) (*Model, error) {
	//nolint:gosec
	xmlData, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to read URDF file")
	}
	return ParseURDF(xmlData, modelName)
}

// ParseURDF builds a Model from URDF XML data. Every link becomes a static frame carrying the link
// mass, every joint a frame placed at the joint origin in its parent link. Lengths are converted
// from meters to millimeters.
func ParseURDF(xmlData []byte, modelName string) (*Model, error) {
	// empty data probably means that the read URDF has no actionable information
	if len(xmlData) == 0 {
		return nil, ErrNoModelInformation
	}

	urdf := &URDFConfig{}
	if err := xml.Unmarshal(xmlData, urdf); err != nil {
		return nil, errors.Wrap(err, "Failed to convert URDF data to equivalent URDFConfig struct")
	}
	if modelName == "" {
		modelName = urdf.Name
	}

	masses := map[string]float64{}
	for _, link := range urdf.Links {
		if link.Inertial != nil {
			masses[link.Name] = link.Inertial.Mass.Value
		}
	}

	childOf := map[string]bool{}
	jointsByParent := map[string][]URDFJoint{}
	for _, joint := range urdf.Joints {
		// Checking for reserved names in this or adjacent elements
		if joint.Name == World {
			return nil, errors.New("Joints with the name 'world' are not supported by config parsers")
		}
		childOf[joint.Child.Link] = true
		jointsByParent[joint.Parent.Link] = append(jointsByParent[joint.Parent.Link], joint)
	}

	model := NewModel(modelName)
	queue := []string{}
	for _, link := range urdf.Links {
		if link.Name == World || childOf[link.Name] {
			continue
		}
		if err := model.AddFrame(NewZeroStaticFrame(link.Name), World, masses[link.Name]); err != nil {
			return nil, err
		}
		queue = append(queue, link.Name)
	}
	if _, ok := jointsByParent[World]; ok {
		queue = append(queue, World)
	}

	// breadth first so that parents are always added before their children
	for len(queue) > 0 {
		link := queue[0]
		queue = queue[1:]
		for _, joint := range jointsByParent[link] {
			frame, placement, err := joint.toFrame()
			if err != nil {
				return nil, err
			}
			if err := model.AddFrameWithPlacement(frame, link, placement, 0); err != nil {
				return nil, err
			}
			child := joint.Child.Link
			if err := model.AddFrame(NewZeroStaticFrame(child), joint.Name, masses[child]); err != nil {
				return nil, err
			}
			queue = append(queue, child)
		}
	}
	if len(model.FrameNames()) == 0 {
		return nil, ErrNoModelInformation
	}
	return model, nil
}

func (j URDFJoint) toFrame() (Frame, spatialmath.Pose, error) {
	placement := spatialmath.NewZeroPose()
	if j.Origin != nil {
		xyz, err := spaceDelimitedFloats(j.Origin.XYZ, 3)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "joint %q origin xyz", j.Name)
		}
		rpy, err := spaceDelimitedFloats(j.Origin.RPY, 3)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "joint %q origin rpy", j.Name)
		}
		placement = spatialmath.NewPose(
			r3.Vector{X: metersToMM(xyz[0]), Y: metersToMM(xyz[1]), Z: metersToMM(xyz[2])},
			spatialmath.NewQuatFromRPY(rpy[0], rpy[1], rpy[2]),
		)
	}

	axis := r3.Vector{X: 1}
	if j.Axis != nil {
		xyz, err := spaceDelimitedFloats(j.Axis.XYZ, 3)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "joint %q axis", j.Name)
		}
		axis = r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]}
	}

	// Slightly different limits handling for continuous, revolute, and prismatic joints
	var frame Frame
	var err error
	switch j.Type {
	case FixedJoint:
		frame = NewZeroStaticFrame(j.Name)
	case ContinuousJoint:
		frame, err = NewRotationalFrame(j.Name, axis, Limit{Min: math.Inf(-1), Max: math.Inf(1)})
	case RevoluteJoint:
		if j.Limit == nil {
			return nil, nil, errors.Errorf("revolute joint %q has no limit", j.Name)
		}
		frame, err = NewRotationalFrame(j.Name, axis, Limit{Min: j.Limit.Lower, Max: j.Limit.Upper})
	case PrismaticJoint:
		if j.Limit == nil {
			return nil, nil, errors.Errorf("prismatic joint %q has no limit", j.Name)
		}
		frame, err = NewTranslationalFrame(j.Name, axis, Limit{Min: metersToMM(j.Limit.Lower), Max: metersToMM(j.Limit.Upper)})
	default:
		return nil, nil, NewUnsupportedJointTypeError(j.Type)
	}
	return frame, placement, err
}

func metersToMM(m float64) float64 {
	return m * 1000
}

// spaceDelimitedFloats parses "a b c". An empty string yields n zeros.
func spaceDelimitedFloats(s string, n int) ([]float64, error) {
	out := make([]float64, n)
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return out, nil
	}
	if len(fields) != n {
		return nil, errors.Errorf("expected %d values, got %q", n, s)
	}
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
