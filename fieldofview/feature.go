package fieldofview

// Feature is a named landmark of a given size that a sensor should be able to see.
type Feature struct {
	name string
	size float64
}

// NewFeature returns a feature. No validation is done on size.
func NewFeature(name string, size float64) Feature {
	return Feature{name: name, size: size}
}

// Name returns the name of the feature.
func (f Feature) Name() string {
	return f.name
}

// Size returns the size of the feature.
func (f Feature) Size() float64 {
	return f.size
}

// FeatureGroup is a set of features sharing visibility parameters.
type FeatureGroup struct {
	features []Feature

	VisibilityThreshold int
	DepthMargin         float64
	SizeMargin          float64
}

// NewFeatureGroup returns a group with no feature.
func NewFeatureGroup(visibilityThreshold int, depthMargin, sizeMargin float64) *FeatureGroup {
	return &FeatureGroup{
		VisibilityThreshold: visibilityThreshold,
		DepthMargin:         depthMargin,
		SizeMargin:          sizeMargin,
	}
}

// AddFeature appends f to the group.
func (g *FeatureGroup) AddFeature(f Feature) {
	g.features = append(g.features, f)
}

// Features returns a copy of the features, in insertion order.
func (g *FeatureGroup) Features() []Feature {
	return append([]Feature{}, g.features...)
}
