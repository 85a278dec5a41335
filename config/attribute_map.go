package config

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// AttributeMap is a loosely typed set of attributes.
type AttributeMap map[string]interface{}

// Has returns whether name is set.
func (am AttributeMap) Has(name string) bool {
	_, has := am[name]
	return has
}

// Bool returns the boolean at name, or def when it is missing. It panics on other types.
func (am AttributeMap) Bool(name string, def bool) bool {
	x, has := am[name]
	if !has {
		return def
	}
	if v, ok := x.(bool); ok {
		return v
	}
	panic(fmt.Errorf("wanted a bool for (%s) but got (%v) %T", name, x, x))
}

// Decode decodes the attributes at name into out, using json tags.
// A missing name leaves out untouched.
func (am AttributeMap) Decode(name string, out interface{}) error {
	x, has := am[name]
	if !has {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "json", Result: out})
	if err != nil {
		return err
	}
	return decoder.Decode(x)
}

// DisplayConfig turns on logging of the built geometry.
type DisplayConfig struct {
	FieldOfView bool `json:"field_of_view"`
	PointCloud  bool `json:"point_cloud"`
}

// Display returns the display settings, read from the "display" extra attributes.
func (c *Config) Display() (DisplayConfig, error) {
	var dc DisplayConfig
	if err := c.Extra.Decode("display", &dc); err != nil {
		return DisplayConfig{}, err
	}
	return dc, nil
}
