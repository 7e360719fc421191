package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/morezero/autodraw-agent/pkg/spec"
)

// dimensionFlags maps numeric flags to dimension keys.
var dimensionFlags = map[string]string{
	"length":     spec.DimLength,
	"width":      spec.DimWidth,
	"height":     spec.DimHeight,
	"radius":     spec.DimRadius,
	"major-axis": spec.DimMajorAxis,
	"minor-axis": spec.DimMinorAxis,
}

// pointFlags maps "x,y[,z]" flags to position keys.
var pointFlags = map[string]string{
	"start":           "start_point",
	"end":             "end_point",
	"center":          "center_point",
	"insertion-point": "insertion_point",
}

// attributeFlags and extraFlags map flags to attribute and extra keys.
var attributeFlags = map[string]string{
	"wattage":      "wattage",
	"color-temp":   "color_temperature",
	"lens":         "lens_type",
	"mounting":     "mounting_type",
	"driver":       "driver_type",
	"quantity":     "quantity",
	"text-content": "text_content",
	"text-height":  "text_height",
	"block-name":   "block_name",
	"pattern-name": "pattern_name",
}

var extraFlags = map[string]string{
	"spacing":          "spacing",
	"voltage":          "voltage",
	"emergency-backup": "emergency_backup",
	"dimmable":         "dimmable",
	"ip-rating":        "ip_rating",
	"rotation":         "rotation",
}

// drawFlags are the input flags of the draw command.
func drawFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "natural", Aliases: []string{"n"}, Usage: "Free-text drawing request"},
		&cli.StringFlag{Name: "batch-file", Aliases: []string{"b"}, Usage: "File with one request per line (JSON specification or free text)"},
		&cli.BoolFlag{Name: "dry-run", Usage: "Normalize and validate only; nothing is sent to the host"},

		&cli.StringFlag{Name: "system", Aliases: []string{"s"}, Usage: "Lighting system key (e.g. ls, lsr, rush)"},
		&cli.StringFlag{Name: "command", Aliases: []string{"c"}, Usage: "Catalog command (e.g. linear_light, circle)"},

		&cli.Float64Flag{Name: "length", Usage: "Length"},
		&cli.Float64Flag{Name: "width", Usage: "Width"},
		&cli.Float64Flag{Name: "height", Usage: "Height"},
		&cli.Float64Flag{Name: "radius", Usage: "Radius"},
		&cli.Float64Flag{Name: "major-axis", Usage: "Ellipse major axis"},
		&cli.Float64Flag{Name: "minor-axis", Usage: "Ellipse minor axis"},

		&cli.StringFlag{Name: "start", Usage: "Start point x,y[,z]"},
		&cli.StringFlag{Name: "end", Usage: "End point x,y[,z]"},
		&cli.StringFlag{Name: "center", Usage: "Center point x,y[,z]"},
		&cli.StringFlag{Name: "insertion-point", Usage: "Insertion point x,y[,z]"},
		&cli.StringFlag{Name: "points", Usage: "Polyline points x1,y1;x2,y2;..."},
		&cli.StringFlag{Name: "orientation", Usage: "horizontal or vertical"},

		&cli.Float64Flag{Name: "wattage", Usage: "Fixture wattage"},
		&cli.StringFlag{Name: "color-temp", Usage: "Color temperature (e.g. 4000K)"},
		&cli.StringFlag{Name: "lens", Usage: "Lens type"},
		&cli.StringFlag{Name: "mounting", Usage: "Mounting type"},
		&cli.StringFlag{Name: "driver", Usage: "Driver type"},
		&cli.Float64Flag{Name: "quantity", Usage: "Fixture count"},
		&cli.StringFlag{Name: "text-content", Usage: "Text to place"},
		&cli.Float64Flag{Name: "text-height", Usage: "Text height"},
		&cli.StringFlag{Name: "block-name", Usage: "Block to insert"},
		&cli.StringFlag{Name: "pattern-name", Usage: "Hatch pattern"},

		&cli.Float64Flag{Name: "spacing", Usage: "Fixture spacing"},
		&cli.Float64Flag{Name: "voltage", Usage: "Supply voltage"},
		&cli.BoolFlag{Name: "emergency-backup", Usage: "Emergency battery backup"},
		&cli.BoolFlag{Name: "dimmable", Usage: "Dimmable driver"},
		&cli.StringFlag{Name: "ip-rating", Usage: "Ingress protection rating (e.g. IP65)"},
		&cli.Float64Flag{Name: "rotation", Usage: "Rotation in degrees"},
	}
}

// specFromFlags builds a Specification from the structured draw flags. It
// reports false when none of them is set.
func specFromFlags(c *cli.Context) (*spec.Specification, bool, error) {
	s := &spec.Specification{
		Command:        c.String("command"),
		LightingSystem: c.String("system"),
		Dimensions:     spec.Dimensions{},
		Attributes:     spec.Values{},
		Extras:         spec.Values{},
	}
	set := c.IsSet("command") || c.IsSet("system")

	for flag, key := range dimensionFlags {
		if c.IsSet(flag) {
			s.Dimensions[key] = c.Float64(flag)
			set = true
		}
	}

	for flag, key := range pointFlags {
		if !c.IsSet(flag) {
			continue
		}
		p, err := spec.ParsePoint3(c.String(flag))
		if err != nil {
			return nil, false, fmt.Errorf("--%s: %w", flag, err)
		}
		setPoint(&s.Position, key, p)
		set = true
	}
	if c.IsSet("points") {
		pts, err := spec.ParsePoints(c.String("points"))
		if err != nil {
			return nil, false, fmt.Errorf("--points: %w", err)
		}
		s.Position.Points = pts
		set = true
	}
	if c.IsSet("orientation") {
		s.Position.Orientation = c.String("orientation")
		set = true
	}

	set = copyValues(c, attributeFlags, s.Attributes) || set
	set = copyValues(c, extraFlags, s.Extras) || set

	if len(s.Dimensions) == 0 {
		s.Dimensions = nil
	}
	if len(s.Attributes) == 0 {
		s.Attributes = nil
	}
	if len(s.Extras) == 0 {
		s.Extras = nil
	}
	return s, set, nil
}

func setPoint(pos *spec.Position, key string, p spec.Point3) {
	switch key {
	case "start_point":
		pos.StartPoint = &p
	case "end_point":
		pos.EndPoint = &p
	case "center_point":
		pos.CenterPoint = &p
	case "insertion_point":
		pos.InsertionPoint = &p
	}
}

// copyValues copies every set flag of m into dst, keeping the flag's type.
func copyValues(c *cli.Context, m map[string]string, dst spec.Values) bool {
	set := false
	for _, f := range c.Command.Flags {
		name := f.Names()[0]
		key, ok := m[name]
		if !ok || !c.IsSet(name) {
			continue
		}
		switch f.(type) {
		case *cli.Float64Flag:
			dst[key] = c.Float64(name)
		case *cli.BoolFlag:
			dst[key] = c.Bool(name)
		default:
			dst[key] = c.String(name)
		}
		set = true
	}
	return set
}
