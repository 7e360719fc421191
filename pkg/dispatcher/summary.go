package dispatcher

import (
	"strings"

	"github.com/morezero/autodraw-agent/pkg/spec"
)

const notAvailable = "N/A"

// Summary renders the human readable description of a drawn specification.
// The dimensions line appears when dimensions are present, the attribute
// lines when attributes are present.
func Summary(s *spec.Specification) string {
	subject := s.LightingSystem
	if subject == "" {
		subject = s.Command
	}

	var b strings.Builder
	b.WriteString("Created " + subject + " drawing:\n")

	if len(s.Dimensions) > 0 {
		b.WriteString("- Dimensions: " + dimension(s, spec.DimLength) + " x " + dimension(s, spec.DimWidth) + " x " + dimension(s, spec.DimHeight) + "\n")
	}

	if len(s.Attributes) > 0 {
		wattage := notAvailable
		if w, ok := s.Attributes.String("wattage"); ok && w != "" {
			wattage = strings.TrimSuffix(strings.TrimSuffix(w, "W"), "w") + "W"
		}
		b.WriteString("- Wattage: " + wattage + "\n")
		b.WriteString("- Color Temperature: " + attributeValue(s, "color_temperature") + "\n")
		b.WriteString("- Quantity: " + attributeValue(s, "quantity") + "\n")
	}
	return b.String()
}

func dimension(s *spec.Specification, key string) string {
	if n, ok := s.Dimensions.Get(key); ok {
		return spec.FormatNumber(n)
	}
	return notAvailable
}

func attributeValue(s *spec.Specification, key string) string {
	if v, ok := s.Attributes.String(key); ok && v != "" {
		return v
	}
	return notAvailable
}
