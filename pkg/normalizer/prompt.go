package normalizer

import (
	"fmt"
	"strings"

	"github.com/morezero/autodraw-agent/pkg/capability"
	"github.com/morezero/autodraw-agent/pkg/spec"
)

// SystemPrompt is the fixed system role text sent with every completion request.
const SystemPrompt = "You are a drafting assistant for lighting layouts. " +
	"You translate drawing requests into a single JSON object and never answer with prose."

// AttributeKeys and ExtrasKeys are the documented keys of the two value sections.
var (
	AttributeKeys = []string{
		"wattage", "color_temperature", "lens_type", "mounting_type", "driver_type",
		"quantity", "text_content", "text_height", "block_name", "pattern_name",
	}
	ExtrasKeys = []string{
		"spacing", "voltage", "emergency_backup", "dimmable", "ip_rating",
		"rotation", "array_rows", "array_columns", "array_spacing", "fillet_radius", "chamfer_distance",
		"scale_factor", "angle", "offset_distance",
	}
)

const fieldShape = `{
  "command": "<one of the commands above>",
  "lighting_system": "<lighting system key, fixtures only>",
  "dimensions": {"length": number, "width": number, "height": number, "radius": number, "major_axis": number, "minor_axis": number},
  "position": {"start_point": [x, y, z], "end_point": [x, y, z], "center_point": [x, y, z], "insertion_point": [x, y, z], "points": [[x, y, z], ...], "orientation": "horizontal|vertical|angled"},
  "attributes": {%s},
  "extras": {%s}
}`

const promptExample = `Request: a 10 foot linear light from 5,5 to 15,5, 50W, 4000k, clear lens
{"command": "linear_light", "lighting_system": "ls", "dimensions": {"length": 10, "width": 4}, "position": {"start_point": [5, 5, 0], "end_point": [15, 5, 0], "orientation": "horizontal"}, "attributes": {"wattage": 50, "color_temperature": "4000k", "lens_type": "clear"}}`

// BuildPrompt renders the instruction prompt for the completion service. The
// output depends only on the registry contents, so the same registry always
// produces byte-identical text.
func BuildPrompt(reg *capability.Registry) string {
	var b strings.Builder

	b.WriteString("Convert the drawing request into JSON.\n\n")

	b.WriteString("Available commands:\n")
	for _, class := range capability.Classes {
		cmds := reg.Commands(class)
		if len(cmds) == 0 {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", class, strings.Join(cmds, ", "))
	}

	b.WriteString("\nLighting systems (fixture commands require one):\n")
	for _, ls := range reg.LightingSystems() {
		fmt.Fprintf(&b, "- %s: %s (command %s, default %sW, %s x %s)\n",
			ls.Key, ls.Name, ls.Command, spec.FormatNumber(ls.DefaultWattage),
			spec.FormatNumber(ls.Length), spec.FormatNumber(ls.Width))
	}

	vocab := reg.Vocabulary()
	b.WriteString("\n")
	fmt.Fprintf(&b, "Mounting types: %s\n", strings.Join(vocab.Mounting, ", "))
	fmt.Fprintf(&b, "Lens types: %s\n", strings.Join(vocab.Lens, ", "))
	fmt.Fprintf(&b, "Color temperatures: %s\n", strings.Join(vocab.ColorTemperatures, ", "))

	b.WriteString("\nRespond with exactly one JSON object in this shape:\n")
	fmt.Fprintf(&b, fieldShape, quotedKeys(AttributeKeys), quotedKeys(ExtrasKeys))
	b.WriteString("\n\nOmit every field the request does not mention. Never invent zero values. ")
	b.WriteString("Points are [x, y, z] arrays; z may be omitted.\n\n")

	b.WriteString("Example:\n")
	b.WriteString(promptExample)
	b.WriteString("\n")
	return b.String()
}

func quotedKeys(keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%q: ...", k)
	}
	return strings.Join(parts, ", ")
}

// UserMessage combines the built prompt with the user's request text.
func UserMessage(prompt, text string) string {
	return prompt + "\nRequest: " + strings.TrimSpace(text)
}
