package format

import (
	"strings"
)

// Missing is the sentinel substituted for absent or empty values.
const Missing = "N/A"

// Substitute renders a {name}-placeholder template against a flat string
// map. Unknown names resolve to the Missing sentinel rather than erroring;
// doubled braces escape to literal braces.
func Substitute(template string, data map[string]string) string {
	var out strings.Builder
	out.Grow(len(template))

	for i := 0; i < len(template); i++ {
		ch := template[i]
		switch ch {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				out.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				out.WriteByte(ch)
				continue
			}
			key := template[i+1 : i+1+end]
			if value, ok := data[key]; ok && value != "" {
				out.WriteString(value)
			} else {
				out.WriteString(Missing)
			}
			i += end + 1
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				i++
			}
			out.WriteByte('}')
		default:
			out.WriteByte(ch)
		}
	}

	return out.String()
}
