package tlv

import (
	"encoding/hex"
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// WriteStructFields inspects a struct and writes its populated fields to sb,
// one line per field. Lines are joined with newlines without a trailing one;
// when sb already has content a separating newline is written first.
func WriteStructFields(sb *strings.Builder, prefix string, s interface{}) {
	val := reflect.ValueOf(s)

	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return
	}

	typ := val.Type()
	var lines []string

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		switch {
		case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.Uint8:
			if line := formatByteSliceField(prefix, field, fieldType); line != "" {
				lines = append(lines, line)
			}
		case field.Type() == reflect.TypeOf([]bertlv.TLV{}):
			lines = append(lines, formatUnknownField(prefix, field)...)
		case field.Kind() == reflect.String && field.Len() > 0:
			lines = append(lines, fmt.Sprintf("    - %s.%s: %s", prefix, fieldName(fieldType), field.String()))
		case field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Int && !field.IsNil():
			lines = append(lines, fmt.Sprintf("    - %s.%s: %d", prefix, fieldName(fieldType), field.Elem().Int()))
		}
	}

	if len(lines) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(strings.Join(lines, "\n"))
	}
}

func fieldName(f reflect.StructField) string {
	if tag := f.Tag.Get("tlv"); tag != "" && tag != ",unknown" {
		return fmt.Sprintf("%s (%s)", f.Name, tag)
	}
	return f.Name
}

func formatByteSliceField(prefix string, field reflect.Value, fieldType reflect.StructField) string {
	if field.IsNil() || field.Len() == 0 {
		return ""
	}

	display := formatByteValue(field.Bytes(), fieldType.Tag.Get("fmt"))
	return fmt.Sprintf("    - %s.%s: %s", prefix, fieldName(fieldType), display)
}

func formatUnknownField(prefix string, field reflect.Value) []string {
	if field.IsNil() || field.Len() == 0 {
		return nil
	}

	var lines []string
	for _, t := range field.Interface().([]bertlv.TLV) {
		lines = append(lines, fmt.Sprintf("    - %s.Unknown Tag %s: %s", prefix, t.Tag, HexString(rawValue(t))))
	}
	return lines
}

func formatByteValue(data []byte, format string) string {
	switch format {
	case "ascii":
		return fmt.Sprintf("%X (%q)", data, MakeSafeASCII(data))
	case "int":
		return fmt.Sprintf("%X (Dec: %d)", data, bigEndian(data))
	default:
		return strings.ToUpper(hex.EncodeToString(data))
	}
}

// MakeSafeASCII replaces every non printable byte with a dot.
func MakeSafeASCII(data []byte) string {
	return strings.Map(func(r rune) rune {
		if r >= 32 && r <= 126 {
			return r
		}
		return '.'
	}, string(data))
}

// DescribeTree renders a decoded tree, one data object per line, children
// indented under their template.
func DescribeTree(nodes []Node) string {
	var sb strings.Builder
	describeNodes(&sb, nodes, 0)
	return strings.TrimRight(sb.String(), "\n")
}

func describeNodes(sb *strings.Builder, nodes []Node, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, n := range nodes {
		if n.IsConstructed() {
			fmt.Fprintf(sb, "%s%s [%d]\n", indent, n.Tag, n.Len())
			describeNodes(sb, n.Children, depth+1)
			continue
		}
		fmt.Fprintf(sb, "%s%s [%d] %s\n", indent, n.Tag, n.Len(), HexString(n.Value))
	}
}
