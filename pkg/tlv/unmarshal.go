// Package tlv decodes BER-TLV (Basic Encoding Rules - Tag-Length-Value) data
// as found in smart card responses, and maps decoded templates onto Go
// structures using struct tags.
//
// Decoding is done by Decode, which tolerates card padding and never reads
// out of bounds. Mapping onto structs goes through the moov-io/bertlv packet
// type, so the same templates can be fed from either decoder.
package tlv

import (
	"encoding/hex"
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// Unmarshaler allows custom types to implement their own TLV parsing logic.
type Unmarshaler interface {
	UnmarshalTLV(data []byte) error
}

// Unmarshal decodes raw BER-TLV data and maps it into a target Go struct.
func Unmarshal(data []byte, target interface{}) error {
	nodes, err := Decode(data)
	if err != nil {
		return err
	}
	return UnmarshalNodes(nodes, target)
}

// UnmarshalNodes maps an already decoded tree onto a target struct.
func UnmarshalNodes(nodes []Node, target interface{}) error {
	return UnmarshalFromPackets(ToBERTLV(nodes), target)
}

// ToBERTLV converts decoded nodes into bertlv packets. Constructed packets
// keep both their raw value and their children.
func ToBERTLV(nodes []Node) []bertlv.TLV {
	packets := make([]bertlv.TLV, 0, len(nodes))
	for _, n := range nodes {
		p := bertlv.TLV{Tag: n.Tag.String(), Value: n.Value}
		if n.IsConstructed() {
			p.TLVs = ToBERTLV(n.Children)
		}
		packets = append(packets, p)
	}
	return packets
}

// UnmarshalFromPackets maps a slice of bertlv packets to a target struct.
// Supported field kinds: []byte (raw value), string (hex, or text with
// fmt:"ascii"), int and *int (big-endian unsigned), nested structs and
// slices of structs (one element per occurrence of the tag).
// A field named Unknown (or tagged `tlv:",unknown"`) collects leftovers.
func UnmarshalFromPackets(packets []bertlv.TLV, target interface{}) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("target must be a non-nil pointer")
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("target must point to a struct, got %s", v.Kind())
	}
	t := v.Type()

	consumed := make(map[int]bool)

	for i := 0; i < v.NumField(); i++ {
		fieldType := t.Field(i)
		tagHex, ok := fieldTag(fieldType)
		if !ok {
			continue
		}

		for idx, packet := range packets {
			if !strings.EqualFold(packet.Tag, tagHex) {
				continue
			}
			if err := mapPacketToField(packet, v.Field(i), fieldType); err != nil {
				return fmt.Errorf("field %s (tag %s): %w", fieldType.Name, tagHex, err)
			}
			consumed[idx] = true
		}
	}

	return handleUnknownFields(v, t, packets, consumed)
}

func fieldTag(f reflect.StructField) (string, bool) {
	cfg := f.Tag.Get("tlv")
	if cfg == "" || cfg == ",unknown" || f.Name == "Unknown" {
		return "", false
	}
	return strings.ToUpper(strings.Split(cfg, ",")[0]), true
}

func mapPacketToField(packet bertlv.TLV, field reflect.Value, fieldType reflect.StructField) error {
	// Repeated templates: grow the slice, one element per occurrence.
	if field.Kind() == reflect.Slice && !isByteSlice(field) {
		elem := reflect.New(field.Type().Elem()).Elem()
		if err := decodeToValue(packet, elem, fieldType); err != nil {
			return err
		}
		field.Set(reflect.Append(field, elem))
		return nil
	}

	return decodeToValue(packet, field, fieldType)
}

func decodeToValue(packet bertlv.TLV, field reflect.Value, fieldType reflect.StructField) error {
	if field.CanAddr() {
		if u, ok := field.Addr().Interface().(Unmarshaler); ok {
			return u.UnmarshalTLV(rawValue(packet))
		}
	}

	switch {
	case isByteSlice(field):
		field.SetBytes(rawValue(packet))
		return nil

	case field.Kind() == reflect.String:
		if fieldType.Tag.Get("fmt") == "ascii" {
			field.SetString(string(packet.Value))
		} else {
			field.SetString(strings.ToUpper(hex.EncodeToString(packet.Value)))
		}
		return nil

	case field.Kind() == reflect.Int:
		field.SetInt(int64(bigEndian(packet.Value)))
		return nil

	case field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Int:
		n := int(bigEndian(packet.Value))
		field.Set(reflect.ValueOf(&n))
		return nil

	case isStructOrPtrToStruct(field):
		target := getTargetField(field)
		if len(packet.TLVs) > 0 {
			return UnmarshalFromPackets(packet.TLVs, target.Interface())
		}
		return Unmarshal(packet.Value, target.Interface())
	}

	return nil
}

func handleUnknownFields(v reflect.Value, t reflect.Type, packets []bertlv.TLV, consumed map[int]bool) error {
	unknownField, found := findUnknownField(v, t)
	if !found {
		return nil
	}

	var leftovers []bertlv.TLV
	for idx, packet := range packets {
		if !consumed[idx] {
			leftovers = append(leftovers, packet)
		}
	}

	if len(leftovers) > 0 && unknownField.CanSet() {
		unknownField.Set(reflect.ValueOf(leftovers))
	}
	return nil
}

func findUnknownField(v reflect.Value, t reflect.Type) (reflect.Value, bool) {
	for i := 0; i < v.NumField(); i++ {
		tag := t.Field(i).Tag.Get("tlv")
		if tag == ",unknown" || t.Field(i).Name == "Unknown" {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// rawValue returns the value bytes of a packet. Packets built by hand may
// only carry children, in which case they are re-encoded.
func rawValue(p bertlv.TLV) []byte {
	if len(p.Value) == 0 && len(p.TLVs) > 0 {
		if enc, err := bertlv.Encode(p.TLVs); err == nil {
			return enc
		}
	}
	return p.Value
}

func bigEndian(data []byte) uint64 {
	var n uint64
	for _, b := range data {
		n = n<<8 | uint64(b)
	}
	return n
}

// GetValue decodes data and returns the value of the first root object
// carrying tag.
func GetValue(data []byte, tag Tag) ([]byte, error) {
	nodes, err := Decode(data)
	if err != nil {
		return nil, err
	}

	node, ok := Find(nodes, tag)
	if !ok {
		return nil, fmt.Errorf("tag %s not found", tag)
	}
	return node.Value, nil
}

func isByteSlice(v reflect.Value) bool {
	return v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8
}

func isStructOrPtrToStruct(v reflect.Value) bool {
	if v.Kind() == reflect.Struct {
		return true
	}
	if v.Kind() == reflect.Ptr && v.Type().Elem().Kind() == reflect.Struct {
		return true
	}
	return false
}

func getTargetField(field reflect.Value) reflect.Value {
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return field
	}
	return field.Addr()
}
