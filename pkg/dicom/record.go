// Package dicom provides typed access to parsed DICOM-RT records.
//
// The package does not read files or decode pixel data; it is the stand-in
// for the dataset-attribute reader the RT core consumes. A Record holds
// already-extracted element values keyed by tag, with typed getters for
// strings, integers, doubles, dates and nested sequences.
package dicom

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oncura/rtdose.go/pkg/dicom/tag"
)

// Record represents a parsed DICOM dataset as a map of typed elements
type Record struct {
	Elements map[Tag]*Element
}

// Element represents a single DICOM element
type Element struct {
	Tag   Tag
	VR    string      // Value Representation
	Value interface{} // Parsed value
}

// Tag alias to avoid duplication
type Tag = tag.Tag

// NewRecord creates an empty record
func NewRecord() *Record {
	return &Record{Elements: make(map[Tag]*Element)}
}

// Set stores a value under a tag, replacing any previous element
func (r *Record) Set(t Tag, value interface{}) {
	r.Elements[t] = &Element{Tag: t, Value: value}
}

// FindElement returns an element by tag
func (r *Record) FindElement(t Tag) (*Element, bool) {
	elem, ok := r.Elements[t]
	return elem, ok
}

// GetString returns a string value for a tag, or "" when absent
func (r *Record) GetString(t Tag) string {
	if elem, ok := r.Elements[t]; ok {
		if s, ok := elem.GetString(); ok {
			return s
		}
	}
	return ""
}

// GetInt returns an integer value for a tag, or def when absent
func (r *Record) GetInt(t Tag, def int) int {
	if elem, ok := r.Elements[t]; ok {
		if i, ok := elem.GetInt(); ok {
			return i
		}
	}
	return def
}

// GetDouble returns a float64 value for a tag, or def when absent
func (r *Record) GetDouble(t Tag, def float64) float64 {
	if elem, ok := r.Elements[t]; ok {
		if fs, ok := elem.GetFloats(); ok && len(fs) > 0 {
			return fs[0]
		}
	}
	return def
}

// GetDoubles returns a float64 slice for a tag, or nil when absent
func (r *Record) GetDoubles(t Tag) []float64 {
	if elem, ok := r.Elements[t]; ok {
		if fs, ok := elem.GetFloats(); ok {
			return fs
		}
	}
	return nil
}

// GetDate returns a date value for a tag. DICOM DA ("20060102") and
// DT ("20060102150405") encodings are accepted, as are pre-parsed
// time.Time values. Returns the zero time when absent or unparseable.
func (r *Record) GetDate(t Tag) time.Time {
	elem, ok := r.Elements[t]
	if !ok {
		return time.Time{}
	}
	switch v := elem.Value.(type) {
	case time.Time:
		return v
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range []string{"20060102150405", "20060102"} {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed
			}
		}
	}
	return time.Time{}
}

// GetSequence returns the nested items of a sequence tag, or nil
func (r *Record) GetSequence(t Tag) []*Record {
	elem, ok := r.Elements[t]
	if !ok {
		return nil
	}
	if seq, ok := elem.Value.([]*Record); ok {
		return seq
	}
	return nil
}

// HasValue reports whether a tag is present with a non-nil value
func (r *Record) HasValue(t Tag) bool {
	elem, ok := r.Elements[t]
	return ok && elem.Value != nil
}

// AddSequenceItem appends a record item to a sequence element,
// creating the sequence when it does not exist yet
func (r *Record) AddSequenceItem(t Tag, item *Record) error {
	if item == nil {
		return fmt.Errorf("cannot add nil record to sequence")
	}
	elem, exists := r.Elements[t]
	if !exists {
		r.Elements[t] = &Element{Tag: t, VR: "SQ", Value: []*Record{item}}
		return nil
	}
	seq, ok := elem.Value.([]*Record)
	if !ok {
		return fmt.Errorf("element %v exists but is not a sequence (VR=%s)", t, elem.VR)
	}
	elem.Value = append(seq, item)
	return nil
}

// GetString returns a string value from an element
func (elem *Element) GetString() (string, bool) {
	if s, ok := elem.Value.(string); ok {
		return s, true
	}
	return "", false
}

// GetInt returns an int value from an element
func (elem *Element) GetInt() (int, bool) {
	switch v := elem.Value.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i, true
		}
	}
	return 0, false
}

// GetFloats returns a slice of float64s from an element. Scalar numeric
// values and DICOM DS multi-value strings ("1.0\\2.0") are accepted.
func (elem *Element) GetFloats() ([]float64, bool) {
	switch v := elem.Value.(type) {
	case []float64:
		return v, true
	case []float32:
		res := make([]float64, len(v))
		for i, val := range v {
			res[i] = float64(val)
		}
		return res, true
	case float64:
		return []float64{v}, true
	case float32:
		return []float64{float64(v)}, true
	case int:
		return []float64{float64(v)}, true
	case string:
		parts := strings.Split(v, `\`)
		res := make([]float64, 0, len(parts))
		for _, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, false
			}
			res = append(res, f)
		}
		return res, true
	}
	return nil, false
}
