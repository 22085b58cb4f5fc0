// Package dicomutil wraps the suyashkumar/dicom element API with small
// typed accessors. Required attributes fail fast with a clear error;
// optional attributes default silently. This keeps the importers free of
// value-type switching and makes missing-tag errors uniform.
package dicomutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// ErrMissingAttribute reports a required DICOM attribute that is absent.
var ErrMissingAttribute = errors.New("missing required DICOM attribute")

// Find returns the element with tag t from a flat element list, such as a
// sequence item's contents.
func Find(elems []*dicom.Element, t tag.Tag) (*dicom.Element, bool) {
	for _, e := range elems {
		if e != nil && e.Tag == t {
			return e, true
		}
	}
	return nil, false
}

// Req returns the element with tag t or ErrMissingAttribute.
func Req(elems []*dicom.Element, t tag.Tag) (*dicom.Element, error) {
	e, ok := Find(elems, t)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingAttribute, TagName(t))
	}
	return e, nil
}

// Items unpacks a sequence element into the element lists of its items.
func Items(e *dicom.Element) ([][]*dicom.Element, error) {
	seq, ok := e.Value.GetValue().([]*dicom.SequenceItemValue)
	if !ok {
		return nil, fmt.Errorf("attribute %s is not a sequence", TagName(e.Tag))
	}
	out := make([][]*dicom.Element, 0, len(seq))
	for _, item := range seq {
		elems, ok := item.GetValue().([]*dicom.Element)
		if !ok {
			return nil, fmt.Errorf("malformed sequence item in %s", TagName(e.Tag))
		}
		out = append(out, elems)
	}
	return out, nil
}

// String returns the first string value of an element.
func String(e *dicom.Element) (string, error) {
	ss, err := Strings(e)
	if err != nil {
		return "", err
	}
	if len(ss) == 0 {
		return "", fmt.Errorf("attribute %s is empty", TagName(e.Tag))
	}
	return ss[0], nil
}

// Strings returns all string values of an element.
func Strings(e *dicom.Element) ([]string, error) {
	switch v := e.Value.GetValue().(type) {
	case []string:
		out := make([]string, len(v))
		for i, s := range v {
			out[i] = strings.TrimSpace(s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("attribute %s has no string representation (%T)", TagName(e.Tag), v)
	}
}

// Float returns the first numeric value of an element. Decimal strings,
// integer values and binary floats are all accepted, since the same
// physical quantity appears under different VRs across vendors.
func Float(e *dicom.Element) (float64, error) {
	vs, err := Floats(e)
	if err != nil {
		return 0, err
	}
	if len(vs) == 0 {
		return 0, fmt.Errorf("attribute %s is empty", TagName(e.Tag))
	}
	return vs[0], nil
}

// Floats returns all numeric values of an element as float64.
func Floats(e *dicom.Element) ([]float64, error) {
	switch v := e.Value.GetValue().(type) {
	case []float64:
		return v, nil
	case []int:
		out := make([]float64, len(v))
		for i, n := range v {
			out[i] = float64(n)
		}
		return out, nil
	case []string:
		out := make([]float64, len(v))
		for i, s := range v {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("attribute %s value %q: %v", TagName(e.Tag), s, err)
			}
			out[i] = f
		}
		return out, nil
	default:
		return nil, fmt.Errorf("attribute %s has no numeric representation (%T)", TagName(e.Tag), v)
	}
}

// Int returns the first numeric value of an element as int.
func Int(e *dicom.Element) (int, error) {
	f, err := Float(e)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// ReqString returns the first string value of a required dataset attribute.
func ReqString(ds dicom.Dataset, t tag.Tag) (string, error) {
	e, err := ds.FindElementByTag(t)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrMissingAttribute, TagName(t))
	}
	return String(e)
}

// ReqFloat returns the first numeric value of a required dataset attribute.
func ReqFloat(ds dicom.Dataset, t tag.Tag) (float64, error) {
	e, err := ds.FindElementByTag(t)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrMissingAttribute, TagName(t))
	}
	return Float(e)
}

// ReqFloats returns all numeric values of a required dataset attribute,
// checking the value count when n > 0.
func ReqFloats(ds dicom.Dataset, t tag.Tag, n int) ([]float64, error) {
	e, err := ds.FindElementByTag(t)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingAttribute, TagName(t))
	}
	vs, err := Floats(e)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(vs) != n {
		return nil, fmt.Errorf("attribute %s has %d values, expected %d", TagName(t), len(vs), n)
	}
	return vs, nil
}

// ReqInt returns the first numeric value of a required dataset attribute.
func ReqInt(ds dicom.Dataset, t tag.Tag) (int, error) {
	f, err := ReqFloat(ds, t)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// ReqSequence returns the items of a required dataset sequence attribute.
func ReqSequence(ds dicom.Dataset, t tag.Tag) ([][]*dicom.Element, error) {
	e, err := ds.FindElementByTag(t)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingAttribute, TagName(t))
	}
	return Items(e)
}

// OptString returns the first string value of a dataset attribute, or def
// if the attribute is absent or unreadable.
func OptString(ds dicom.Dataset, t tag.Tag, def string) string {
	e, err := ds.FindElementByTag(t)
	if err != nil {
		return def
	}
	s, err := String(e)
	if err != nil {
		return def
	}
	return s
}

// OptInt returns the first numeric value of a dataset attribute as int, or
// def if the attribute is absent or unreadable.
func OptInt(ds dicom.Dataset, t tag.Tag, def int) int {
	e, err := ds.FindElementByTag(t)
	if err != nil {
		return def
	}
	v, err := Int(e)
	if err != nil {
		return def
	}
	return v
}

// TagName returns the dictionary keyword for t when known, else the
// (group,element) pair.
func TagName(t tag.Tag) string {
	if info, err := tag.Find(t); err == nil && info.Name != "" {
		return info.Name
	}
	return fmt.Sprintf("(%04X,%04X)", t.Group, t.Element)
}
