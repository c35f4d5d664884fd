package groupme

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Attachment type discriminators
const (
	TypeImage    = "image"
	TypeLocation = "location"
	TypeSplit    = "split"
	TypeEmoji    = "emoji"
	TypeMentions = "mentions"
)

// ErrMissingType is returned when an attachment map has no type key.
var ErrMissingType = errors.New("type key not present")

// UnsupportedTypeError reports an attachment type this package does not know.
type UnsupportedTypeError struct {
	Type string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported attachment type `%s`", e.Type)
}

// Attachment is one of Image, Location, Split, Emoji or Mentions.
type Attachment interface {
	// Type returns the wire discriminator
	Type() string
	// Map encodes the attachment as a flat, type-tagged map
	Map() map[string]any
}

// Image references a picture hosted on the platform image service.
type Image struct {
	URL string
}

// Location pins a named point. Coordinates travel as text, as the platform sends them.
type Location struct {
	Name string
	Lat  string
	Lng  string
}

// NewLocation builds a Location from numeric coordinates.
func NewLocation(name string, lat, lng float64) Location {
	return Location{
		Name: name,
		Lat:  strconv.FormatFloat(lat, 'f', -1, 64),
		Lng:  strconv.FormatFloat(lng, 'f', -1, 64),
	}
}

// Split is a bill-splitting token.
type Split struct {
	Token string
}

// Emoji replaces Placeholder characters in the text with emoji from Charmap.
// Each Charmap entry is a (pack id, offset) pair.
type Emoji struct {
	Placeholder string
	Charmap     [][]int
}

// Mentions marks spans of the text as mentions of users. Loci[i] is an
// (offset, length) pair and refers to UserIDs[i].
type Mentions struct {
	Loci    [][]int
	UserIDs []string
}

func (Image) Type() string    { return TypeImage }
func (Location) Type() string { return TypeLocation }
func (Split) Type() string    { return TypeSplit }
func (Emoji) Type() string    { return TypeEmoji }
func (Mentions) Type() string { return TypeMentions }

func (a Image) Map() map[string]any {
	return map[string]any{"type": TypeImage, "url": a.URL}
}

func (a Location) Map() map[string]any {
	return map[string]any{"type": TypeLocation, "name": a.Name, "lat": a.Lat, "lng": a.Lng}
}

func (a Split) Map() map[string]any {
	return map[string]any{"type": TypeSplit, "token": a.Token}
}

func (a Emoji) Map() map[string]any {
	return map[string]any{"type": TypeEmoji, "placeholder": a.Placeholder, "charmap": nonNilPairs(a.Charmap)}
}

func (a Mentions) Map() map[string]any {
	ids := a.UserIDs
	if ids == nil {
		ids = []string{}
	}
	return map[string]any{"type": TypeMentions, "loci": nonNilPairs(a.Loci), "user_ids": ids}
}

// EncodeAttachments maps a list of attachments to their wire form. The result is never nil.
func EncodeAttachments(atts []Attachment) []map[string]any {
	out := make([]map[string]any, 0, len(atts))
	for _, a := range atts {
		out = append(out, a.Map())
	}
	return out
}

// DecodeAttachment builds the attachment described by m.
func DecodeAttachment(m map[string]any) (Attachment, error) {
	raw, ok := m["type"]
	if !ok || raw == nil {
		return nil, ErrMissingType
	}
	typ := text(raw)

	switch typ {
	case TypeImage:
		return Image{URL: text(m["url"])}, nil
	case TypeLocation:
		return Location{Name: text(m["name"]), Lat: text(m["lat"]), Lng: text(m["lng"])}, nil
	case TypeSplit:
		return Split{Token: text(m["token"])}, nil
	case TypeEmoji:
		charmap, err := intPairs(m["charmap"])
		if err != nil {
			return nil, fmt.Errorf("emoji charmap: %w", err)
		}
		return Emoji{Placeholder: text(m["placeholder"]), Charmap: charmap}, nil
	case TypeMentions:
		loci, err := intPairs(m["loci"])
		if err != nil {
			return nil, fmt.Errorf("mentions loci: %w", err)
		}
		ids, err := stringList(m["user_ids"])
		if err != nil {
			return nil, fmt.Errorf("mentions user_ids: %w", err)
		}
		return Mentions{Loci: loci, UserIDs: ids}, nil
	default:
		return nil, &UnsupportedTypeError{Type: typ}
	}
}

func nonNilPairs(p [][]int) [][]int {
	if p == nil {
		return [][]int{}
	}
	return p
}

// text renders a scalar wire value as a string.
func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// empty reports whether a list-typed field is absent or falsy on the wire.
func empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	}
	return false
}

func intPairs(v any) ([][]int, error) {
	if empty(v) {
		return [][]int{}, nil
	}
	switch t := v.(type) {
	case [][]int:
		return t, nil
	case []any:
		out := make([][]int, 0, len(t))
		for i, item := range t {
			pair, err := intList(item)
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			out = append(out, pair)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
}

func intList(v any) ([]int, error) {
	switch t := v.(type) {
	case []int:
		return t, nil
	case []any:
		out := make([]int, 0, len(t))
		for _, item := range t {
			n, err := toInt(item)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list of integers, got %T", v)
	}
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("%v is not an integer", t)
		}
		return int(t), nil
	case json.Number:
		n, err := t.Int64()
		return int(n), err
	case string:
		return strconv.Atoi(t)
	default:
		return 0, fmt.Errorf("%v (%T) is not an integer", v, v)
	}
}

func stringList(v any) ([]string, error) {
	if empty(v) {
		return []string{}, nil
	}
	switch t := v.(type) {
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, text(item))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
}
