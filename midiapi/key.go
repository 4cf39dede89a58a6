package midiapi

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxKeySegments is the capacity of a Key. Keys are fixed-size so they stay comparable
// and can be used directly as map keys and bus topics.
const MaxKeySegments = 12

type SegmentKind uint8

const (
	segmentNone SegmentKind = iota
	SegmentKeyword
	SegmentString
	SegmentInt
)

// Segment is a single element of a Key.
type Segment struct {
	kind SegmentKind
	str  string
	num  int
}

// Keyword returns a symbolic segment, rendered as ":name".
func Keyword(name string) Segment {
	return Segment{kind: SegmentKeyword, str: name}
}

// Str returns a quoted string segment.
func Str(s string) Segment {
	return Segment{kind: SegmentString, str: s}
}

// Int returns an integer segment.
func Int(i int) Segment {
	return Segment{kind: SegmentInt, num: i}
}

func (s Segment) Kind() SegmentKind {
	return s.kind
}

func (s Segment) Text() string {
	return s.str
}

func (s Segment) Number() int {
	return s.num
}

func (s Segment) String() string {
	switch s.kind {
	case SegmentKeyword:
		return ":" + s.str
	case SegmentString:
		return strconv.Quote(s.str)
	case SegmentInt:
		return strconv.Itoa(s.num)
	default:
		return "nil"
	}
}

// Key is a hierarchical identifier. Two keys are equal when their segments are equal,
// so a Key built twice from the same parts addresses the same topic.
type Key struct {
	segs [MaxKeySegments]Segment
	n    uint8
}

func NewKey(segs ...Segment) Key {
	return Key{}.Append(segs...)
}

// Append returns a new key extended with segs. It panics when the result would exceed
// MaxKeySegments.
func (k Key) Append(segs ...Segment) Key {
	if int(k.n)+len(segs) > MaxKeySegments {
		panic(fmt.Sprintf("midiapi: key %s cannot hold %d more segments", k, len(segs)))
	}
	for _, s := range segs {
		k.segs[k.n] = s
		k.n++
	}
	return k
}

// Concat returns k extended with all segments of other.
func (k Key) Concat(other Key) Key {
	return k.Append(other.Segments()...)
}

func (k Key) Len() int {
	return int(k.n)
}

func (k Key) IsZero() bool {
	return k.n == 0
}

func (k Key) Segment(i int) Segment {
	if i < 0 || i >= int(k.n) {
		return Segment{}
	}
	return k.segs[i]
}

func (k Key) Segments() []Segment {
	out := make([]Segment, k.n)
	copy(out, k.segs[:k.n])
	return out
}

// Prefix returns the first n segments of k.
func (k Key) Prefix(n int) Key {
	if n >= int(k.n) {
		return k
	}
	var p Key
	copy(p.segs[:], k.segs[:n])
	p.n = uint8(n)
	return p
}

// HasPrefix reports whether k starts with every segment of prefix.
func (k Key) HasPrefix(prefix Key) bool {
	if prefix.n > k.n {
		return false
	}
	for i := 0; i < int(prefix.n); i++ {
		if k.segs[i] != prefix.segs[i] {
			return false
		}
	}
	return true
}

func (k Key) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i := 0; i < int(k.n); i++ {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(k.segs[i].String())
	}
	sb.WriteByte(']')
	return sb.String()
}

func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}
