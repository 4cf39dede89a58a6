package midisvc

import (
	"regexp"
	"strings"

	"github.com/neuroplastio/neio-midi/midiapi"
)

// SearchSpec matches rendered device keys either by substring or by regular expression.
type SearchSpec struct {
	substring string
	pattern   *regexp.Regexp
}

func Substring(s string) SearchSpec {
	return SearchSpec{substring: s}
}

func Pattern(re *regexp.Regexp) SearchSpec {
	return SearchSpec{pattern: re}
}

func (s SearchSpec) Match(rendered string) bool {
	if s.pattern != nil {
		return s.pattern.MatchString(rendered)
	}
	return strings.Contains(rendered, s.substring)
}

func (s SearchSpec) String() string {
	if s.pattern != nil {
		return "/" + s.pattern.String() + "/"
	}
	return s.substring
}

// FindConnected returns the descriptors whose rendered full device key matches spec.
func (s *Service) FindConnected(spec SearchSpec, descs []midiapi.Descriptor) []midiapi.Descriptor {
	var found []midiapi.Descriptor
	for _, d := range descs {
		if spec.Match(s.FullDeviceKey(d).String()) {
			found = append(found, d)
		}
	}
	return found
}

func (s *Service) FindConnectedDevice(spec SearchSpec) (midiapi.Descriptor, bool) {
	return first(s.FindConnected(spec, s.ConnectedDevices()))
}

func (s *Service) FindConnectedReceiver(spec SearchSpec) (midiapi.Descriptor, bool) {
	return first(s.FindConnected(spec, s.ConnectedReceivers()))
}

func first(descs []midiapi.Descriptor) (midiapi.Descriptor, bool) {
	if len(descs) == 0 {
		return midiapi.Descriptor{}, false
	}
	return descs[0], true
}
