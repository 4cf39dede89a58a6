package midiapi

// RawDevice is a port as reported by the transport, before it has been assigned an ordinal.
// Handle is opaque and only compared for equality.
type RawDevice struct {
	Vendor      string `json:"vendor" yaml:"vendor"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Handle      string `json:"handle" yaml:"handle"`
}

// Descriptor is a discovered device or receiver. Descriptors built by discovery carry a
// memoized full device key; descriptors built by hand do not and get one resolved lazily.
type Descriptor struct {
	RawDevice
	Kind    Kind `json:"kind" yaml:"kind"`
	Ordinal int  `json:"ordinal" yaml:"ordinal"`

	key Key
}

func NewDescriptor(raw RawDevice, kind Kind, ordinal int) Descriptor {
	return Descriptor{
		RawDevice: raw,
		Kind:      kind,
		Ordinal:   ordinal,
		key:       DeviceKey(kind, raw.Vendor, raw.Name, raw.Description, ordinal),
	}
}

// Key returns the memoized full device key, if any.
func (d Descriptor) Key() (Key, bool) {
	return d.key, !d.key.IsZero()
}

// Same reports whether both descriptors refer to the same physical port.
func (d Descriptor) Same(other Descriptor) bool {
	return d.Kind == other.Kind && d.Handle == other.Handle
}

// DeviceKey is [tag vendor name description ordinal].
func DeviceKey(kind Kind, vendor, name, description string, ordinal int) Key {
	return NewKey(kind.Tag(), Str(vendor), Str(name), Str(description), Int(ordinal))
}

// DeviceNamespace identifies the group of descriptors that share one ordinal sequence.
func DeviceNamespace(kind Kind, raw RawDevice) string {
	return NewKey(kind.Tag(), Str(raw.Vendor), Str(raw.Name), Str(raw.Description)).String()
}

// CommandKey is [:midi command], the topic for one command across all devices.
func CommandKey(cmd Command) Key {
	return NewKey(Keyword("midi"), cmd.Keyword())
}

// DeviceEventKey is the device key extended with a command.
func DeviceEventKey(device Key, cmd Command) Key {
	return device.Append(cmd.Keyword())
}

// ControlEventKey is the device event key extended with a control id (note or controller number).
func ControlEventKey(device Key, cmd Command, control int) Key {
	return device.Append(cmd.Keyword(), Int(control))
}

// SysexKey is the device key extended with :sysex.
func SysexKey(device Key) Key {
	return device.Append(SysEx.Keyword())
}
