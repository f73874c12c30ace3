package codec

import (
	"fmt"
	"strings"
)

// ParseName splits a unit file name into base name, serialization format and
// compression format: <name>[.<format>][.<compression>], both suffixes
// optional. A suffix that is neither a registered compression nor a
// registered format is a configuration error naming the suffix.
func ParseName(filename string) (name, format, compression string, err error) {
	name = filename
	if i := strings.LastIndex(name, "."); i >= 0 && IsCompression(name[i+1:]) {
		compression = name[i+1:]
		name = name[:i]
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		suffix := name[i+1:]
		if _, lookupErr := Lookup(suffix); lookupErr != nil {
			return "", "", "", fmt.Errorf("%w: %q is not a known serialization format", ErrUnknownFormat, suffix)
		}
		format = suffix
		name = name[:i]
	}
	return name, format, compression, nil
}

// FileName is the inverse of ParseName.
func FileName(name, format, compression string) string {
	out := name
	if format != "" {
		out += "." + format
	}
	if compression != "" {
		out += "." + compression
	}
	return out
}
