// Package formats maps DXGI pixel formats to their typeless/linear/sRGB
// variants and bit-depth metadata. It is a pure lookup table: the catalog
// covers the formats VR titles actually render into, and everything else
// resolves as not-found, which callers treat as non-fatal.
package formats

// Format is a DXGI_FORMAT value.
type Format uint32

// The subset of DXGI_FORMAT the catalog knows about. Values are fixed by
// the DXGI ABI.
const (
	Unknown Format = 0

	R16G16B16A16Typeless Format = 9
	R16G16B16A16Unorm    Format = 11

	R10G10B10A2Typeless Format = 23
	R10G10B10A2Unorm    Format = 24

	R8G8B8A8Typeless  Format = 27
	R8G8B8A8Unorm     Format = 28
	R8G8B8A8UnormSRGB Format = 29

	BC1Typeless  Format = 70
	BC1Unorm     Format = 71
	BC1UnormSRGB Format = 72

	B5G6R5Unorm   Format = 85
	B5G5R5A1Unorm Format = 86

	B8G8R8A8Unorm        Format = 87
	B8G8R8X8Unorm        Format = 88
	R10G10B10XRBiasA2    Format = 89
	B8G8R8A8Typeless     Format = 90
	B8G8R8A8UnormSRGB    Format = 91
	B8G8R8X8Typeless     Format = 92
	B8G8R8X8UnormSRGB    Format = 93
	B4G4R4A4Unorm        Format = 115
)

// Info describes one supported format family. Typeless/Linear/SRGB are set
// to Unknown when the family has no such variant. Linear and SRGB are both
// UNORM views of the same memory.
type Info struct {
	Typeless Format
	Linear   Format
	SRGB     Format

	BitsPerPixel   int
	BitsPerChannel int
	Channels       int
}

// SampleFormat picks the view format a shader should sample this family
// through. Above 8 bits per channel the source is already linear, so the
// linear view is used to avoid a second gamma correction; otherwise the
// sRGB view is preferred when the family has one.
func (i Info) SampleFormat() Format {
	if i.BitsPerChannel > 8 {
		return i.Linear
	}
	if i.SRGB != Unknown {
		return i.SRGB
	}
	return i.Linear
}

// family builds the catalog rows for one format family: every member maps
// to the same Info.
func family(typeless, linear, srgb Format, bpp, bpc, channels int) map[Format]Info {
	info := Info{
		Typeless:       typeless,
		Linear:         linear,
		SRGB:           srgb,
		BitsPerPixel:   bpp,
		BitsPerChannel: bpc,
		Channels:       channels,
	}
	rows := make(map[Format]Info, 3)
	for _, f := range []Format{typeless, linear, srgb} {
		if f != Unknown {
			rows[f] = info
		}
	}
	return rows
}

var catalog = func() map[Format]Info {
	m := make(map[Format]Info, 24)
	add := func(rows map[Format]Info) {
		for f, info := range rows {
			m[f] = info
		}
	}

	// The traditional 8-bit four-channel 32-bit layouts.
	add(family(R8G8B8A8Typeless, R8G8B8A8Unorm, R8G8B8A8UnormSRGB, 32, 8, 4))
	add(family(B8G8R8A8Typeless, B8G8R8A8Unorm, B8G8R8A8UnormSRGB, 32, 8, 4))
	add(family(B8G8R8X8Typeless, B8G8R8X8Unorm, B8G8R8X8UnormSRGB, 32, 8, 3))

	// Larger linear-only HDR layouts (no sRGB variant exists).
	add(family(R16G16B16A16Typeless, R16G16B16A16Unorm, Unknown, 64, 16, 4))
	add(family(R10G10B10A2Typeless, R10G10B10A2Unorm, Unknown, 32, 10, 4))

	// Assorted legacy packed layouts, linear only.
	add(family(Unknown, B5G6R5Unorm, Unknown, 16, 5, 3))
	add(family(Unknown, B5G5R5A1Unorm, Unknown, 16, 5, 4))
	add(family(Unknown, R10G10B10XRBiasA2, Unknown, 32, 10, 4))
	add(family(Unknown, B4G4R4A4Unorm, Unknown, 16, 4, 4))

	// One compressed family.
	add(family(BC1Typeless, BC1Unorm, BC1UnormSRGB, 64, 16, 4))

	return m
}()

// Resolve looks up the format family for a native format. ok is false for
// formats outside the catalog; callers fall back to the format as given,
// uncorrected.
func Resolve(f Format) (Info, bool) {
	info, ok := catalog[f]
	return info, ok
}
