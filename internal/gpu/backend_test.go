package gpu

import (
	"testing"

	"github.com/xrmirror/layer/internal/formats"
)

func TestAPIString(t *testing.T) {
	cases := []struct {
		api  API
		want string
	}{
		{APID3D11, "d3d11"},
		{APID3D12, "d3d12"},
		{APIUnknown, "unknown"},
		{API(99), "unknown"},
	}
	for _, c := range cases {
		if got := c.api.String(); got != c.want {
			t.Errorf("API(%d).String() = %q, want %q", c.api, got, c.want)
		}
	}
}

func TestTextureDescComparable(t *testing.T) {
	a := TextureDesc{Width: 2064, Height: 2272, Format: formats.R8G8B8A8UnormSRGB}
	b := a
	if a != b {
		t.Fatal("identical descs compare unequal")
	}
	b.Width++
	if a == b {
		t.Fatal("different descs compare equal")
	}
}
