package compositor

// HLSL for the single textured-quad pass the renderer uses everywhere: eye
// reprojection, quad overlays and side-by-side layout. band holds the
// crossfade ramp: x = start, y = end (both normalized to output width),
// z = enabled flag, w = reciprocal output width for normalizing pixel
// coordinates.
const quadShaderSource = `cbuffer TransformBuffer : register(b0) {
	float4x4 world;
	float4x4 viewproj;
	float4 band;
};

Texture2D shaderTexture : register(t0);

SamplerState SampleType : register(s0);

struct vsIn {
	float4 pos  : POSITION;
	float2 tex  : TEXCOORD0;
};

struct psIn {
	float4 pos : SV_POSITION;
	float2 tex : TEXCOORD0;
};

psIn vs_quad(vsIn input)
{
	psIn output;
	output.pos = mul(mul(input.pos, world), viewproj);
	output.tex = input.tex;
	return output;
}

float4 ps_quad(psIn inputPS) : SV_TARGET
{
	float4 textureColor = shaderTexture.Sample(SampleType, inputPS.tex);
	if (band.z > 0.5) {
		textureColor.a *= smoothstep(band.x, band.y, inputPS.pos.x * band.w);
	}
	return textureColor;
}`

const (
	vertexEntryPoint = "vs_quad"
	vertexTarget     = "vs_5_0"
	pixelEntryPoint  = "ps_quad"
	pixelTarget      = "ps_5_0"
)

// The unit quad: position x,y,z,w then UV, four vertices, two triangles.
// UVs are rewritten per draw; these are the defaults for a full-texture
// sample.
var quadVertices = [24]float32{
	-0.5, 0.5, 0, 1, 0, 0,
	-0.5, -0.5, 0, 1, 0, 1,
	0.5, 0.5, 0, 1, 1, 0,
	0.5, -0.5, 0, 1, 1, 1,
}

var quadIndices = [6]uint16{2, 1, 0, 2, 3, 1}

// writeQuadUVs stamps a UV rectangle over the quad's texture coordinates
// in a vertex buffer laid out like quadVertices.
func writeQuadUVs(verts []float32, uv UVRect) {
	const stride = 6
	verts[0*stride+4], verts[0*stride+5] = uv.U0, uv.V0
	verts[1*stride+4], verts[1*stride+5] = uv.U0, uv.V1
	verts[2*stride+4], verts[2*stride+5] = uv.U1, uv.V0
	verts[3*stride+4], verts[3*stride+5] = uv.U1, uv.V1
}
