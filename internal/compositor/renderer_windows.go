//go:build windows

package compositor

import (
	"fmt"
	"log/slog"
	"math"
	"unsafe"

	"github.com/xrmirror/layer/internal/channel"
	"github.com/xrmirror/layer/internal/formats"
	"github.com/xrmirror/layer/internal/logging"
	"github.com/xrmirror/layer/internal/xrmath"
	"github.com/xrmirror/layer/internal/xrtypes"
)

var (
	semPosition = []byte("POSITION\x00")
	semTexcoord = []byte("TEXCOORD\x00")
)

var _ Renderer = (*D3D11Renderer)(nil)

// quadConstants matches the shader's TransformBuffer layout. Matrices are
// stored transposed; the shaders compile with column-major packing.
type quadConstants struct {
	World    [16]float32
	ViewProj [16]float32
	Band     [4]float32
}

type rendererSource struct {
	tex uintptr // ID3D11Texture2D
	srv uintptr // ID3D11ShaderResourceView
}

// D3D11Renderer implements Renderer on a dedicated D3D11 device. The
// compositor device is always D3D11 regardless of what the application
// renders with; D3D12 clones arrive as NT shared handles and are opened
// through ID3D11Device1.
type D3D11Renderer struct {
	device  uintptr // ID3D11Device
	device1 uintptr // ID3D11Device1, zero when unavailable
	context uintptr // ID3D11DeviceContext

	vshader    uintptr
	pshader    uintptr
	layout     uintptr
	vbuf       uintptr
	ibuf       uintptr
	cbuf       uintptr
	sampler    uintptr
	blendState uintptr

	out        OutputDesc
	target     uintptr // render target texture
	targetView uintptr // RTV over target
	published  [channel.HandleSlots]uintptr

	sources map[uint64]rendererSource
	log     *slog.Logger
}

// NewRenderer creates the compositor device and the fixed pipeline state
// every pass shares.
func NewRenderer() (*D3D11Renderer, error) {
	r := &D3D11Renderer{
		sources: make(map[uint64]rendererSource),
		log:     logging.L("renderer"),
	}

	featureLevels := [2]uint32{d3dFeatureLevel11_1, d3dFeatureLevel11_0}
	var actualLevel uint32
	hr, _, _ := procD3D11CreateDevice.Call(
		0,
		uintptr(d3dDriverTypeHardware),
		0,
		uintptr(d3d11CreateDeviceBGRASupport),
		uintptr(unsafe.Pointer(&featureLevels[0])),
		2,
		uintptr(d3d11SDKVersion),
		uintptr(unsafe.Pointer(&r.device)),
		uintptr(unsafe.Pointer(&actualLevel)),
		uintptr(unsafe.Pointer(&r.context)))
	if int32(hr) < 0 {
		return nil, fmt.Errorf("D3D11CreateDevice HRESULT 0x%08X", uint32(hr))
	}

	// NT handle opens need ID3D11Device1; without it D3D12 sessions fail at
	// OpenSource, not here.
	if dev1, err := comQueryInterface(r.device, &iidID3D11Device1); err == nil {
		r.device1 = dev1
	}

	if err := r.initPipeline(); err != nil {
		r.Release()
		return nil, err
	}
	r.log.Info("compositor device created", "feature_level", fmt.Sprintf("0x%X", actualLevel))
	return r, nil
}

func (r *D3D11Renderer) initPipeline() error {
	vsBlob, err := compileShader(quadShaderSource, vertexEntryPoint, vertexTarget)
	if err != nil {
		return err
	}
	defer comRelease(vsBlob)
	psBlob, err := compileShader(quadShaderSource, pixelEntryPoint, pixelTarget)
	if err != nil {
		return err
	}
	defer comRelease(psBlob)

	vsPtr := comCallNoHR(vsBlob, vtblBlobGetBufferPointer)
	vsSize := comCallNoHR(vsBlob, vtblBlobGetBufferSize)
	psPtr := comCallNoHR(psBlob, vtblBlobGetBufferPointer)
	psSize := comCallNoHR(psBlob, vtblBlobGetBufferSize)

	if _, err := comCall(r.device, vtblDeviceCreateVertexShader,
		vsPtr, vsSize, 0, uintptr(unsafe.Pointer(&r.vshader))); err != nil {
		return fmt.Errorf("CreateVertexShader: %w", err)
	}
	if _, err := comCall(r.device, vtblDeviceCreatePixelShader,
		psPtr, psSize, 0, uintptr(unsafe.Pointer(&r.pshader))); err != nil {
		return fmt.Errorf("CreatePixelShader: %w", err)
	}

	elements := [2]d3d11InputElementDesc{
		{
			SemanticName:      &semPosition[0],
			Format:            dxgiFormatR32G32B32A32Float,
			AlignedByteOffset: d3d11AppendAlignedElement,
			InputSlotClass:    d3d11InputPerVertexData,
		},
		{
			SemanticName:      &semTexcoord[0],
			Format:            dxgiFormatR32G32Float,
			AlignedByteOffset: d3d11AppendAlignedElement,
			InputSlotClass:    d3d11InputPerVertexData,
		},
	}
	if _, err := comCall(r.device, vtblDeviceCreateInputLayout,
		uintptr(unsafe.Pointer(&elements[0])), 2, vsPtr, vsSize,
		uintptr(unsafe.Pointer(&r.layout))); err != nil {
		return fmt.Errorf("CreateInputLayout: %w", err)
	}

	verts := quadVertices
	vbufDesc := d3d11BufferDesc{
		ByteWidth:      uint32(unsafe.Sizeof(verts)),
		Usage:          d3d11UsageDynamic,
		BindFlags:      d3d11BindVertexBuffer,
		CPUAccessFlags: d3d11CPUAccessWrite,
	}
	vbufData := d3d11SubresourceData{PSysMem: uintptr(unsafe.Pointer(&verts[0]))}
	if _, err := comCall(r.device, vtblDeviceCreateBuffer,
		uintptr(unsafe.Pointer(&vbufDesc)), uintptr(unsafe.Pointer(&vbufData)),
		uintptr(unsafe.Pointer(&r.vbuf))); err != nil {
		return fmt.Errorf("vertex buffer: %w", err)
	}

	inds := quadIndices
	ibufDesc := d3d11BufferDesc{
		ByteWidth: uint32(unsafe.Sizeof(inds)),
		Usage:     d3d11UsageDefault,
		BindFlags: d3d11BindIndexBuffer,
	}
	ibufData := d3d11SubresourceData{PSysMem: uintptr(unsafe.Pointer(&inds[0]))}
	if _, err := comCall(r.device, vtblDeviceCreateBuffer,
		uintptr(unsafe.Pointer(&ibufDesc)), uintptr(unsafe.Pointer(&ibufData)),
		uintptr(unsafe.Pointer(&r.ibuf))); err != nil {
		return fmt.Errorf("index buffer: %w", err)
	}

	cbufDesc := d3d11BufferDesc{
		ByteWidth: uint32(unsafe.Sizeof(quadConstants{})),
		Usage:     d3d11UsageDefault,
		BindFlags: d3d11BindConstantBuffer,
	}
	if _, err := comCall(r.device, vtblDeviceCreateBuffer,
		uintptr(unsafe.Pointer(&cbufDesc)), 0, uintptr(unsafe.Pointer(&r.cbuf))); err != nil {
		return fmt.Errorf("constant buffer: %w", err)
	}

	samplerDesc := d3d11SamplerDesc{
		Filter:         d3d11FilterMinMagMipLinear,
		AddressU:       d3d11TextureAddressClamp,
		AddressV:       d3d11TextureAddressClamp,
		AddressW:       d3d11TextureAddressClamp,
		MaxAnisotropy:  1,
		ComparisonFunc: d3d11ComparisonNever,
		BorderColor:    [4]float32{1, 1, 1, 1},
		MinLOD:         -math.MaxFloat32,
		MaxLOD:         math.MaxFloat32,
	}
	if _, err := comCall(r.device, vtblDeviceCreateSamplerState,
		uintptr(unsafe.Pointer(&samplerDesc)), uintptr(unsafe.Pointer(&r.sampler))); err != nil {
		return fmt.Errorf("sampler state: %w", err)
	}

	var blendDesc d3d11BlendDesc
	blendDesc.RenderTarget[0] = d3d11RenderTargetBlendDesc{
		BlendEnable:           1,
		SrcBlend:              d3d11BlendSrcAlpha,
		DestBlend:             d3d11BlendInvSrcAlpha,
		BlendOp:               d3d11BlendOpAdd,
		SrcBlendAlpha:         d3d11BlendOne,
		DestBlendAlpha:        d3d11BlendZero,
		BlendOpAlpha:          d3d11BlendOpAdd,
		RenderTargetWriteMask: d3d11WriteEnableAll,
	}
	if _, err := comCall(r.device, vtblDeviceCreateBlendState,
		uintptr(unsafe.Pointer(&blendDesc)), uintptr(unsafe.Pointer(&r.blendState))); err != nil {
		return fmt.Errorf("blend state: %w", err)
	}

	// Static bindings shared by every pass.
	comCallNoHR(r.context, vtblCtxVSSetConstantBuffers, 0, 1, uintptr(unsafe.Pointer(&r.cbuf)))
	comCallNoHR(r.context, vtblCtxVSSetShader, r.vshader, 0, 0)
	comCallNoHR(r.context, vtblCtxPSSetShader, r.pshader, 0, 0)
	comCallNoHR(r.context, vtblCtxPSSetSamplers, 0, 1, uintptr(unsafe.Pointer(&r.sampler)))

	stride := uint32(6 * 4)
	offset := uint32(0)
	comCallNoHR(r.context, vtblCtxIASetVertexBuffers, 0, 1,
		uintptr(unsafe.Pointer(&r.vbuf)), uintptr(unsafe.Pointer(&stride)), uintptr(unsafe.Pointer(&offset)))
	comCallNoHR(r.context, vtblCtxIASetIndexBuffer, r.ibuf, dxgiFormatR16Uint, 0)
	comCallNoHR(r.context, vtblCtxIASetPrimitiveTopology, d3d11TopologyTriangleList)
	comCallNoHR(r.context, vtblCtxIASetInputLayout, r.layout)
	return nil
}

func compileShader(src, entry, target string) (uintptr, error) {
	srcBytes := []byte(src)
	entryBytes := []byte(entry + "\x00")
	targetBytes := []byte(target + "\x00")
	flags := uintptr(d3dcompilePackMatrixColumnMajor | d3dcompileEnableStrictness |
		d3dcompileWarningsAreErrors | d3dcompileOptimizationLevel3)

	var code, errs uintptr
	hr, _, _ := procD3DCompile.Call(
		uintptr(unsafe.Pointer(&srcBytes[0])),
		uintptr(len(srcBytes)),
		0, 0, 0,
		uintptr(unsafe.Pointer(&entryBytes[0])),
		uintptr(unsafe.Pointer(&targetBytes[0])),
		flags, 0,
		uintptr(unsafe.Pointer(&code)),
		uintptr(unsafe.Pointer(&errs)))
	if int32(hr) < 0 {
		msg := "no diagnostics"
		if errs != 0 {
			p := comCallNoHR(errs, vtblBlobGetBufferPointer)
			n := comCallNoHR(errs, vtblBlobGetBufferSize)
			msg = string(unsafe.Slice((*byte)(unsafe.Pointer(p)), n))
			comRelease(errs)
		}
		return 0, fmt.Errorf("D3DCompile %s HRESULT 0x%08X: %s", entry, uint32(hr), msg)
	}
	if errs != 0 {
		comRelease(errs)
	}
	return code, nil
}

func (r *D3D11Renderer) EnsureOutput(desc OutputDesc) ([channel.HandleSlots]uint64, error) {
	var handles [channel.HandleSlots]uint64
	r.releaseOutput()

	texDesc := d3d11Texture2DDesc{
		Width:       desc.Width,
		Height:      desc.Height,
		MipLevels:   1,
		ArraySize:   1,
		Format:      uint32(desc.Format),
		SampleCount: 1,
		Usage:       d3d11UsageDefault,
		BindFlags:   d3d11BindShaderResource | d3d11BindRenderTarget,
	}
	if _, err := comCall(r.device, vtblDeviceCreateTexture2D,
		uintptr(unsafe.Pointer(&texDesc)), 0, uintptr(unsafe.Pointer(&r.target))); err != nil {
		return handles, fmt.Errorf("output target %dx%d: %w", desc.Width, desc.Height, err)
	}

	rtvDesc := d3d11RTVDesc{Format: uint32(desc.Format), ViewDimension: d3d11RTVDimensionTexture2D}
	if _, err := comCall(r.device, vtblDeviceCreateRenderTargetView,
		r.target, uintptr(unsafe.Pointer(&rtvDesc)), uintptr(unsafe.Pointer(&r.targetView))); err != nil {
		return handles, fmt.Errorf("output RTV: %w", err)
	}

	sharedDesc := texDesc
	sharedDesc.MiscFlags = d3d11ResourceMiscShared
	for slot := range r.published {
		if _, err := comCall(r.device, vtblDeviceCreateTexture2D,
			uintptr(unsafe.Pointer(&sharedDesc)), 0, uintptr(unsafe.Pointer(&r.published[slot]))); err != nil {
			return handles, fmt.Errorf("published copy %d: %w", slot, err)
		}
		dxgiRes, err := comQueryInterface(r.published[slot], &iidIDXGIResource)
		if err != nil {
			return handles, fmt.Errorf("published copy %d IDXGIResource: %w", slot, err)
		}
		var shared uintptr
		_, err = comCall(dxgiRes, vtblDXGIResourceGetSharedHandle, uintptr(unsafe.Pointer(&shared)))
		comRelease(dxgiRes)
		if err != nil {
			return handles, fmt.Errorf("published copy %d GetSharedHandle: %w", slot, err)
		}
		handles[slot] = uint64(shared)
	}

	r.out = desc
	return handles, nil
}

func (r *D3D11Renderer) OpenSource(key, sharedHandle uint64, ntHandle bool) error {
	r.CloseSource(key)

	var tex uintptr
	if ntHandle {
		if r.device1 == 0 {
			return fmt.Errorf("open source %#x: ID3D11Device1 unavailable for NT handle", sharedHandle)
		}
		if _, err := comCall(r.device1, vtblDevice1OpenSharedResource1,
			uintptr(sharedHandle), uintptr(unsafe.Pointer(&iidID3D11Texture2D)),
			uintptr(unsafe.Pointer(&tex))); err != nil {
			return fmt.Errorf("OpenSharedResource1 %#x: %w", sharedHandle, err)
		}
	} else {
		if _, err := comCall(r.device, vtblDeviceOpenSharedResource,
			uintptr(sharedHandle), uintptr(unsafe.Pointer(&iidID3D11Texture2D)),
			uintptr(unsafe.Pointer(&tex))); err != nil {
			return fmt.Errorf("OpenSharedResource %#x: %w", sharedHandle, err)
		}
	}

	var srcDesc d3d11Texture2DDesc
	comCallNoHR(tex, vtblTexture2DGetDesc, uintptr(unsafe.Pointer(&srcDesc)))

	viewFormat := srcDesc.Format
	if info, ok := formats.Resolve(formats.Format(srcDesc.Format)); ok {
		viewFormat = uint32(info.SampleFormat())
	} else {
		r.log.Warn("unknown source format, sampling as-is", "format", srcDesc.Format)
	}

	srvDesc := d3d11SRVDesc{
		Format:        viewFormat,
		ViewDimension: d3d11SRVDimensionTexture2D,
		MipLevels:     1,
	}
	var srv uintptr
	if _, err := comCall(r.device, vtblDeviceCreateShaderResourceView,
		tex, uintptr(unsafe.Pointer(&srvDesc)), uintptr(unsafe.Pointer(&srv))); err != nil {
		comRelease(tex)
		return fmt.Errorf("source SRV format %d: %w", viewFormat, err)
	}

	r.sources[key] = rendererSource{tex: tex, srv: srv}
	return nil
}

func (r *D3D11Renderer) CloseSource(key uint64) {
	if s, ok := r.sources[key]; ok {
		comRelease(s.srv)
		comRelease(s.tex)
		delete(r.sources, key)
	}
}

func (r *D3D11Renderer) CopyDirect(key uint64, src xrtypes.Rect2Di) error {
	s, ok := r.sources[key]
	if !ok || r.target == 0 {
		return nil
	}
	box := d3d11Box{
		Left:   uint32(src.Offset.X),
		Top:    uint32(src.Offset.Y),
		Right:  uint32(src.Offset.X + src.Extent.Width),
		Bottom: uint32(src.Offset.Y + src.Extent.Height),
		Back:   1,
	}
	comCallNoHR(r.context, vtblCtxCopySubresourceRegion,
		r.target, 0, 0, 0, 0, s.tex, 0, uintptr(unsafe.Pointer(&box)))
	return nil
}

func (r *D3D11Renderer) DrawTextured(key uint64, p DrawParams) error {
	s, ok := r.sources[key]
	if !ok || r.target == 0 {
		return nil
	}

	var mapped d3d11MappedSubresource
	if _, err := comCall(r.context, vtblCtxMap,
		r.vbuf, 0, d3d11MapWriteDiscard, 0, uintptr(unsafe.Pointer(&mapped))); err != nil {
		return fmt.Errorf("map vertex buffer: %w", err)
	}
	verts := unsafe.Slice((*float32)(unsafe.Pointer(mapped.PData)), len(quadVertices))
	copy(verts, quadVertices[:])
	writeQuadUVs(verts, p.UV)
	comCallNoHR(r.context, vtblCtxUnmap, r.vbuf, 0)

	var constants quadConstants
	constants.World = flattenTransposed(p.World)
	constants.ViewProj = flattenTransposed(p.ViewProj)
	if p.Band.End > p.Band.Start && r.out.Width > 0 {
		constants.Band = [4]float32{p.Band.Start, p.Band.End, 1, 1 / float32(r.out.Width)}
	}
	comCallNoHR(r.context, vtblCtxUpdateSubresource,
		r.cbuf, 0, 0, uintptr(unsafe.Pointer(&constants)), 0, 0)

	comCallNoHR(r.context, vtblCtxPSSetShaderResources, 0, 1, uintptr(unsafe.Pointer(&s.srv)))
	blendFactor := [4]float32{1, 1, 1, 1}
	comCallNoHR(r.context, vtblCtxOMSetBlendState,
		r.blendState, uintptr(unsafe.Pointer(&blendFactor[0])), 0xffffffff)

	vp := d3d11Viewport{
		TopLeftX: p.Viewport.X,
		TopLeftY: p.Viewport.Y,
		Width:    p.Viewport.Width,
		Height:   p.Viewport.Height,
		MaxDepth: 1,
	}
	comCallNoHR(r.context, vtblCtxRSSetViewports, 1, uintptr(unsafe.Pointer(&vp)))
	scissor := d3d11Rect{
		Left:   int32(p.Viewport.X),
		Top:    int32(p.Viewport.Y),
		Right:  int32(p.Viewport.X + p.Viewport.Width),
		Bottom: int32(p.Viewport.Y + p.Viewport.Height),
	}
	comCallNoHR(r.context, vtblCtxRSSetScissorRects, 1, uintptr(unsafe.Pointer(&scissor)))
	comCallNoHR(r.context, vtblCtxOMSetRenderTargets, 1, uintptr(unsafe.Pointer(&r.targetView)), 0)
	comCallNoHR(r.context, vtblCtxDrawIndexed, uintptr(len(quadIndices)), 0, 0)
	return nil
}

func (r *D3D11Renderer) CopyToPublished(slot int) error {
	if slot < 0 || slot >= len(r.published) || r.published[slot] == 0 || r.target == 0 {
		return nil
	}
	comCallNoHR(r.context, vtblCtxCopyResource, r.published[slot], r.target)
	return nil
}

func (r *D3D11Renderer) ClearAndFlush() error {
	comCallNoHR(r.context, vtblCtxFlush)
	if r.targetView != 0 {
		comCallNoHR(r.context, vtblCtxOMSetRenderTargets, 1, uintptr(unsafe.Pointer(&r.targetView)), 0)
		clearColor := [4]float32{0, 0, 0, 0}
		comCallNoHR(r.context, vtblCtxClearRenderTargetView,
			r.targetView, uintptr(unsafe.Pointer(&clearColor[0])))
	}
	return nil
}

func (r *D3D11Renderer) Release() {
	for key := range r.sources {
		r.CloseSource(key)
	}
	r.releaseOutput()
	for _, obj := range []uintptr{
		r.blendState, r.sampler, r.cbuf, r.ibuf, r.vbuf,
		r.layout, r.pshader, r.vshader, r.context, r.device1, r.device,
	} {
		comRelease(obj)
	}
	r.blendState, r.sampler, r.cbuf, r.ibuf, r.vbuf = 0, 0, 0, 0, 0
	r.layout, r.pshader, r.vshader, r.context, r.device1, r.device = 0, 0, 0, 0, 0, 0
}

func (r *D3D11Renderer) releaseOutput() {
	comRelease(r.targetView)
	r.targetView = 0
	comRelease(r.target)
	r.target = 0
	for i := range r.published {
		comRelease(r.published[i])
		r.published[i] = 0
	}
}

// flattenTransposed lays a matrix out transposed for the shader's
// column-major constant packing.
func flattenTransposed(m xrmath.Mat4) [16]float32 {
	t := xrmath.Transpose(m)
	var out [16]float32
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out[i*4+j] = t[i][j]
		}
	}
	return out
}
