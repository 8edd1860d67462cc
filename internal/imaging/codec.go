// Package imaging holds the raster primitives behind the cartoon filters:
// decoding and encoding, grayscale and edge masks, colour quantization,
// bilateral smoothing and mask composition. Every function returns a new
// Buffer and leaves its inputs untouched.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"

	_ "image/gif"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"toonlab/internal/domain"
)

// ChannelOrder tags the sample layout of a Buffer.
type ChannelOrder int

const (
	OrderGray ChannelOrder = iota
	OrderRGB
	OrderBGR
)

// Arity returns the number of channels implied by the order.
func (o ChannelOrder) Arity() int {
	if o == OrderGray {
		return 1
	}
	return 3
}

func (o ChannelOrder) String() string {
	switch o {
	case OrderGray:
		return "gray"
	case OrderRGB:
		return "rgb"
	case OrderBGR:
		return "bgr"
	default:
		return fmt.Sprintf("order(%d)", int(o))
	}
}

// Buffer is a row-major array of 8-bit samples shaped (Height, Width, Channels).
type Buffer struct {
	Width    int
	Height   int
	Channels int
	Order    ChannelOrder
	Pix      []uint8
}

// NewBuffer allocates a zeroed buffer for the given shape.
func NewBuffer(width, height int, order ChannelOrder) Buffer {
	c := order.Arity()
	return Buffer{
		Width:    width,
		Height:   height,
		Channels: c,
		Order:    order,
		Pix:      make([]uint8, width*height*c),
	}
}

// Validate reports whether the buffer satisfies its shape invariants.
func (b Buffer) Validate() error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("imaging: invalid dimensions %dx%d", b.Width, b.Height)
	}
	if b.Channels != b.Order.Arity() {
		return fmt.Errorf("imaging: %d channels do not match %s", b.Channels, b.Order)
	}
	if len(b.Pix) != b.Width*b.Height*b.Channels {
		return fmt.Errorf("imaging: %d samples for shape %dx%dx%d", len(b.Pix), b.Height, b.Width, b.Channels)
	}
	return nil
}

// SameSize reports whether both buffers share width and height.
func (b Buffer) SameSize(o Buffer) bool {
	return b.Width == o.Width && b.Height == o.Height
}

// Clone returns a deep copy.
func (b Buffer) Clone() Buffer {
	out := b
	out.Pix = append([]uint8(nil), b.Pix...)
	return out
}

// Reorder converts between RGB and BGR layouts. Gray buffers and buffers
// already in the requested order are copied as-is.
func (b Buffer) Reorder(order ChannelOrder) Buffer {
	out := b.Clone()
	if b.Channels != 3 || order == OrderGray || order == b.Order {
		return out
	}
	for i := 0; i+2 < len(out.Pix); i += 3 {
		out.Pix[i], out.Pix[i+2] = out.Pix[i+2], out.Pix[i]
	}
	out.Order = order
	return out
}

// ToImage bridges the buffer to the standard image types: *image.Gray for one
// channel and *image.NRGBA (opaque) for three.
func (b Buffer) ToImage() (image.Image, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	rect := image.Rect(0, 0, b.Width, b.Height)
	if b.Channels == 1 {
		g := image.NewGray(rect)
		copy(g.Pix, b.Pix)
		return g, nil
	}
	ri, bi := 0, 2
	if b.Order == OrderBGR {
		ri, bi = 2, 0
	}
	out := image.NewNRGBA(rect)
	for p, q := 0, 0; p < len(b.Pix); p, q = p+3, q+4 {
		out.Pix[q+0] = b.Pix[p+ri]
		out.Pix[q+1] = b.Pix[p+1]
		out.Pix[q+2] = b.Pix[p+bi]
		out.Pix[q+3] = 255
	}
	return out, nil
}

// FromImage copies any image into a buffer of the requested order. Colour
// images requested as OrderGray are converted with the standard luma weights.
func FromImage(img image.Image, order ChannelOrder) Buffer {
	bounds := img.Bounds()
	out := NewBuffer(bounds.Dx(), bounds.Dy(), order)
	if order == OrderGray {
		if g, ok := img.(*image.Gray); ok && g.Stride == bounds.Dx() {
			copy(out.Pix, g.Pix)
			return out
		}
		i := 0
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				out.Pix[i] = color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
				i++
			}
		}
		return out
	}
	ri, bi := 0, 2
	if order == OrderBGR {
		ri, bi = 2, 0
	}
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			out.Pix[i+ri] = c.R
			out.Pix[i+1] = c.G
			out.Pix[i+bi] = c.B
			i += 3
		}
	}
	return out
}

// Decoded carries both channel-order views of a decoded upload.
type Decoded struct {
	RGB    Buffer
	BGR    Buffer
	Format string
}

// DefaultMaxPixels bounds width*height of decoded uploads (about 50 MP).
const DefaultMaxPixels = 50_000_000

// Decode reads a raster image with the DefaultMaxPixels limit.
func Decode(data []byte) (Decoded, error) {
	return DecodeLimited(data, DefaultMaxPixels)
}

// DecodeLimited reads a raster image. The header is checked first so that
// images declaring more than maxPixels samples are rejected before any pixel
// memory is allocated; maxPixels <= 0 disables the check. Empty,
// unrecognized, oversized or corrupt input fails with domain.ErrDecode.
func DecodeLimited(data []byte, maxPixels int) (Decoded, error) {
	if len(data) == 0 {
		return Decoded{}, fmt.Errorf("%w: empty input", domain.ErrDecode)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Decoded{}, fmt.Errorf("%w: empty image", domain.ErrDecode)
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return Decoded{}, fmt.Errorf("%w: %dx%d exceeds the %d pixel limit", domain.ErrDecode, cfg.Width, cfg.Height, maxPixels)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	if img.Bounds().Empty() {
		return Decoded{}, fmt.Errorf("%w: empty image", domain.ErrDecode)
	}
	rgb := FromImage(img, OrderRGB)
	return Decoded{RGB: rgb, BGR: rgb.Reorder(OrderBGR), Format: format}, nil
}

// EncodeOptions selects the output container.
type EncodeOptions struct {
	Format  string
	Quality int
}

// DefaultEncodeOptions matches the service's response format.
var DefaultEncodeOptions = EncodeOptions{Format: "jpeg", Quality: 95}

// ContentType returns the MIME type for the configured format.
func (o EncodeOptions) ContentType() string {
	if normalizeFormat(o.Format) == "png" {
		return "image/png"
	}
	return "image/jpeg"
}

// Encode compresses a buffer. Shape violations fail with domain.ErrEncode.
func Encode(b Buffer, opts EncodeOptions) ([]byte, error) {
	img, err := b.ToImage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEncode, err)
	}
	var buf bytes.Buffer
	switch normalizeFormat(opts.Format) {
	case "png":
		err = png.Encode(&buf, img)
	case "jpeg":
		quality := opts.Quality
		if quality <= 0 || quality > 100 {
			quality = DefaultEncodeOptions.Quality
		}
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", domain.ErrEncode, opts.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEncode, err)
	}
	return buf.Bytes(), nil
}

func normalizeFormat(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "jpg", "jpeg", ".jpg", ".jpeg":
		return "jpeg"
	case "png", ".png":
		return "png"
	default:
		return strings.ToLower(strings.TrimSpace(format))
	}
}
