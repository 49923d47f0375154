package codec

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"imgpress/internal/processor"
	"imgpress/pkg/imgutil"
)

func gradientRGBA(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: 0x80,
				A: uint8(0x40 + (x+y)%0xbf),
			})
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write png: %v", err)
	}
}

func encodeJPEG(t *testing.T, img image.Image, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// withOrientation inserts an APP1 segment carrying only an Orientation tag
// right after the SOI marker.
func withOrientation(jpegData []byte, orientation uint16) []byte {
	var tiff bytes.Buffer
	tiff.Write([]byte{0x49, 0x49, 0x2a, 0x00})
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(8))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(1))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(0x0112))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(3))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(1))
	_ = binary.Write(&tiff, binary.LittleEndian, orientation)
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(0))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(0))

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)

	var out bytes.Buffer
	out.Write(jpegData[:2])
	out.Write([]byte{0xff, 0xe1})
	_ = binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(jpegData[2:])
	return out.Bytes()
}

func TestDecodePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.png")
	writePNG(t, path, gradientRGBA(8, 4))

	img, err := Decoder{}.Decode(path)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 4 {
		t.Fatalf("bounds = %v", b)
	}
}

func TestDecodeRejectsNonImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.png")
	if err := os.WriteFile(path, []byte("definitely not a png"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := (Decoder{}).Decode(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDecodeJPEGAppliesOrientation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rotated.jpg")
	data := withOrientation(encodeJPEG(t, gradientRGBA(16, 8), 90), 6)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	img, err := Decoder{}.Decode(path)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 16 {
		t.Fatalf("expected rotated bounds 8x16, got %v", b)
	}
}

func TestApplyOrientation(t *testing.T) {
	red := color.NRGBA{R: 0xff, A: 0xff}
	blue := color.NRGBA{B: 0xff, A: 0xff}
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, red)
	src.SetNRGBA(1, 0, blue)

	cases := []struct {
		orientation int
		w, h        int
		first, last color.NRGBA
	}{
		{1, 2, 1, red, blue},
		{2, 2, 1, blue, red},
		{3, 2, 1, blue, red},
		{4, 2, 1, red, blue},
		{5, 1, 2, red, blue},
		{6, 1, 2, red, blue},
		{7, 1, 2, blue, red},
		{8, 1, 2, blue, red},
	}

	for _, tc := range cases {
		out := toNRGBA(applyOrientation(src, tc.orientation))
		if out.Rect.Dx() != tc.w || out.Rect.Dy() != tc.h {
			t.Fatalf("orientation %d: bounds %v", tc.orientation, out.Rect)
		}
		first := out.NRGBAAt(0, 0)
		last := out.NRGBAAt(tc.w-1, tc.h-1)
		if first != tc.first || last != tc.last {
			t.Fatalf("orientation %d: first=%v last=%v", tc.orientation, first, last)
		}
	}
}

func TestJPEGRecompressorShrinksHighQualityInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.jpg")
	original := encodeJPEG(t, gradientRGBA(64, 64), 100)
	if err := os.WriteFile(path, original, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	size, err := JPEGRecompressor{}.Compress(context.Background(), path, processor.RunConfig{JPEGQuality: 40})
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if size >= int64(len(original)) {
		t.Fatalf("expected smaller output, got %d >= %d", size, len(original))
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != size {
		t.Fatalf("reported %d but file is %d bytes", size, info.Size())
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("permissions changed to %v", info.Mode().Perm())
	}
	if kind, err := imgutil.SniffFile(path); err != nil || kind != imgutil.KindJPEG {
		t.Fatalf("output kind = %v, err = %v", kind, err)
	}
}

func TestJPEGRecompressorFallsBackToDiskSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jpg")
	junk := bytes.Repeat([]byte{0x01}, 321)
	if err := os.WriteFile(path, junk, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	size, err := JPEGRecompressor{}.Compress(context.Background(), path, processor.RunConfig{JPEGQuality: 75})
	if err == nil {
		t.Fatal("expected error for undecodable input")
	}
	if size != 321 {
		t.Fatalf("fallback size = %d, want 321", size)
	}
}

func TestDerivedEncodersProduceRealFiles(t *testing.T) {
	img := gradientRGBA(32, 32)

	var webpBuf bytes.Buffer
	if err := NewWebPEncoder().Encode(&webpBuf, img); err != nil {
		t.Fatalf("webp: %v", err)
	}
	if kind, _ := imgutil.DetectHeader(webpBuf.Bytes()); kind != imgutil.KindWebP || webpBuf.Len() == 0 {
		t.Fatalf("webp output kind = %v, len = %d", kind, webpBuf.Len())
	}

	var avifBuf bytes.Buffer
	if err := NewAVIFEncoder().Encode(&avifBuf, img); err != nil {
		t.Fatalf("avif: %v", err)
	}
	if kind, _ := imgutil.DetectHeader(avifBuf.Bytes()); kind != imgutil.KindAVIF || avifBuf.Len() == 0 {
		t.Fatalf("avif output kind = %v, len = %d", kind, avifBuf.Len())
	}
}

// frameType reports which start-of-frame marker a JPEG carries by walking
// its segment headers up to the first scan.
func frameType(t *testing.T, data []byte) (baseline, progressive bool) {
	t.Helper()
	if len(data) < 4 || data[0] != 0xff || data[1] != 0xd8 {
		t.Fatalf("not a jpeg")
	}
	for i := 2; i+4 <= len(data); {
		if data[i] != 0xff {
			t.Fatalf("lost segment sync at %d", i)
		}
		marker := data[i+1]
		if marker == 0xff {
			i++
			continue
		}
		switch marker {
		case 0xc0, 0xc1:
			baseline = true
		case 0xc2:
			progressive = true
		case 0xda:
			return baseline, progressive
		}
		i += 2 + int(binary.BigEndian.Uint16(data[i+2:i+4]))
	}
	return baseline, progressive
}

func TestJPEGRecompressorWritesProgressive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.jpg")
	source := encodeJPEG(t, gradientRGBA(48, 32), 100)
	if baseline, _ := frameType(t, source); !baseline {
		t.Fatal("fixture should start out baseline")
	}
	if err := os.WriteFile(path, source, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := (JPEGRecompressor{}).Compress(context.Background(), path, processor.RunConfig{JPEGQuality: 75}); err != nil {
		t.Fatalf("compress: %v", err)
	}

	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	baseline, progressive := frameType(t, out)
	if !progressive || baseline {
		t.Fatalf("expected SOF2 only, got baseline=%v progressive=%v", baseline, progressive)
	}
	img, err := Decoder{}.Decode(path)
	if err != nil {
		t.Fatalf("recompressed file does not decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 48 || b.Dy() != 32 {
		t.Fatalf("bounds = %v", b)
	}
}

func TestJPEGRecompressorIgnoresCanceledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.jpg")
	if err := os.WriteFile(path, encodeJPEG(t, gradientRGBA(16, 16), 100), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A pass that was admitted runs to completion.
	if _, err := (JPEGRecompressor{}).Compress(ctx, path, processor.RunConfig{JPEGQuality: 60}); err != nil {
		t.Fatalf("compress: %v", err)
	}
}
