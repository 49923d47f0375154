package imgutil

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Kind identifies an image container recognised by the optimizer.
type Kind int

const (
	KindUnknown Kind = iota
	KindJPEG
	KindPNG
	KindWebP
	KindAVIF
)

func (k Kind) String() string {
	switch k {
	case KindJPEG:
		return "jpeg"
	case KindPNG:
		return "png"
	case KindWebP:
		return "webp"
	case KindAVIF:
		return "avif"
	default:
		return "unknown"
	}
}

// HeaderSize is the number of leading bytes DetectHeader needs.
const HeaderSize = 12

var (
	pngSig     = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}
	jpegSig    = []byte{0xff, 0xd8, 0xff}
	riffSig    = []byte("RIFF")
	webpSig    = []byte("WEBP")
	ftypSig    = []byte("ftyp")
	avifBrands = [][]byte{[]byte("avif"), []byte("avis")}
)

// DetectHeader inspects the first 12 bytes of a file for known signatures.
func DetectHeader(header []byte) (Kind, error) {
	if len(header) < HeaderSize {
		return KindUnknown, errors.New("header too short")
	}

	if hasPrefix(header, jpegSig) {
		return KindJPEG, nil
	}
	if hasPrefix(header, pngSig) {
		return KindPNG, nil
	}
	if hasPrefix(header, riffSig) && hasPrefix(header[8:], webpSig) {
		return KindWebP, nil
	}
	if hasPrefix(header[4:], ftypSig) {
		for _, brand := range avifBrands {
			if hasPrefix(header[8:], brand) {
				return KindAVIF, nil
			}
		}
	}

	return KindUnknown, nil
}

// SniffFile reads the leading bytes of a file to determine its type.
func SniffFile(path string) (Kind, error) {
	f, err := os.Open(path)
	if err != nil {
		return KindUnknown, err
	}
	defer f.Close()

	return SniffReader(f)
}

// SniffReader reads HeaderSize bytes from r and determines its type.
func SniffReader(r io.Reader) (Kind, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return KindUnknown, err
	}

	return DetectHeader(header)
}

// KindFromExt maps a file extension (with or without the dot, any case)
// to a Kind. Only the optimizer's input formats are recognised.
func KindFromExt(ext string) Kind {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "png":
		return KindPNG
	case "jpg", "jpeg":
		return KindJPEG
	default:
		return KindUnknown
	}
}

// KindFromPath is KindFromExt applied to the extension of path.
func KindFromPath(path string) Kind {
	return KindFromExt(filepath.Ext(path))
}

func hasPrefix(buf, prefix []byte) bool {
	if len(buf) < len(prefix) {
		return false
	}
	for i := range prefix {
		if buf[i] != prefix[i] {
			return false
		}
	}
	return true
}
