// Package tools drives the external PNG passes: pngquant (lossy palette
// quantization) followed by oxipng (lossless structural optimization).
// Both rewrite the file in place; the only result read back is its size.
package tools
