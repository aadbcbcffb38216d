// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package episode

import (
	"image"

	"github.com/anthonynsimon/bild/transform"
	"github.com/emer/etable/etensor"
	"github.com/emer/etable/minmax"
)

// pixRange is the range of pixel values
var pixRange = minmax.F32{Min: 0, Max: 1}

// Rot90 returns img rotated by k quarter turns counter-clockwise.
// img must be square.  For k%4 == 0 img itself is returned.
func Rot90(img *etensor.Float32, k int) *etensor.Float32 {
	k = ((k % 4) + 4) % 4
	if k == 0 {
		return img
	}
	n := img.Dim(0)
	out := etensor.NewFloat32([]int{n, n}, nil, []string{"Y", "X"})
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			var sy, sx int
			switch k {
			case 1:
				sy, sx = x, n-1-y
			case 2:
				sy, sx = n-1-y, n-1-x
			case 3:
				sy, sx = n-1-x, y
			}
			out.Values[y*n+x] = img.Values[sy*n+sx]
		}
	}
	return out
}

// ToGray converts a [Y, X] tensor in [0,1] to an 8 bit gray image
func ToGray(img *etensor.Float32) *image.Gray {
	ny := img.Dim(0)
	nx := img.Dim(1)
	gi := image.NewGray(image.Rect(0, 0, nx, ny))
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			gi.Pix[y*gi.Stride+x] = uint8(pixRange.ClipVal(img.Values[y*nx+x])*255 + 0.5)
		}
	}
	return gi
}

// FromImage converts the luminance of any image into a [Y, X] tensor in [0,1]
func FromImage(im image.Image) *etensor.Float32 {
	b := im.Bounds()
	nx := b.Dx()
	ny := b.Dy()
	out := etensor.NewFloat32([]int{ny, nx}, nil, []string{"Y", "X"})
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			r, g, bl, _ := im.At(b.Min.X+x, b.Min.Y+y).RGBA()
			lum := (299*r + 587*g + 114*bl) / 1000
			out.Values[y*nx+x] = float32(lum) / 0xffff
		}
	}
	return out
}

// ResizeImage resizes an image to sz x sz with bilinear filtering
// and returns it as a tensor in [0,1]
func ResizeImage(im image.Image, sz int) *etensor.Float32 {
	b := im.Bounds()
	if b.Dx() == sz && b.Dy() == sz {
		return FromImage(im)
	}
	return FromImage(transform.Resize(im, sz, sz, transform.Linear))
}

// Resize returns img resized to sz x sz.  If img already has that size it
// is returned as is.  Resized values are quantized to 8 bits.
func Resize(img *etensor.Float32, sz int) *etensor.Float32 {
	if img.Dim(0) == sz && img.Dim(1) == sz {
		return img
	}
	return ResizeImage(ToGray(img), sz)
}
