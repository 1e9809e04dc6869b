// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2025 Canonical Ltd
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package epk

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"github.com/exoscore/exos/kernelcfg"
)

// ValidateOptions configure the validation pipeline. The zero value
// verifies the digest, accepts unsigned packages and skips the runtime
// compatibility checks.
type ValidateOptions struct {
	// RequireSignature fails validation when the package carries no
	// signature block.
	RequireSignature bool

	// TrustedKey is the Ed25519 trust root used to verify signatures.
	// A present signature with no configured key fails validation.
	TrustedKey ed25519.PublicKey

	// Arch, when non-empty, must match the package's arch tag.
	Arch string

	// KernelAPIMajor/Minor, when the major is non-zero, gate the
	// package's requested kernel-api version.
	KernelAPIMajor int
	KernelAPIMinor int
}

// ValidatedPackage is the outcome of a fully validated package buffer;
// only this view is consumed by PackageFS and the launch protocol.
type ValidatedPackage struct {
	bytes    []byte
	header   *Header
	toc      []*TOCEntry
	manifest *Manifest
}

// Manifest returns the parsed manifest.
func (vp *ValidatedPackage) Manifest() *Manifest { return vp.manifest }

// Header returns the decoded header.
func (vp *ValidatedPackage) Header() *Header { return vp.header }

// TOC returns the decoded table of contents, in package order.
func (vp *ValidatedPackage) TOC() []*TOCEntry { return vp.toc }

// Size returns the package buffer size.
func (vp *ValidatedPackage) Size() int { return len(vp.bytes) }

// InlineData returns the inline data extent of a TOC entry.
func (vp *ValidatedPackage) InlineData(e *TOCEntry) []byte {
	if !e.HasInlineData() {
		return nil
	}
	return vp.bytes[e.DataOff : e.DataOff+e.DataSize]
}

// Validate runs the four-stage validation pipeline over a package
// buffer: structural, integrity, signature, semantic. Any failure
// aborts; only a fully validated view is returned.
func Validate(data []byte, opts *ValidateOptions) (*ValidatedPackage, error) {
	if opts == nil {
		opts = &ValidateOptions{}
	}

	// stage 1: structural
	h, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}
	for _, extent := range []struct {
		name      string
		off, size uint32
	}{
		{"manifest", h.ManifestOffset, h.ManifestSize},
		{"inline data region", h.InlineOffset, h.InlineSize},
		{"body", h.BodyOffset, h.BodySize},
		{"signature", h.SignatureOffset, h.SignatureSize},
	} {
		if !extentInBuffer(extent.off, extent.size, len(data)) {
			return nil, fmt.Errorf("%w: %s extent out of range", ErrInvalidPackage, extent.name)
		}
	}
	tocBytes := uint64(h.TOCCount) * TOCEntrySize
	if tocBytes > uint64(len(data)) || !extentInBuffer(h.TOCOffset, uint32(tocBytes), len(data)) {
		return nil, fmt.Errorf("%w: TOC extent out of range", ErrInvalidPackage)
	}
	toc := make([]*TOCEntry, 0, h.TOCCount)
	for i := uint32(0); i < h.TOCCount; i++ {
		off := h.TOCOffset + i*TOCEntrySize
		e, err := decodeTOCEntry(data, data[off:off+TOCEntrySize])
		if err != nil {
			return nil, err
		}
		toc = append(toc, e)
	}

	// stage 2: integrity
	digest := sha256.Sum256(data[h.BodyOffset : h.BodyOffset+h.BodySize])
	if subtle.ConstantTimeCompare(digest[:], h.Digest[:]) != 1 {
		return nil, ErrBadDigest
	}

	// stage 3: signature
	if h.SignatureSize == 0 {
		if opts.RequireSignature {
			return nil, ErrSignatureRequired
		}
	} else {
		if len(opts.TrustedKey) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("%w: no trusted key configured", ErrBadSignature)
		}
		sig := data[h.SignatureOffset : h.SignatureOffset+h.SignatureSize]
		if !ed25519.Verify(opts.TrustedKey, h.Digest[:], sig) {
			return nil, ErrBadSignature
		}
	}

	// stage 4: semantic
	manifest, err := ParseManifest(data[h.ManifestOffset : h.ManifestOffset+h.ManifestSize])
	if err != nil {
		return nil, err
	}
	if opts.Arch != "" && manifest.Arch != "" && manifest.Arch != opts.Arch {
		return nil, fmt.Errorf("%w: package arch %q, runtime %q", ErrIncompatible, manifest.Arch, opts.Arch)
	}
	if opts.KernelAPIMajor != 0 && manifest.KernelAPIMajor != 0 {
		if !kernelcfg.APICompatible(opts.KernelAPIMajor, opts.KernelAPIMinor, manifest.KernelAPIMajor, manifest.KernelAPIMinor) {
			return nil, fmt.Errorf("%w: package needs kernel-api %d.%d, runtime is %d.%d",
				ErrIncompatible, manifest.KernelAPIMajor, manifest.KernelAPIMinor,
				opts.KernelAPIMajor, opts.KernelAPIMinor)
		}
	}

	return &ValidatedPackage{
		bytes:    data,
		header:   h,
		toc:      toc,
		manifest: manifest,
	}, nil
}
