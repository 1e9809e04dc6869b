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

package epk_test

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"

	. "gopkg.in/check.v1"

	"github.com/exoscore/exos/epk"
	"github.com/exoscore/exos/epk/epktest"
)

var _ = Suite(&validateSuite{})

type validateSuite struct{}

func helloPackage() *epktest.Package {
	return &epktest.Package{
		Name:      "hello",
		Version:   "1.0",
		Arch:      "x86-64",
		KernelAPI: "1.0",
		Entry:     "bin/hello",
		Entries: []epktest.Entry{
			{Type: epk.NodeFolder, Path: "bin", Perm: 0o555},
			{Type: epk.NodeFile, Path: "bin/hello", Perm: 0o755, Data: []byte("#!exe\n")},
		},
	}
}

func (s *validateSuite) TestValidateGoodPackage(c *C) {
	vp, err := epk.Validate(helloPackage().Build(), nil)
	c.Assert(err, IsNil)
	m := vp.Manifest()
	c.Check(m.Name, Equals, "hello")
	c.Check(m.Entry, Equals, "bin/hello")
	c.Check(vp.TOC(), HasLen, 2)
	c.Check(string(vp.InlineData(vp.TOC()[1])), Equals, "#!exe\n")
}

func (s *validateSuite) TestStructuralBadMagic(c *C) {
	blob := helloPackage().Build()
	copy(blob, "NOPE")
	_, err := epk.Validate(blob, nil)
	c.Check(errors.Is(err, epk.ErrInvalidPackage), Equals, true)
}

func (s *validateSuite) TestStructuralShortBuffer(c *C) {
	_, err := epk.Validate([]byte("EPK1"), nil)
	c.Check(errors.Is(err, epk.ErrInvalidPackage), Equals, true)
}

func (s *validateSuite) TestStructuralBadExtent(c *C) {
	blob := helloPackage().Build()
	// push the manifest extent out of the buffer
	binary.LittleEndian.PutUint32(blob[32:], uint32(len(blob)))
	_, err := epk.Validate(blob, nil)
	c.Check(errors.Is(err, epk.ErrInvalidPackage), Equals, true)
}

func (s *validateSuite) TestStructuralTOCOverflow(c *C) {
	blob := helloPackage().Build()
	binary.LittleEndian.PutUint32(blob[40:], 0x40000000)
	_, err := epk.Validate(blob, nil)
	c.Check(errors.Is(err, epk.ErrInvalidPackage), Equals, true)
}

func (s *validateSuite) TestIntegrityDigestMismatch(c *C) {
	pkg := helloPackage()
	pkg.CorruptDigest = true
	_, err := epk.Validate(pkg.Build(), nil)
	c.Check(errors.Is(err, epk.ErrBadDigest), Equals, true)
}

func (s *validateSuite) TestSignatureRequiredButAbsent(c *C) {
	_, err := epk.Validate(helloPackage().Build(), &epk.ValidateOptions{
		RequireSignature: true,
	})
	c.Check(errors.Is(err, epk.ErrSignatureRequired), Equals, true)
}

func (s *validateSuite) TestSignatureVerifies(c *C) {
	pub, priv, err := ed25519.GenerateKey(nil)
	c.Assert(err, IsNil)

	pkg := helloPackage()
	pkg.SignKey = priv
	blob := pkg.Build()

	vp, err := epk.Validate(blob, &epk.ValidateOptions{
		RequireSignature: true,
		TrustedKey:       pub,
	})
	c.Assert(err, IsNil)
	c.Check(vp.Manifest().Name, Equals, "hello")

	// a different trust root refuses the signature
	otherPub, _, err := ed25519.GenerateKey(nil)
	c.Assert(err, IsNil)
	_, err = epk.Validate(blob, &epk.ValidateOptions{TrustedKey: otherPub})
	c.Check(errors.Is(err, epk.ErrBadSignature), Equals, true)

	// a signed package with no configured trust root fails closed
	_, err = epk.Validate(blob, nil)
	c.Check(errors.Is(err, epk.ErrBadSignature), Equals, true)
}

func (s *validateSuite) TestSemanticArchMismatch(c *C) {
	_, err := epk.Validate(helloPackage().Build(), &epk.ValidateOptions{Arch: "i386"})
	c.Check(errors.Is(err, epk.ErrIncompatible), Equals, true)
}

func (s *validateSuite) TestSemanticKernelAPITooNew(c *C) {
	pkg := helloPackage()
	pkg.KernelAPI = "1.5"
	_, err := epk.Validate(pkg.Build(), &epk.ValidateOptions{
		Arch:           "x86-64",
		KernelAPIMajor: 1,
		KernelAPIMinor: 2,
	})
	c.Check(errors.Is(err, epk.ErrIncompatible), Equals, true)

	// equal major, older minor is compatible
	pkg.KernelAPI = "1.1"
	_, err = epk.Validate(pkg.Build(), &epk.ValidateOptions{
		Arch:           "x86-64",
		KernelAPIMajor: 1,
		KernelAPIMinor: 2,
	})
	c.Check(err, IsNil)
}

func (s *validateSuite) TestSemanticManifestErrors(c *C) {
	pkg := helloPackage()
	pkg.ManifestText = "version = \"1.0\"\n"
	_, err := epk.Validate(pkg.Build(), nil)
	c.Check(errors.Is(err, epk.ErrMissingName), Equals, true)
}
