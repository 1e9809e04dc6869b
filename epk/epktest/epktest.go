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

// Package epktest builds EPK package blobs programmatically, for tests
// and for seeding fixtures.
package epktest

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/exoscore/exos/epk"
)

// Entry describes one packed entry.
type Entry struct {
	// Type is the node type (epk.NodeFile, epk.NodeFolder or
	// epk.NodeFolderAlias); its zero value is epk.NodeRoot, not a file.
	Type epk.NodeType

	// Path is the in-package path, '/'-separated, relative.
	Path string

	// Perm are unix-style permission bits.
	Perm uint16

	// Data is the inline file content; only meaningful for files.
	Data []byte

	// AliasTarget is the folder-alias target; only for folder-aliases.
	AliasTarget string

	// Modified stamps the entry; zero means the build time.
	Modified time.Time
}

// Package describes a package to build.
type Package struct {
	// ManifestText overrides the generated manifest entirely.
	ManifestText string

	Name      string
	Version   string
	Arch      string
	KernelAPI string
	Entry     string
	Provides  []string
	Requires  []string
	Commands  map[string]string

	Entries []Entry

	// SignKey, when set, signs the body digest.
	SignKey ed25519.PrivateKey

	// CorruptDigest flips a digest byte after assembly, for tests.
	CorruptDigest bool
}

func quoteList(items []string) string {
	var b bytes.Buffer
	b.WriteString("[ ")
	for i, it := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q", it)
	}
	b.WriteString(" ]")
	return b.String()
}

// Manifest renders the package's manifest text.
func (p *Package) Manifest() string {
	if p.ManifestText != "" {
		return p.ManifestText
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "name = %q\n", p.Name)
	fmt.Fprintf(&b, "version = %q\n", p.Version)
	if p.Arch != "" {
		fmt.Fprintf(&b, "arch = %q\n", p.Arch)
	}
	if p.KernelAPI != "" {
		fmt.Fprintf(&b, "kernel_api = %q\n", p.KernelAPI)
	}
	if p.Entry != "" {
		fmt.Fprintf(&b, "entry = %q\n", p.Entry)
	}
	if len(p.Provides) > 0 {
		fmt.Fprintf(&b, "provides = %s\n", quoteList(p.Provides))
	}
	if len(p.Requires) > 0 {
		fmt.Fprintf(&b, "requires = %s\n", quoteList(p.Requires))
	}
	if len(p.Commands) > 0 {
		b.WriteString("\n[commands]\n")
		for name, target := range p.Commands {
			fmt.Fprintf(&b, "%s = %q\n", name, target)
		}
	}
	return b.String()
}

// Build assembles the package blob:
// header | manifest | TOC | strings | inline data | signature.
func (p *Package) Build() []byte {
	manifest := []byte(p.Manifest())

	tocOff := epk.HeaderSize + len(manifest)
	tocSize := len(p.Entries) * epk.TOCEntrySize
	stringsOff := tocOff + tocSize

	// string region: paths and alias targets
	var strRegion bytes.Buffer
	type extent struct{ off, len uint32 }
	pathExt := make([]extent, len(p.Entries))
	aliasExt := make([]extent, len(p.Entries))
	for i, e := range p.Entries {
		pathExt[i] = extent{uint32(stringsOff + strRegion.Len()), uint32(len(e.Path))}
		strRegion.WriteString(e.Path)
		if e.AliasTarget != "" {
			aliasExt[i] = extent{uint32(stringsOff + strRegion.Len()), uint32(len(e.AliasTarget))}
			strRegion.WriteString(e.AliasTarget)
		}
	}

	inlineOff := stringsOff + strRegion.Len()
	var inline bytes.Buffer
	dataExt := make([]extent, len(p.Entries))
	for i, e := range p.Entries {
		if e.Type == epk.NodeFile {
			dataExt[i] = extent{uint32(inlineOff + inline.Len()), uint32(len(e.Data))}
			inline.Write(e.Data)
		}
	}

	// TOC entries
	var toc bytes.Buffer
	buildTime := time.Now().UTC()
	for i, e := range p.Entries {
		raw := make([]byte, epk.TOCEntrySize)
		raw[0] = byte(e.Type)
		var flags byte
		if e.Type == epk.NodeFile {
			flags |= 1 << 0
		}
		if e.AliasTarget != "" {
			flags |= 1 << 1
		}
		raw[1] = flags
		binary.LittleEndian.PutUint16(raw[2:], e.Perm)
		binary.LittleEndian.PutUint32(raw[4:], pathExt[i].off)
		binary.LittleEndian.PutUint32(raw[8:], pathExt[i].len)
		binary.LittleEndian.PutUint32(raw[12:], dataExt[i].off)
		binary.LittleEndian.PutUint32(raw[16:], dataExt[i].len)
		binary.LittleEndian.PutUint32(raw[20:], aliasExt[i].off)
		binary.LittleEndian.PutUint32(raw[24:], aliasExt[i].len)
		mod := e.Modified
		if mod.IsZero() {
			mod = buildTime
		}
		binary.LittleEndian.PutUint64(raw[28:], uint64(mod.Unix()))
		toc.Write(raw)
	}

	bodyEnd := inlineOff + inline.Len()
	h := &epk.Header{
		Version:        epk.FormatVersion,
		Arch:           p.Arch,
		ManifestOffset: uint32(epk.HeaderSize),
		ManifestSize:   uint32(len(manifest)),
		TOCOffset:      uint32(tocOff),
		TOCCount:       uint32(len(p.Entries)),
		InlineOffset:   uint32(inlineOff),
		InlineSize:     uint32(inline.Len()),
		BodyOffset:     uint32(epk.HeaderSize),
		BodySize:       uint32(bodyEnd - epk.HeaderSize),
	}
	if major, minor, ok := splitAPI(p.KernelAPI); ok {
		h.KernelAPIMajor = major
		h.KernelAPIMinor = minor
	}

	var body bytes.Buffer
	body.Write(manifest)
	body.Write(toc.Bytes())
	body.Write(strRegion.Bytes())
	body.Write(inline.Bytes())

	digest := sha256.Sum256(body.Bytes())
	h.Digest = digest

	var sig []byte
	if p.SignKey != nil {
		sig = ed25519.Sign(p.SignKey, digest[:])
		h.SignatureOffset = uint32(bodyEnd)
		h.SignatureSize = uint32(len(sig))
	}

	blob := epk.EncodeHeader(h)
	blob = append(blob, body.Bytes()...)
	blob = append(blob, sig...)

	if p.CorruptDigest {
		blob[60] ^= 0xff
	}
	return blob
}

func splitAPI(s string) (major, minor uint16, ok bool) {
	var ma, mi int
	if n, err := fmt.Sscanf(s, "%d.%d", &ma, &mi); n == 2 && err == nil {
		return uint16(ma), uint16(mi), true
	}
	return 0, 0, false
}
