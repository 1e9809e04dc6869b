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
	"encoding/binary"
	"fmt"
	"time"
)

// The EPK container layout, little-endian:
//
//	header | manifest | TOC | string region | inline data | signature
//
// The header's digest covers the declared body range, normally
// everything between the header and the signature block.
const (
	Magic         = "EPK1"
	FormatVersion = 1

	// HeaderSize is the fixed size of the container header.
	HeaderSize = 100

	// TOCEntrySize is the fixed size of one table-of-contents entry.
	TOCEntrySize = 36

	archTagLen = 16
)

// Node types of TOC entries.
type NodeType uint8

const (
	NodeRoot NodeType = iota
	NodeFile
	NodeFolder
	NodeFolderAlias
)

func (t NodeType) String() string {
	switch t {
	case NodeRoot:
		return "root"
	case NodeFile:
		return "file"
	case NodeFolder:
		return "folder"
	case NodeFolderAlias:
		return "folder-alias"
	}
	return "invalid"
}

// TOC entry flags.
const (
	entryFlagInlineData  = 1 << 0
	entryFlagAliasTarget = 1 << 1
)

// Permission bits stored per entry; any execute bit marks the entry
// executable.
const (
	PermExecMask = 0o111
)

// Header is the decoded container header.
type Header struct {
	Version        uint32
	Arch           string
	KernelAPIMajor uint16
	KernelAPIMinor uint16

	ManifestOffset uint32
	ManifestSize   uint32
	TOCOffset      uint32
	TOCCount       uint32
	InlineOffset   uint32
	InlineSize     uint32
	BodyOffset     uint32
	BodySize       uint32

	Digest [32]byte

	SignatureOffset uint32
	SignatureSize   uint32
}

// TOCEntry is the decoded form of one table-of-contents entry. Offsets
// reference the package buffer.
type TOCEntry struct {
	Type     NodeType
	Flags    uint8
	Perm     uint16
	Path     string
	DataOff  uint32
	DataSize uint32
	Alias    string
	Modified time.Time
}

// HasInlineData reports whether the entry carries an inline data extent.
func (e *TOCEntry) HasInlineData() bool {
	return e.Flags&entryFlagInlineData != 0
}

// HasAlias reports whether the entry carries a folder-alias target.
func (e *TOCEntry) HasAlias() bool {
	return e.Flags&entryFlagAliasTarget != 0
}

// Executable reports whether any execute permission bit is set.
func (e *TOCEntry) Executable() bool {
	return e.Perm&PermExecMask != 0
}

// decodeHeader parses the fixed header. Purely structural errors are
// reported as invalid-package.
func decodeHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: short header", ErrInvalidPackage)
	}
	if string(data[0:4]) != Magic {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidPackage)
	}
	h := &Header{
		Version:         binary.LittleEndian.Uint32(data[4:]),
		Arch:            cstring(data[8 : 8+archTagLen]),
		KernelAPIMajor:  binary.LittleEndian.Uint16(data[24:]),
		KernelAPIMinor:  binary.LittleEndian.Uint16(data[26:]),
		ManifestOffset:  binary.LittleEndian.Uint32(data[28:]),
		ManifestSize:    binary.LittleEndian.Uint32(data[32:]),
		TOCOffset:       binary.LittleEndian.Uint32(data[36:]),
		TOCCount:        binary.LittleEndian.Uint32(data[40:]),
		InlineOffset:    binary.LittleEndian.Uint32(data[44:]),
		InlineSize:      binary.LittleEndian.Uint32(data[48:]),
		BodyOffset:      binary.LittleEndian.Uint32(data[52:]),
		BodySize:        binary.LittleEndian.Uint32(data[56:]),
		SignatureOffset: binary.LittleEndian.Uint32(data[92:]),
		SignatureSize:   binary.LittleEndian.Uint32(data[96:]),
	}
	copy(h.Digest[:], data[60:92])
	if h.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidPackage, h.Version)
	}
	return h, nil
}

// EncodeHeader renders the fixed header.
func EncodeHeader(h *Header) []byte {
	data := make([]byte, HeaderSize)
	copy(data[0:4], Magic)
	binary.LittleEndian.PutUint32(data[4:], h.Version)
	copy(data[8:8+archTagLen], h.Arch)
	binary.LittleEndian.PutUint16(data[24:], h.KernelAPIMajor)
	binary.LittleEndian.PutUint16(data[26:], h.KernelAPIMinor)
	binary.LittleEndian.PutUint32(data[28:], h.ManifestOffset)
	binary.LittleEndian.PutUint32(data[32:], h.ManifestSize)
	binary.LittleEndian.PutUint32(data[36:], h.TOCOffset)
	binary.LittleEndian.PutUint32(data[40:], h.TOCCount)
	binary.LittleEndian.PutUint32(data[44:], h.InlineOffset)
	binary.LittleEndian.PutUint32(data[48:], h.InlineSize)
	binary.LittleEndian.PutUint32(data[52:], h.BodyOffset)
	binary.LittleEndian.PutUint32(data[56:], h.BodySize)
	copy(data[60:92], h.Digest[:])
	binary.LittleEndian.PutUint32(data[92:], h.SignatureOffset)
	binary.LittleEndian.PutUint32(data[96:], h.SignatureSize)
	return data
}

func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// extentInBuffer reports whether [off, off+size) lies inside the buffer
// without overflowing.
func extentInBuffer(off, size uint32, bufLen int) bool {
	end := uint64(off) + uint64(size)
	return end <= uint64(bufLen)
}

// decodeTOCEntry parses one raw TOC entry; string extents are resolved
// against the package buffer.
func decodeTOCEntry(pkg []byte, raw []byte) (*TOCEntry, error) {
	e := &TOCEntry{
		Type:  NodeType(raw[0]),
		Flags: raw[1],
		Perm:  binary.LittleEndian.Uint16(raw[2:]),
	}
	if e.Type > NodeFolderAlias {
		return nil, fmt.Errorf("%w: unknown node type %d", ErrInvalidPackage, raw[0])
	}
	pathOff := binary.LittleEndian.Uint32(raw[4:])
	pathLen := binary.LittleEndian.Uint32(raw[8:])
	if pathLen == 0 || !extentInBuffer(pathOff, pathLen, len(pkg)) {
		return nil, fmt.Errorf("%w: entry path extent out of range", ErrInvalidPackage)
	}
	e.Path = string(pkg[pathOff : pathOff+pathLen])

	e.DataOff = binary.LittleEndian.Uint32(raw[12:])
	e.DataSize = binary.LittleEndian.Uint32(raw[16:])
	if e.HasInlineData() && !extentInBuffer(e.DataOff, e.DataSize, len(pkg)) {
		return nil, fmt.Errorf("%w: inline data extent out of range", ErrInvalidPackage)
	}

	aliasOff := binary.LittleEndian.Uint32(raw[20:])
	aliasLen := binary.LittleEndian.Uint32(raw[24:])
	if e.HasAlias() {
		if aliasLen == 0 || !extentInBuffer(aliasOff, aliasLen, len(pkg)) {
			return nil, fmt.Errorf("%w: alias extent out of range", ErrInvalidPackage)
		}
		e.Alias = string(pkg[aliasOff : aliasOff+aliasLen])
	}

	e.Modified = time.Unix(int64(binary.LittleEndian.Uint64(raw[28:])), 0).UTC()
	return e, nil
}
