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

package ident

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// The persisted user database ("DBG1" format): a fixed header, `count`
// fixed-size account records, then an open-addressing hash index of
// `capacity` entries keyed on the truncated user id. Key -1 marks an
// empty slot.
const (
	dbMagic   = "DBG1"
	dbVersion = 1

	// accountRecordSize is the wire size of one account record.
	accountRecordSize = 128

	// dbDefaultCapacity bounds the account population; the index is
	// sized for it up front.
	dbDefaultCapacity = 1024
)

// account record layout, little-endian:
//
//	off  size  field
//	0    8     UserID
//	8    32    UserName (NUL padded)
//	40   1     HashVersion
//	41   7     reserved
//	48   8     legacy 64-bit hash
//	56   16    argon2 salt
//	72   32    argon2 key
//	104  4     Privilege
//	108  4     Status
//	112  8     CreationTime (unix seconds)
//	120  8     LastLoginTime (unix seconds)

func encodeAccount(a *Account) [accountRecordSize]byte {
	var rec [accountRecordSize]byte
	binary.LittleEndian.PutUint64(rec[0:], a.UserID)
	copy(rec[8:40], a.UserName)
	rec[40] = a.Hash.Version
	binary.LittleEndian.PutUint64(rec[48:], a.Hash.Legacy)
	copy(rec[56:72], a.Hash.Salt[:])
	copy(rec[72:104], a.Hash.Key[:])
	binary.LittleEndian.PutUint32(rec[104:], uint32(a.Privilege))
	binary.LittleEndian.PutUint32(rec[108:], uint32(a.Status))
	binary.LittleEndian.PutUint64(rec[112:], uint64(a.CreationTime.Unix()))
	binary.LittleEndian.PutUint64(rec[120:], uint64(a.LastLoginTime.Unix()))
	return rec
}

func decodeAccount(rec []byte) *Account {
	a := &Account{
		UserID:   binary.LittleEndian.Uint64(rec[0:]),
		UserName: string(bytes.TrimRight(rec[8:40], "\x00")),
	}
	a.Hash.Version = rec[40]
	a.Hash.Legacy = binary.LittleEndian.Uint64(rec[48:])
	copy(a.Hash.Salt[:], rec[56:72])
	copy(a.Hash.Key[:], rec[72:104])
	a.Privilege = Privilege(binary.LittleEndian.Uint32(rec[104:]))
	a.Status = Status(binary.LittleEndian.Uint32(rec[108:]))
	a.CreationTime = time.Unix(int64(binary.LittleEndian.Uint64(rec[112:])), 0).UTC()
	a.LastLoginTime = time.Unix(int64(binary.LittleEndian.Uint64(rec[120:])), 0).UTC()
	return a
}

// indexKey truncates a user id to the signed 32-bit index key.
func indexKey(userID uint64) int32 {
	key := int32(uint32(userID))
	if key == -1 {
		// -1 is the empty marker; remap
		key = 0
	}
	return key
}

// SerializeAccounts writes the DBG1 byte image for the given accounts.
func SerializeAccounts(accounts []*Account) ([]byte, error) {
	count := len(accounts)
	capacity := dbDefaultCapacity
	if count > capacity {
		return nil, fmt.Errorf("cannot serialize %d accounts: index capacity is %d", count, capacity)
	}

	var buf bytes.Buffer
	buf.WriteString(dbMagic)
	var hdr [16]byte
	binary.LittleEndian.PutUint32(hdr[0:], dbVersion)
	binary.LittleEndian.PutUint32(hdr[4:], accountRecordSize)
	binary.LittleEndian.PutUint32(hdr[8:], uint32(count))
	binary.LittleEndian.PutUint32(hdr[12:], uint32(capacity))
	buf.Write(hdr[:])

	for _, a := range accounts {
		rec := encodeAccount(a)
		buf.Write(rec[:])
	}

	// open-addressing index, linear probing
	type indexEntry struct {
		key    int32
		record uint32
	}
	index := make([]indexEntry, capacity)
	for i := range index {
		index[i].key = -1
	}
	for recIdx, a := range accounts {
		key := indexKey(a.UserID)
		slot := int(uint32(key)) % capacity
		for index[slot].key != -1 {
			slot = (slot + 1) % capacity
		}
		index[slot] = indexEntry{key: key, record: uint32(recIdx)}
	}
	for _, e := range index {
		var ent [8]byte
		binary.LittleEndian.PutUint32(ent[0:], uint32(e.key))
		binary.LittleEndian.PutUint32(ent[4:], e.record)
		buf.Write(ent[:])
	}

	return buf.Bytes(), nil
}

// LoadAccounts parses a DBG1 byte image. Corruption (bad magic, version
// or size mismatch, index overflow) fails with ErrCorruptDatabase so the
// caller can proceed with an empty database.
func LoadAccounts(data []byte) ([]*Account, error) {
	if len(data) < 20 {
		return nil, fmt.Errorf("%w: truncated header", ErrCorruptDatabase)
	}
	if string(data[0:4]) != dbMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptDatabase)
	}
	version := binary.LittleEndian.Uint32(data[4:])
	recordSize := binary.LittleEndian.Uint32(data[8:])
	count := binary.LittleEndian.Uint32(data[12:])
	capacity := binary.LittleEndian.Uint32(data[16:])
	if version != dbVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptDatabase, version)
	}
	if recordSize != accountRecordSize {
		return nil, fmt.Errorf("%w: record size %d", ErrCorruptDatabase, recordSize)
	}
	if count > capacity {
		return nil, fmt.Errorf("%w: count %d exceeds capacity %d", ErrCorruptDatabase, count, capacity)
	}
	need := 20 + int(count)*accountRecordSize + int(capacity)*8
	if len(data) < need {
		return nil, fmt.Errorf("%w: truncated body", ErrCorruptDatabase)
	}

	accounts := make([]*Account, 0, count)
	off := 20
	for i := uint32(0); i < count; i++ {
		accounts = append(accounts, decodeAccount(data[off:off+accountRecordSize]))
		off += accountRecordSize
	}
	return accounts, nil
}
