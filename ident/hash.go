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
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"

	"github.com/minio/highwayhash"
	"golang.org/x/crypto/argon2"
)

// Password hash record versions. Version 1 is the historical salted
// 64-bit digest; version 2 is Argon2id. New hashes are always version 2;
// version 1 still verifies so migrated databases keep working, and is
// upgraded in place on successful verification paths that can write.
const (
	HashVersionLegacy = 1
	HashVersionArgon2 = 2
)

// Argon2id parameters, frozen; changing them requires a new version.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// Legacy salt affixes. The legacy digest is keyed 64-bit and is NOT a
// general cryptographic hash; it must never sign data.
const (
	legacySaltPrefix = "EXOS_SALT_"
	legacySaltSuffix = "_TLAS_SOXE"
)

// identKey keys the 64-bit digests (user ids, legacy hashes). Fixed:
// ids must be stable across boots.
var identKey = []byte("EXOS-identity-digest-key-v1.....")

// PasswordHash is the stored, versioned form of a password.
type PasswordHash struct {
	Version uint8
	// Legacy holds the version-1 64-bit digest.
	Legacy uint64
	// Salt and Key hold the version-2 Argon2id salt and derived key.
	Salt [argonSaltLen]byte
	Key  [argonKeyLen]byte
}

// HashUserID derives the stable 64-bit account identifier from the
// account name.
func HashUserID(userName string) uint64 {
	return highwayhash.Sum64([]byte(userName), identKey)
}

// HashPassword derives a fresh version-2 hash for a password.
func HashPassword(password string) (PasswordHash, error) {
	var h PasswordHash
	h.Version = HashVersionArgon2
	if _, err := rand.Read(h.Salt[:]); err != nil {
		return PasswordHash{}, err
	}
	key := argon2.IDKey([]byte(password), h.Salt[:], argonTime, argonMemory, argonThreads, argonKeyLen)
	copy(h.Key[:], key)
	return h, nil
}

// LegacyHashPassword derives the version-1 64-bit digest, kept for
// database migration and tests.
func LegacyHashPassword(password string) uint64 {
	salted := legacySaltPrefix + password + legacySaltSuffix
	return highwayhash.Sum64([]byte(salted), identKey)
}

// VerifyPassword recomputes the stored hash for the candidate password
// and compares constant-time.
func VerifyPassword(password string, h PasswordHash) bool {
	switch h.Version {
	case HashVersionLegacy:
		var got, want [8]byte
		binary.LittleEndian.PutUint64(got[:], LegacyHashPassword(password))
		binary.LittleEndian.PutUint64(want[:], h.Legacy)
		return subtle.ConstantTimeCompare(got[:], want[:]) == 1
	case HashVersionArgon2:
		key := argon2.IDKey([]byte(password), h.Salt[:], argonTime, argonMemory, argonThreads, argonKeyLen)
		return subtle.ConstantTimeCompare(key, h.Key[:]) == 1
	}
	return false
}
