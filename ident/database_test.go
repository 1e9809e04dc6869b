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

package ident_test

import (
	"encoding/binary"
	"errors"
	"time"

	. "gopkg.in/check.v1"

	"github.com/exoscore/exos/ident"
)

var _ = Suite(&databaseSuite{})

type databaseSuite struct{}

func mkAccount(c *C, name, password string, priv ident.Privilege) *ident.Account {
	hash, err := ident.HashPassword(password)
	c.Assert(err, IsNil)
	now := time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)
	return &ident.Account{
		UserID:        ident.HashUserID(name),
		UserName:      name,
		Hash:          hash,
		Privilege:     priv,
		Status:        ident.StatusActive,
		CreationTime:  now,
		LastLoginTime: now,
	}
}

func (s *databaseSuite) TestSerializeHeader(c *C) {
	data, err := ident.SerializeAccounts(nil)
	c.Assert(err, IsNil)
	c.Check(string(data[0:4]), Equals, "DBG1")
	c.Check(binary.LittleEndian.Uint32(data[4:]), Equals, uint32(1))
	// record size, count, capacity
	c.Check(binary.LittleEndian.Uint32(data[8:]), Equals, uint32(128))
	c.Check(binary.LittleEndian.Uint32(data[12:]), Equals, uint32(0))
	c.Check(binary.LittleEndian.Uint32(data[16:]), Equals, uint32(1024))
	// header + empty index
	c.Check(data, HasLen, 20+1024*8)
}

func (s *databaseSuite) TestRoundTrip(c *C) {
	in := []*ident.Account{
		mkAccount(c, "root", "rootpw", ident.PrivilegeAdmin),
		mkAccount(c, "alice", "pw", ident.PrivilegeUser),
	}
	data, err := ident.SerializeAccounts(in)
	c.Assert(err, IsNil)

	out, err := ident.LoadAccounts(data)
	c.Assert(err, IsNil)
	c.Assert(out, HasLen, 2)
	for i := range in {
		c.Check(out[i], DeepEquals, in[i])
	}

	// reserialization is byte-identical
	again, err := ident.SerializeAccounts(out)
	c.Assert(err, IsNil)
	c.Check(again, DeepEquals, data)
}

func (s *databaseSuite) TestLoadRejectsCorruption(c *C) {
	good, err := ident.SerializeAccounts([]*ident.Account{mkAccount(c, "x", "p", ident.PrivilegeUser)})
	c.Assert(err, IsNil)

	for _, mangle := range []func([]byte){
		func(d []byte) { copy(d, "NOPE") },                          // bad magic
		func(d []byte) { binary.LittleEndian.PutUint32(d[4:], 9) },  // bad version
		func(d []byte) { binary.LittleEndian.PutUint32(d[8:], 64) }, // record size mismatch
		func(d []byte) { binary.LittleEndian.PutUint32(d[12:], 5000) }, // count > capacity
	} {
		data := append([]byte(nil), good...)
		mangle(data)
		_, err := ident.LoadAccounts(data)
		c.Check(errors.Is(err, ident.ErrCorruptDatabase), Equals, true)
	}

	_, err = ident.LoadAccounts(good[:10])
	c.Check(errors.Is(err, ident.ErrCorruptDatabase), Equals, true)
}
