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
	"errors"
	"path/filepath"
	"time"

	. "gopkg.in/check.v1"

	"github.com/exoscore/exos/epk"
)

var _ = Suite(&registrySuite{})

type registrySuite struct {
	reg *epk.Registry
}

func (s *registrySuite) SetUpTest(c *C) {
	reg, err := epk.OpenRegistry(filepath.Join(c.MkDir(), "packages.db"))
	c.Assert(err, IsNil)
	s.reg = reg
}

func (s *registrySuite) TearDownTest(c *C) {
	c.Assert(s.reg.Close(), IsNil)
}

func (s *registrySuite) TestAddGetRemove(c *C) {
	rec := &epk.RegistryRecord{
		Name:    "hello",
		Version: "1.0",
		Path:    "/system/packages/hello.epk",
		AddedAt: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	c.Assert(s.reg.Add(rec), IsNil)

	got, err := s.reg.Get("hello")
	c.Assert(err, IsNil)
	c.Check(got, DeepEquals, rec)

	_, err = s.reg.Get("other")
	c.Check(errors.Is(err, epk.ErrNotFound), Equals, true)

	c.Assert(s.reg.Remove("hello"), IsNil)
	err = s.reg.Remove("hello")
	c.Check(errors.Is(err, epk.ErrNotFound), Equals, true)
}

func (s *registrySuite) TestListSorted(c *C) {
	for _, name := range []string{"zeta", "alpha", "mid"} {
		c.Assert(s.reg.Add(&epk.RegistryRecord{Name: name, Version: "1", Path: "/p/" + name}), IsNil)
	}
	recs, err := s.reg.List()
	c.Assert(err, IsNil)
	c.Assert(recs, HasLen, 3)
	c.Check(recs[0].Name, Equals, "alpha")
	c.Check(recs[1].Name, Equals, "mid")
	c.Check(recs[2].Name, Equals, "zeta")
}

func (s *registrySuite) TestAddEmptyNameRejected(c *C) {
	err := s.reg.Add(&epk.RegistryRecord{})
	c.Check(err, ErrorMatches, "cannot register package with empty name")
}
