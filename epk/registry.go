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
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

var registryBucket = []byte("packages")

// RegistryRecord describes one installed package.
type RegistryRecord struct {
	Name    string    `json:"name"`
	Version string    `json:"version"`
	Path    string    `json:"path"`
	AddedAt time.Time `json:"added-at"`
}

// Registry is the installed-package registry, a small bolt database on
// kernel state storage. It maps package names to the VFS path of their
// .epk blob.
type Registry struct {
	db *bolt.DB
}

// OpenRegistry opens (creating if needed) the registry at a host path.
func OpenRegistry(path string) (*Registry, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("cannot open package registry: %v", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(registryBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Registry{db: db}, nil
}

// Close releases the registry.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Add records an installed package, replacing a previous record of the
// same name.
func (r *Registry) Add(rec *RegistryRecord) error {
	if rec.Name == "" {
		return fmt.Errorf("cannot register package with empty name")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(registryBucket).Put([]byte(rec.Name), data)
	})
}

// Get looks a package record up by name.
func (r *Registry) Get(name string) (*RegistryRecord, error) {
	var rec *RegistryRecord
	err := r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(registryBucket).Get([]byte(name))
		if data == nil {
			return fmt.Errorf("package %q: %w", name, ErrNotFound)
		}
		rec = &RegistryRecord{}
		return json.Unmarshal(data, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Remove drops a package record.
func (r *Registry) Remove(name string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(registryBucket)
		if b.Get([]byte(name)) == nil {
			return fmt.Errorf("package %q: %w", name, ErrNotFound)
		}
		return b.Delete([]byte(name))
	})
}

// List returns all records sorted by name.
func (r *Registry) List() ([]*RegistryRecord, error) {
	var recs []*RegistryRecord
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(registryBucket).ForEach(func(k, v []byte) error {
			rec := &RegistryRecord{}
			if err := json.Unmarshal(v, rec); err != nil {
				return err
			}
			recs = append(recs, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Name < recs[j].Name })
	return recs, nil
}
