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

package kernel

import (
	"fmt"
	"sync"

	"gopkg.in/tomb.v2"

	"github.com/exoscore/exos/epk"
	"github.com/exoscore/exos/logger"
)

// ExecFunc runs a spawned command line. The scheduler proper is outside
// the core; the default executor just succeeds, and embedders (shell,
// tests, the autotest harness) install their own.
type ExecFunc func(args []string) error

// Task is one spawned process.
type Task struct {
	ID   uint64
	Args []string

	tomb tomb.Tomb
}

// Wait blocks until the task exits.
func (t *Task) Wait() error {
	return t.tomb.Wait()
}

// TaskManager spawns and tracks tasks. It implements epk.TaskRunner.
type TaskManager struct {
	mu     sync.Mutex
	nextID uint64
	tasks  map[uint64]*Task
	exec   ExecFunc
}

// NewTaskManager creates an empty task table.
func NewTaskManager() *TaskManager {
	return &TaskManager{tasks: make(map[uint64]*Task)}
}

// SetExecutor installs the command executor.
func (m *TaskManager) SetExecutor(exec ExecFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exec = exec
}

// Spawn starts a task for the given command line.
func (m *TaskManager) Spawn(args []string) (epk.Process, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("cannot spawn empty command line")
	}
	m.mu.Lock()
	m.nextID++
	t := &Task{ID: m.nextID, Args: args}
	exec := m.exec
	m.tasks[t.ID] = t
	m.mu.Unlock()

	t.tomb.Go(func() error {
		defer m.reap(t.ID)
		logger.Debugf("kernel: task %d running %v", t.ID, args)
		if exec == nil {
			return nil
		}
		return exec(args)
	})
	return t, nil
}

func (m *TaskManager) reap(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
}

// Running returns the number of live tasks.
func (m *TaskManager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}
