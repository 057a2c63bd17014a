//go:build !linux

package unitctl

import "context"

type Manager struct{}

func New(context.Context) (*Manager, error) { return nil, ErrUnsupported }

func (m *Manager) Run(context.Context, string, Action) error { return ErrUnsupported }

func (m *Manager) Close() error { return nil }
