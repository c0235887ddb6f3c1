// this package provide "mock" implementation of registry for testing.
package mock

import (
	"context"
	"errors"

	"github.com/opst/mlgate/pkg/registry"
)

type MockRegistry struct {
	Impl struct {
		Alias     func(ctx context.Context, alias string) (registry.Entry, error)
		Get       func(ctx context.Context, version string) (registry.Entry, error)
		SwapAlias func(ctx context.Context, alias, expected, next string) error
	}
	Calls struct {
		SwapAlias []SwapAliasCall
	}
}

type SwapAliasCall struct {
	Alias    string
	Expected string
	Next     string
}

var _ registry.Registry = &MockRegistry{}

func New() *MockRegistry {
	return &MockRegistry{}
}

func (m *MockRegistry) Alias(ctx context.Context, alias string) (registry.Entry, error) {
	if m.Impl.Alias == nil {
		return registry.Entry{}, errors.New("[MOCK] not implemented")
	}
	return m.Impl.Alias(ctx, alias)
}

func (m *MockRegistry) Get(ctx context.Context, version string) (registry.Entry, error) {
	if m.Impl.Get == nil {
		return registry.Entry{}, errors.New("[MOCK] not implemented")
	}
	return m.Impl.Get(ctx, version)
}

func (m *MockRegistry) SwapAlias(ctx context.Context, alias, expected, next string) error {
	m.Calls.SwapAlias = append(m.Calls.SwapAlias, SwapAliasCall{Alias: alias, Expected: expected, Next: next})
	if m.Impl.SwapAlias == nil {
		return errors.New("[MOCK] not implemented")
	}
	return m.Impl.SwapAlias(ctx, alias, expected, next)
}
