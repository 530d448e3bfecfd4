// Package mocks provides test doubles for the brave client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	brave "github.com/sells-group/wine-resolver/pkg/brave"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Search provides a mock function with given fields: ctx, query, count
func (_m *MockClient) Search(ctx context.Context, query string, count int) (*brave.SearchResponse, error) {
	ret := _m.Called(ctx, query, count)

	if len(ret) == 0 {
		panic("no return value specified for Search")
	}

	var r0 *brave.SearchResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, int) (*brave.SearchResponse, error)); ok {
		return rf(ctx, query, count)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, int) *brave.SearchResponse); ok {
		r0 = rf(ctx, query, count)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*brave.SearchResponse)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, int) error); ok {
		r1 = rf(ctx, query, count)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
