package provider

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/wine-resolver/internal/model"
)

type fakeProvider struct {
	name      string
	available bool
	calls     atomic.Int32
	search    func(ctx context.Context, query string) ([]model.Candidate, error)
}

func (f *fakeProvider) Name() string    { return f.name }
func (f *fakeProvider) Available() bool { return f.available }

func (f *fakeProvider) Search(ctx context.Context, query string) ([]model.Candidate, error) {
	f.calls.Add(1)
	if f.search == nil {
		return nil, nil
	}
	return f.search(ctx, query)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeProvider{name: NameSerper, available: true})
	r.Register(&fakeProvider{name: NameBrave})
	r.Register(&fakeProvider{name: NameGoogleCSE, available: true})

	assert.NotNil(t, r.Get(NameSerper))
	assert.Nil(t, r.Get("bing"))
	assert.Equal(t, []string{NameBrave, NameGoogleCSE, NameSerper}, r.List())
}

func TestRegistry_AvailableKeepsOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeProvider{name: NameSerper, available: true})
	r.Register(&fakeProvider{name: NameBrave})
	r.Register(&fakeProvider{name: NameGoogleCSE, available: true})

	got := r.Available([]string{NameSerper, "bing", NameBrave, NameGoogleCSE})
	assert.Equal(t, []string{NameSerper, NameGoogleCSE}, got)
	assert.Empty(t, NewRegistry().Available(DefaultOrder))
}
