package apply

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flathunters/flatwatch/internal/model"
)

type stubApplier struct {
	name    string
	handles bool
	result  Result
	called  int
}

func (s *stubApplier) Name() string                  { return s.name }
func (s *stubApplier) CanHandle(l model.Listing) bool { return s.handles }
func (s *stubApplier) Apply(ctx context.Context, l model.Listing) Result {
	s.called++
	return s.result
}

func TestDispatcher_FirstMatchWins(t *testing.T) {
	first := &stubApplier{name: "first", handles: true, result: Result{Status: StatusSuccess}}
	second := &stubApplier{name: "second", handles: true, result: Result{Status: StatusSuccess}}

	d := NewDispatcher()
	d.Register(first)
	d.Register(second)

	res := d.Dispatch(context.Background(), model.Listing{Identifier: "https://example.org/1"})
	assert.True(t, res.Success())
	assert.Equal(t, 1, first.called)
	assert.Zero(t, second.called)
}

func TestDispatcher_NoFallbackOnFailure(t *testing.T) {
	failing := &stubApplier{name: "failing", handles: true, result: Result{Status: StatusFailed}}
	backup := &stubApplier{name: "backup", handles: true, result: Result{Status: StatusSuccess}}

	d := NewDispatcher()
	d.Register(failing)
	d.Register(backup)

	res := d.Dispatch(context.Background(), model.Listing{Identifier: "https://example.org/1"})
	assert.Equal(t, StatusFailed, res.Status)
	assert.Zero(t, backup.called, "a failed applier must not fall back to the next")
}

func TestDispatcher_SkipsUnhandledListing(t *testing.T) {
	a := &stubApplier{name: "narrow", handles: false}

	d := NewDispatcher()
	d.Register(a)

	res := d.Dispatch(context.Background(), model.Listing{Identifier: "https://example.org/1"})
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Zero(t, a.called)
}

func TestDispatcher_Empty(t *testing.T) {
	res := NewDispatcher().Dispatch(context.Background(), model.Listing{})
	assert.Equal(t, StatusSkipped, res.Status)
}
