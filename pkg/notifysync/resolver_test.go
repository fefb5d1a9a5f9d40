package notifysync

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	mu             sync.Mutex
	tickets        map[string]string
	minutes        map[string]string
	commentParents map[string]string
	err            error
	calls          []string
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{
		tickets:        map[string]string{},
		minutes:        map[string]string{},
		commentParents: map[string]string{},
	}
}

func (f *fakeLookup) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeLookup) TicketTitle(_ context.Context, id string) (string, error) {
	if err := f.record("ticket:" + id); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tickets[id], nil
}

func (f *fakeLookup) MeetingMinuteTitle(_ context.Context, id string) (string, error) {
	if err := f.record("meeting_minute:" + id); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.minutes[id], nil
}

func (f *fakeLookup) MeetingMinuteIDForComment(_ context.Context, id string) (string, error) {
	if err := f.record("comment:" + id); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commentParents[id], nil
}

func (f *fakeLookup) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeLookup) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func TestContextResolverLookupPaths(t *testing.T) {
	lookup := newFakeLookup()
	lookup.tickets["t1"] = "Printer on floor 2"
	lookup.minutes["m1"] = "Weekly sync"
	lookup.commentParents["c1"] = "m1"

	tests := []struct {
		name       string
		entityType string
		entityID   string
		want       EntityContext
		wantOK     bool
		wantCalls  []string
	}{
		{
			name:       "ticket",
			entityType: EntityTicket,
			entityID:   "t1",
			want:       EntityContext{Label: "Ticket", Title: "Printer on floor 2"},
			wantOK:     true,
			wantCalls:  []string{"ticket:t1"},
		},
		{
			name:       "meeting minute",
			entityType: EntityMeetingMinute,
			entityID:   "m1",
			want:       EntityContext{Label: "Meeting minute", Title: "Weekly sync"},
			wantOK:     true,
			wantCalls:  []string{"meeting_minute:m1"},
		},
		{
			name:       "comment resolves its meeting minute",
			entityType: EntityComment,
			entityID:   "c1",
			want:       EntityContext{Label: "Comment on meeting minute", Title: "Weekly sync"},
			wantOK:     true,
			wantCalls:  []string{"comment:c1", "meeting_minute:m1"},
		},
		{
			name:       "orphan comment",
			entityType: EntityComment,
			entityID:   "c2",
			wantOK:     false,
			wantCalls:  []string{"comment:c2"},
		},
		{
			name:       "missing ticket",
			entityType: EntityTicket,
			entityID:   "t404",
			wantOK:     false,
			wantCalls:  []string{"ticket:t404"},
		},
		{
			name:       "unknown entity type",
			entityType: "lead",
			entityID:   "l1",
			wantOK:     false,
		},
		{
			name:       "no entity reference",
			entityType: "",
			entityID:   "",
			wantOK:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup.mu.Lock()
			lookup.calls = nil
			lookup.mu.Unlock()

			resolver := NewContextResolver(lookup, 10)
			got, ok := resolver.Resolve(context.Background(), tt.entityType, tt.entityID)

			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCalls, lookup.Calls())
		})
	}
}

func TestContextResolverCachesSuccessOnly(t *testing.T) {
	lookup := newFakeLookup()
	lookup.tickets["t1"] = "Broken chair"
	resolver := NewContextResolver(lookup, 10)
	ctx := context.Background()

	_, ok := resolver.Resolve(ctx, EntityTicket, "t1")
	require.True(t, ok)
	_, ok = resolver.Resolve(ctx, EntityTicket, "t1")
	require.True(t, ok)
	assert.Len(t, lookup.Calls(), 1, "second resolve must be served from cache")

	lookup.setErr(errors.New("backend down"))
	_, ok = resolver.Resolve(ctx, EntityMeetingMinute, "m1")
	assert.False(t, ok)
	assert.Equal(t, 1, resolver.Len())

	lookup.setErr(nil)
	lookup.mu.Lock()
	lookup.minutes["m1"] = "Board meeting"
	lookup.mu.Unlock()

	got, ok := resolver.Resolve(ctx, EntityMeetingMinute, "m1")
	require.True(t, ok, "failed resolution must be retried")
	assert.Equal(t, "Board meeting", got.Title)
	assert.Equal(t, 2, resolver.Len())
}

func TestContextResolverEvictsOldest(t *testing.T) {
	lookup := newFakeLookup()
	lookup.tickets["t1"] = "one"
	lookup.tickets["t2"] = "two"
	lookup.tickets["t3"] = "three"
	resolver := NewContextResolver(lookup, 2)
	ctx := context.Background()

	for _, id := range []string{"t1", "t2", "t3"} {
		_, ok := resolver.Resolve(ctx, EntityTicket, id)
		require.True(t, ok)
	}
	assert.Equal(t, 2, resolver.Len())

	_, ok := resolver.Resolve(ctx, EntityTicket, "t1")
	require.True(t, ok)
	assert.Equal(t, []string{"ticket:t1", "ticket:t2", "ticket:t3", "ticket:t1"}, lookup.Calls())

	resolver.Reset()
	assert.Equal(t, 0, resolver.Len())
}

func TestKnownSet(t *testing.T) {
	k := newKnownSet(3)

	assert.True(t, k.Add("a"))
	assert.False(t, k.Add("a"))
	k.Add("b")
	k.Add("c")
	k.Add("d")

	assert.Equal(t, 3, k.Len())
	assert.False(t, k.Has("a"), "oldest id is evicted first")
	assert.True(t, k.Has("d"))
}

func TestToastCopy(t *testing.T) {
	tests := []struct {
		name     string
		rec      Record
		ec       EntityContext
		resolved bool
		want     Toast
	}{
		{
			name:     "mentioned with context",
			rec:      Record{Type: TypeMentioned},
			ec:       EntityContext{Label: "Ticket", Title: "VPN access"},
			resolved: true,
			want:     Toast{Title: "You were mentioned", Description: "Ticket: VPN access", Emphasis: EmphasisInfo, Duration: detailToastDuration},
		},
		{
			name: "assigned without context",
			rec:  Record{Type: TypeAssigned},
			want: Toast{Title: "You were assigned", Description: genericDescription, Emphasis: EmphasisInfo, Duration: detailToastDuration},
		},
		{
			name: "future type degrades to generic title",
			rec:  Record{Type: "escalated"},
			want: Toast{Title: "New notification", Description: genericDescription, Emphasis: EmphasisInfo, Duration: detailToastDuration},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetailToast(tt.rec, tt.ec, tt.resolved))
		})
	}

	assert.Equal(t, "You have 3 new notifications.", SummaryToast(3).Description)
	assert.Equal(t, "You were named secretary", TypeTitle(TypeSecretary))
	assert.Equal(t, "You were made responsible", TypeTitle(TypeResponsible))
}
