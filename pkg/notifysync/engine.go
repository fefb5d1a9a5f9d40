package notifysync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrNotInitialized = errors.New("notifysync: engine is not initialized")
	ErrClosed         = errors.New("notifysync: engine is closed")
	ErrEmptyUserID    = errors.New("notifysync: empty user id")
)

const (
	DefaultSnapshotLimit     = 50
	DefaultBatchWindow       = 300 * time.Millisecond
	DefaultMaxKnownIDs       = 5000
	DefaultMaxContextEntries = 1000

	logModule  = "NotificationEngine"
	inboxDepth = 256
)

type Options struct {
	// SnapshotLimit caps the unread rows loaded on init.
	SnapshotLimit int
	// BatchWindow is how long a processing pass keeps collecting inserts
	// after the first qualifying one. Zero uses DefaultBatchWindow; a
	// negative value limits a pass to the events already queued.
	BatchWindow       time.Duration
	MaxKnownIDs       int
	MaxContextEntries int
	Logger            Logger
}

func (o Options) withDefaults() Options {
	if o.SnapshotLimit <= 0 {
		o.SnapshotLimit = DefaultSnapshotLimit
	}
	if o.BatchWindow == 0 {
		o.BatchWindow = DefaultBatchWindow
	}
	if o.MaxKnownIDs <= 0 {
		o.MaxKnownIDs = DefaultMaxKnownIDs
	}
	if o.MaxContextEntries <= 0 {
		o.MaxContextEntries = DefaultMaxContextEntries
	}
	if o.Logger == nil {
		o.Logger = nopLogger{}
	}
	return o
}

// Engine synchronizes one user's notifications at a time. All session state
// is owned by a single loop goroutine; public methods talk to it through a
// mailbox and read the last published State.
type Engine struct {
	store     Store
	channel   Channel
	lookup    EntityLookup
	presenter Presenter
	log       Logger
	opts      Options

	inbox     chan message
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	state   atomic.Pointer[State]
	watchMu sync.Mutex
	changed chan struct{}

	// loop-owned
	gen uint64
	s   *session
}

type session struct {
	gen       uint64
	userID    string
	readiness Readiness
	known     *knownSet
	records   map[string]Record
	// ids cached from an UPDATE whose INSERT has not arrived yet
	early     map[string]struct{}
	resolver  *ContextResolver
	err       error
	live      bool
	sub       Subscription
	ctx       context.Context
	cancel    context.CancelFunc

	// events received before READY, replayed on the transition
	pending []RowEvent
	// unread inserts of the current processing pass
	batch []Record
}

type message interface{}

type initMsg struct {
	userID string
}

type cleanupMsg struct {
	reply chan struct{}
}

type snapshotMsg struct {
	gen     uint64
	userID  string
	records []Record
	err     error
}

type subscribedMsg struct {
	gen uint64
	sub Subscription
	err error
}

type channelClosedMsg struct {
	gen uint64
	err error
}

type rowMsg struct {
	gen uint64
	ev  RowEvent
}

type markedMsg struct {
	gen   uint64
	rec   Record
	err   error
	reply chan error
}

type markedAllMsg struct {
	gen   uint64
	at    time.Time
	err   error
	reply chan error
}

// NewEngine starts the engine loop. The engine is UNINITIALIZED until Init.
// channel, lookup and presenter may be nil.
func NewEngine(store Store, channel Channel, lookup EntityLookup, presenter Presenter, opts Options) *Engine {
	opts = opts.withDefaults()
	if presenter == nil {
		presenter = PresenterFunc(func(Toast) {})
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:     store,
		channel:   channel,
		lookup:    lookup,
		presenter: presenter,
		log:       opts.Logger,
		opts:      opts,
		inbox:     make(chan message, inboxDepth),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		changed:   make(chan struct{}),
	}
	e.newSession("")
	e.publish()

	go e.run()
	return e
}

// Init starts a session for userID. It returns immediately; progress is
// visible through State and Watch. Calling it again for a user that is
// already READY does nothing.
func (e *Engine) Init(userID string) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	if !e.post(initMsg{userID: userID}) {
		return ErrClosed
	}
	return nil
}

// Cleanup detaches the channel and drops all session state. It is safe to
// call any number of times.
func (e *Engine) Cleanup() {
	reply := make(chan struct{})
	if !e.post(cleanupMsg{reply: reply}) {
		return
	}
	select {
	case <-reply:
	case <-e.done:
	}
}

// Close cleans up and stops the engine loop.
func (e *Engine) Close() error {
	e.closeOnce.Do(e.cancel)
	<-e.done
	return nil
}

func (e *Engine) State() State {
	return *e.state.Load()
}

// Watch returns a channel closed at the next state change.
func (e *Engine) Watch() <-chan struct{} {
	e.watchMu.Lock()
	defer e.watchMu.Unlock()
	return e.changed
}

// MarkAsRead asks the backend to mark one notification read and folds the
// confirmed row into local state. On failure local state is unchanged and
// the error is also exposed in State.Err.
func (e *Engine) MarkAsRead(ctx context.Context, id string) error {
	st := e.State()
	if st.Readiness == Uninitialized {
		return ErrNotInitialized
	}

	rec, err := e.store.MarkAsRead(ctx, id)
	if err != nil {
		err = fmt.Errorf("mark notification %s as read: %w", id, err)
	}

	reply := make(chan error, 1)
	return e.await(markedMsg{gen: st.generation, rec: rec, err: err, reply: reply}, reply)
}

// MarkAllAsRead is a single bulk call for the current user. On success
// every cached unread record gets a local read_at.
func (e *Engine) MarkAllAsRead(ctx context.Context) error {
	st := e.State()
	if st.Readiness == Uninitialized {
		return ErrNotInitialized
	}

	_, err := e.store.MarkAllAsRead(ctx, st.UserID)
	if err != nil {
		err = fmt.Errorf("mark all notifications as read: %w", err)
	}

	reply := make(chan error, 1)
	return e.await(markedAllMsg{gen: st.generation, at: time.Now(), err: err, reply: reply}, reply)
}

func (e *Engine) await(m message, reply chan error) error {
	if !e.post(m) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-e.done:
		return ErrClosed
	}
}

func (e *Engine) post(m message) bool {
	select {
	case <-e.ctx.Done():
		return false
	default:
	}
	select {
	case e.inbox <- m:
		return true
	case <-e.ctx.Done():
		return false
	}
}

func (e *Engine) run() {
	defer close(e.done)

	var (
		timer *time.Timer
		flush <-chan time.Time
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer, flush = nil, nil
		}
	}

	for {
		select {
		case <-e.ctx.Done():
			stopTimer()
			e.teardown()
			e.newSession("")
			e.publish()
			return

		case m := <-e.inbox:
			e.handle(m)
			if e.opts.BatchWindow < 0 {
				e.drain()
				e.flushToasts()
				continue
			}
			switch {
			case len(e.s.batch) == 0:
				stopTimer()
			case timer == nil:
				timer = time.NewTimer(e.opts.BatchWindow)
				flush = timer.C
			}

		case <-flush:
			timer, flush = nil, nil
			e.flushToasts()
		}
	}
}

func (e *Engine) drain() {
	for {
		select {
		case m := <-e.inbox:
			e.handle(m)
		default:
			return
		}
	}
}

func (e *Engine) handle(m message) {
	switch m := m.(type) {
	case initMsg:
		e.handleInit(m)
	case cleanupMsg:
		e.teardown()
		e.newSession("")
		e.publish()
		close(m.reply)
	case snapshotMsg:
		e.handleSnapshot(m)
	case subscribedMsg:
		e.handleSubscribed(m)
	case channelClosedMsg:
		if m.gen != e.s.gen {
			return
		}
		e.s.live = false
		details := map[string]interface{}{"user_id": e.s.userID}
		if m.err != nil {
			details["error"] = m.err.Error()
		}
		e.log.Warn(logModule, "Notification channel closed", details)
		e.publish()
	case rowMsg:
		e.handleRow(m)
	case markedMsg:
		e.handleMarked(m)
	case markedAllMsg:
		e.handleMarkedAll(m)
	}
}

func (e *Engine) handleInit(m initMsg) {
	if e.s.userID == m.userID && e.s.readiness == Ready {
		return
	}

	e.teardown()
	e.newSession(m.userID)
	e.s.readiness = Loading
	e.publish()

	e.log.Info(logModule, "Loading notification snapshot", map[string]interface{}{"user_id": m.userID})

	gen, userID, ctx, limit := e.s.gen, e.s.userID, e.s.ctx, e.opts.SnapshotLimit
	go func() {
		records, err := e.store.ListUnread(ctx, userID, limit)
		e.post(snapshotMsg{gen: gen, userID: userID, records: records, err: err})
	}()
}

func (e *Engine) handleSnapshot(m snapshotMsg) {
	s := e.s
	if m.gen != s.gen || m.userID != s.userID {
		e.log.Debug(logModule, "Discarding stale snapshot", map[string]interface{}{"user_id": m.userID})
		return
	}
	if m.err != nil {
		s.err = fmt.Errorf("load unread notifications: %w", m.err)
		e.log.Error(logModule, "Failed to load notification snapshot", map[string]interface{}{
			"user_id": s.userID,
			"error":   m.err.Error(),
		})
		e.publish()
		return
	}

	for _, rec := range m.records {
		s.records[rec.ID] = merge(s.records[rec.ID], rec)
		s.known.Add(rec.ID)
		delete(s.early, rec.ID)
	}
	s.readiness = Ready
	s.err = nil

	pending := s.pending
	s.pending = nil
	for _, ev := range pending {
		e.apply(ev)
	}
	e.publish()

	e.log.Info(logModule, "Notification snapshot loaded", map[string]interface{}{
		"user_id": s.userID,
		"count":   len(m.records),
	})
	e.subscribe()
}

func (e *Engine) subscribe() {
	if e.channel == nil {
		e.log.Warn(logModule, "No notification channel configured, live updates disabled", nil)
		return
	}

	gen, userID, ctx := e.s.gen, e.s.userID, e.s.ctx
	handler := func(ev RowEvent) {
		e.post(rowMsg{gen: gen, ev: ev})
	}
	go func() {
		sub, err := e.channel.Subscribe(ctx, userID, handler)
		if !e.post(subscribedMsg{gen: gen, sub: sub, err: err}) && sub != nil {
			sub.Unsubscribe()
		}
	}()
}

func (e *Engine) handleSubscribed(m subscribedMsg) {
	s := e.s
	if m.gen != s.gen {
		if m.sub != nil {
			m.sub.Unsubscribe()
		}
		return
	}
	if m.err != nil {
		e.log.Warn(logModule, "Failed to subscribe to notification channel", map[string]interface{}{
			"user_id": s.userID,
			"error":   m.err.Error(),
		})
		return
	}

	s.sub = m.sub
	s.live = true
	e.publish()

	if cs, ok := m.sub.(ClosingSubscription); ok {
		gen, ctx := s.gen, s.ctx
		go func() {
			select {
			case <-cs.Done():
				e.post(channelClosedMsg{gen: gen, err: cs.Err()})
			case <-ctx.Done():
			}
		}()
	}
}

func (e *Engine) handleRow(m rowMsg) {
	s := e.s
	if m.gen != s.gen {
		return
	}
	if s.readiness != Ready {
		s.pending = append(s.pending, m.ev)
		return
	}
	if e.apply(m.ev) {
		e.publish()
	}
}

// apply folds one channel event into the session and reports whether local
// state changed.
func (e *Engine) apply(ev RowEvent) bool {
	s := e.s
	rec := ev.Record
	if rec.ID == "" {
		e.log.Warn(logModule, "Ignoring channel event without id", map[string]interface{}{"kind": string(ev.Kind)})
		return false
	}

	switch ev.Kind {
	case EventInsert:
		prev, cached := s.records[rec.ID]
		_, early := s.early[rec.ID]
		// A cached id without an early update was surfaced before and may
		// only have been evicted from the known set.
		if s.known.Has(rec.ID) || (cached && !early) {
			e.log.Debug(logModule, "Ignoring duplicate insert", map[string]interface{}{"id": rec.ID})
			return false
		}
		delete(s.early, rec.ID)
		s.known.Add(rec.ID)
		rec = merge(prev, rec)
		s.records[rec.ID] = rec
		if !rec.IsRead() {
			s.batch = append(s.batch, rec)
		}
		return true

	case EventUpdate:
		// An update may overtake its insert. The id stays unknown so the
		// late insert is still surfaced.
		prev, cached := s.records[rec.ID]
		if !cached && !s.known.Has(rec.ID) {
			s.early[rec.ID] = struct{}{}
		}
		s.records[rec.ID] = merge(prev, rec)
		return true

	default:
		e.log.Warn(logModule, "Ignoring unknown channel event", map[string]interface{}{"kind": string(ev.Kind), "id": rec.ID})
		return false
	}
}

// merge never clears read_at.
func merge(prev, next Record) Record {
	if next.ReadAt == nil && prev.ReadAt != nil {
		next.ReadAt = prev.ReadAt
	}
	return next
}

func (e *Engine) handleMarked(m markedMsg) {
	s := e.s
	if m.gen != s.gen {
		m.reply <- m.err
		return
	}
	if m.err != nil {
		s.err = m.err
		e.publish()
		m.reply <- m.err
		return
	}

	if m.rec.ID != "" {
		s.known.Add(m.rec.ID)
		delete(s.early, m.rec.ID)
		s.records[m.rec.ID] = merge(s.records[m.rec.ID], m.rec)
	}
	if s.readiness == Ready {
		s.err = nil
	}
	e.publish()
	m.reply <- nil
}

func (e *Engine) handleMarkedAll(m markedAllMsg) {
	s := e.s
	if m.gen != s.gen {
		m.reply <- m.err
		return
	}
	if m.err != nil {
		s.err = m.err
		e.publish()
		m.reply <- m.err
		return
	}

	at := m.at
	for id, rec := range s.records {
		if rec.ReadAt == nil {
			rec.ReadAt = &at
			s.records[id] = rec
		}
	}
	if s.readiness == Ready {
		s.err = nil
	}
	e.publish()
	m.reply <- nil
}

// flushToasts ends the current processing pass.
func (e *Engine) flushToasts() {
	s := e.s
	batch := s.batch
	s.batch = nil

	fresh := batch[:0]
	for _, rec := range batch {
		if cur, ok := s.records[rec.ID]; ok && !cur.IsRead() {
			fresh = append(fresh, cur)
		}
	}

	// Presenters run off the loop so they may call back into the engine.
	switch len(fresh) {
	case 0:
	case 1:
		go e.presentDetail(s.ctx, s.resolver, fresh[0])
	default:
		go e.presentSummary(s.ctx, len(fresh))
	}
}

func (e *Engine) presentSummary(ctx context.Context, count int) {
	if ctx.Err() != nil {
		return
	}
	e.presenter.Present(SummaryToast(count))
}

func (e *Engine) presentDetail(ctx context.Context, resolver *ContextResolver, rec Record) {
	ec, ok := resolver.Resolve(ctx, rec.RelatedEntityType, rec.RelatedEntityID)
	if ctx.Err() != nil {
		return
	}
	e.presenter.Present(DetailToast(rec, ec, ok))
}

func (e *Engine) newSession(userID string) {
	e.gen++
	ctx, cancel := context.WithCancel(e.ctx)
	e.s = &session{
		gen:      e.gen,
		userID:   userID,
		known:    newKnownSet(e.opts.MaxKnownIDs),
		records:  make(map[string]Record),
		early:    make(map[string]struct{}),
		resolver: NewContextResolver(e.lookup, e.opts.MaxContextEntries),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (e *Engine) teardown() {
	s := e.s
	if s == nil {
		return
	}
	s.cancel()
	s.resolver.Reset()
	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
		e.log.Info(logModule, "Notification channel unsubscribed", map[string]interface{}{"user_id": s.userID})
	}
	s.live = false
	s.pending = nil
	s.batch = nil
}

func (e *Engine) publish() {
	s := e.s
	list := make([]Record, 0, len(s.records))
	unread := 0
	for _, rec := range s.records {
		list = append(list, rec)
		if !rec.IsRead() {
			unread++
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})

	e.state.Store(&State{
		UserID:        s.userID,
		Readiness:     s.readiness,
		Notifications: list,
		UnreadCount:   unread,
		Loading:       s.readiness == Loading,
		Live:          s.live,
		Err:           s.err,
		generation:    s.gen,
	})

	e.watchMu.Lock()
	close(e.changed)
	e.changed = make(chan struct{})
	e.watchMu.Unlock()
}
