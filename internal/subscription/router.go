package subscription

import (
	"context"
	"fmt"
	"sync/atomic"

	"jokeline/internal/eventbus"
	"jokeline/internal/storage"
	logx "jokeline/pkg/logx"
)

// Reply is the optional response text. OK is false when the sender gets silence.
type Reply struct {
	Text string
	OK   bool
}

func reply(text string) Reply { return Reply{Text: text, OK: true} }

type Options struct {
	Keywords Keywords
	Format   AddressFormat
	Replies  Replies
	Bus      eventbus.Bus
}

// Router applies the subscription state machine. It holds no locks across
// store calls; concurrent duplicates converge through the store's unique key.
type Router struct {
	store   storage.SubscriberStore
	log     logx.Logger
	bus     eventbus.Bus
	replies Replies
	format  AddressFormat

	keywords atomic.Pointer[Keywords]
}

func NewRouter(store storage.SubscriberStore, opts Options, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.Bus == nil {
		opts.Bus = eventbus.Discard()
	}
	if opts.Keywords.Subscribe == "" {
		opts.Keywords = DefaultKeywords()
	}
	if opts.Format.Length == 0 {
		opts.Format = AddressFormat{Prefix: "+1", Length: 12}
	}
	r := &Router{
		store:   store,
		log:     log,
		bus:     opts.Bus,
		replies: opts.Replies.withDefaults(),
		format:  opts.Format,
	}
	kw := opts.Keywords
	r.keywords.Store(&kw)
	return r
}

// SetKeywords swaps the vocabulary used by subsequent calls.
func (r *Router) SetKeywords(k Keywords) {
	if k.Subscribe == "" {
		return
	}
	r.keywords.Store(&k)
}

// Handle processes one inbound message. An invalid sender yields no reply and a
// nil error without touching the store. Store failures are returned wrapped.
func (r *Router) Handle(ctx context.Context, from, text string) (Reply, error) {
	if !r.format.Valid(from) {
		r.log.Debug("inbound rejected", logx.Int("from_len", len(from)))
		return Reply{}, nil
	}
	kw := r.keywords.Load()
	norm := Normalize(text)
	cmd := kw.Classify(norm)

	_, present, err := r.store.FindSubscriber(ctx, from)
	if err != nil {
		return Reply{}, fmt.Errorf("lookup subscriber: %w", err)
	}

	switch cmd {
	case CommandSubscribe:
		if present {
			return reply(r.replies.AlreadySubscribed), nil
		}
		created, err := r.store.InsertSubscriber(ctx, from)
		if err != nil {
			return Reply{}, fmt.Errorf("insert subscriber: %w", err)
		}
		if !created {
			// Lost a race with a duplicate delivery.
			return reply(r.replies.AlreadySubscribed), nil
		}
		r.log.Info("subscriber added", logx.String("address", from))
		r.bus.Publish(eventbus.Event{Type: eventbus.SubscriptionAdded, Data: eventbus.SubscriptionChange{Address: from}})
		return reply(r.replies.Welcome), nil

	case CommandUnsubscribe:
		if !present {
			return reply(r.replies.Help), nil
		}
		removed, err := r.store.DeleteSubscriber(ctx, from)
		if err != nil {
			return Reply{}, fmt.Errorf("delete subscriber: %w", err)
		}
		if removed {
			r.log.Info("subscriber removed", logx.String("address", from))
			r.bus.Publish(eventbus.Event{Type: eventbus.SubscriptionRemoved, Data: eventbus.SubscriptionChange{Address: from}})
		}
		return reply(r.replies.Unsubscribed), nil

	case CommandHelp:
		r.log.Debug("help reply", logx.Bool("keyword", kw.IsHelp(norm)), logx.Bool("subscribed", present))
		return reply(r.replies.Help), nil
	}
	return Reply{}, fmt.Errorf("unhandled command %v", cmd)
}
