package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/dmitrymomot/pulse/pkg/async"
	"github.com/dmitrymomot/pulse/pkg/community"
	"github.com/dmitrymomot/pulse/pkg/logger"
)

// Presence tells whether a recipient holds a live connection.
type Presence interface {
	IsOnline(userID string) bool
}

// Observer receives delivery metrics.
type Observer interface {
	ChannelAttempt(channel ChannelName, success bool, took time.Duration)
	StoreEvicted(n int)
}

// Dispatcher orchestrates channel selection, templating and result
// aggregation. It holds no transport logic.
type Dispatcher struct {
	directory  community.IdentityDirectory
	store      Store
	presence   Presence
	templates  *Templates
	channels   map[ChannelName]Channel
	observer   Observer
	timeout    time.Duration
	background time.Duration
	group      *async.Group
	now        func() time.Time
	log        *slog.Logger
}

type Option func(*Dispatcher)

// WithChannel registers a channel adapter under its Name.
func WithChannel(ch Channel) Option {
	return func(d *Dispatcher) {
		if ch != nil {
			d.channels[ch.Name()] = ch
		}
	}
}

// WithStore replaces the default in-memory store.
func WithStore(s Store) Option {
	return func(d *Dispatcher) {
		if s != nil {
			d.store = s
		}
	}
}

// WithPresence enables the realtime channel in cascades for online recipients.
func WithPresence(p Presence) Option {
	return func(d *Dispatcher) { d.presence = p }
}

func WithTemplates(t *Templates) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.templates = t
		}
	}
}

func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithChannelTimeout bounds a single channel attempt.
func WithChannelTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// WithBackgroundTimeout bounds a whole dispatch started with Go.
func WithBackgroundTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.background = t
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// NewDispatcher creates a dispatcher resolving recipients through directory.
func NewDispatcher(directory community.IdentityDirectory, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		directory:  directory,
		store:      NewMemoryStore(DefaultCapacity),
		templates:  DefaultTemplates(),
		channels:   make(map[ChannelName]Channel),
		timeout:    10 * time.Second,
		background: 30 * time.Second,
		now:        time.Now,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.group = async.NewGroup(func(err error) {
		d.log.LogAttrs(context.Background(), slog.LevelError, "background dispatch failed",
			logger.Component("notifications"),
			logger.Error(err),
		)
	})
	return d
}

// Store exposes the notification store.
func (d *Dispatcher) Store() Store { return d.store }

// Channels lists the registered channel names in cascade order.
func (d *Dispatcher) Channels() []ChannelName {
	out := make([]ChannelName, 0, len(d.channels))
	for _, name := range CascadeOrder {
		if _, ok := d.channels[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

func (r Request) validate() error {
	var problems []string
	if strings.TrimSpace(r.UserID) == "" {
		problems = append(problems, "userId is required")
	}
	if r.Kind != "" && !r.Kind.Valid() {
		problems = append(problems, fmt.Sprintf("unknown type %q", r.Kind))
	}
	if strings.TrimSpace(r.Title) == "" && strings.TrimSpace(r.Message) == "" && len(r.Payload) == 0 {
		problems = append(problems, "title, message or data is required")
	}
	switch r.Mode {
	case "", ModeCascade, ModeAll:
	default:
		problems = append(problems, fmt.Sprintf("unknown mode %q", r.Mode))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(problems, "; "))
	}
	return nil
}

// Send dispatches req synchronously. Channel failures are reported in the
// returned notification's Deliveries and never as an error. An error is
// returned only for an invalid request or an unresolvable recipient.
func (d *Dispatcher) Send(ctx context.Context, req Request) (Notification, error) {
	if err := req.validate(); err != nil {
		return Notification{}, err
	}
	if req.Kind == "" {
		req.Kind = community.KindSystem
	}
	if req.Mode == "" {
		req.Mode = ModeCascade
	}

	if d.directory == nil {
		return Notification{}, fmt.Errorf("%w: identity directory is not configured", ErrFatalConfiguration)
	}
	identity, err := d.directory.Identity(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, community.ErrNotFound) {
			return Notification{}, fmt.Errorf("%w: recipient %q: %w", ErrFatalConfiguration, req.UserID, err)
		}
		return Notification{}, errors.Join(ErrRecipientLookup, err)
	}

	n := Notification{
		ID:          uuid.NewString(),
		RecipientID: req.UserID,
		Kind:        req.Kind,
		Title:       req.Title,
		Message:     req.Message,
		Payload:     req.Payload,
		CreatedAt:   d.now(),
		Deliveries:  []ChannelResult{},
	}

	switch {
	case !identity.Allows(req.Kind):
		n.Suppressed = true
	case req.Mode == ModeAll:
		n.Deliveries = d.all(ctx, identity, req, n)
	default:
		n.Deliveries = d.cascade(ctx, identity, req, n)
	}

	evicted, err := d.store.Push(ctx, n)
	if err != nil {
		d.log.LogAttrs(ctx, slog.LevelWarn, "failed to store notification",
			logger.NotificationID(n.ID),
			logger.UserID(n.RecipientID),
			logger.Error(err),
		)
	}
	if evicted > 0 && d.observer != nil {
		d.observer.StoreEvicted(evicted)
	}

	d.log.LogAttrs(ctx, slog.LevelInfo, "notification dispatched",
		logger.NotificationID(n.ID),
		logger.UserID(n.RecipientID),
		slog.String("kind", string(n.Kind)),
		slog.String("mode", string(req.Mode)),
		slog.Bool("delivered", n.Delivered()),
		slog.Bool("suppressed", n.Suppressed),
		logger.Count(len(n.Deliveries)),
	)
	return n, nil
}

// Go runs Send in the background. The dispatch outlives ctx cancellation
// but keeps its values; failures are logged by the dispatcher's group.
func (d *Dispatcher) Go(ctx context.Context, req Request) *async.Future[Notification] {
	bg := context.WithoutCancel(ctx)
	return async.Go(d.group, bg, func(ctx context.Context) (Notification, error) {
		ctx, cancel := context.WithTimeout(ctx, d.background)
		defer cancel()
		return d.Send(ctx, req)
	})
}

// Wait blocks until background dispatches finish or ctx ends. New
// background dispatches are rejected afterwards.
func (d *Dispatcher) Wait(ctx context.Context) error {
	return d.group.Wait(ctx)
}

// address resolves where channel should deliver for identity. An empty
// string means the recipient cannot be reached on it.
func (d *Dispatcher) address(channel ChannelName, id community.Identity) string {
	switch channel {
	case ChannelRealtime:
		if d.presence != nil && d.presence.IsOnline(id.UserID) {
			return id.UserID
		}
	case ChannelPush:
		return id.Addresses.PushToken
	case ChannelEmail:
		return id.Addresses.Email
	case ChannelSMS:
		return id.Addresses.Phone
	}
	return ""
}

func (d *Dispatcher) cascade(ctx context.Context, id community.Identity, req Request, n Notification) []ChannelResult {
	order := CascadeOrder
	if len(req.Channels) > 0 {
		order = slices.DeleteFunc(slices.Clone(CascadeOrder), func(c ChannelName) bool {
			return !slices.Contains(req.Channels, c)
		})
	}

	results := []ChannelResult{}
	for _, name := range order {
		ch, ok := d.channels[name]
		if !ok {
			continue
		}
		addr := d.address(name, id)
		if addr == "" {
			continue
		}
		res := d.attempt(ctx, ch, addr, id, n)
		results = append(results, res)
		if res.Success {
			break
		}
	}
	return results
}

func (d *Dispatcher) all(ctx context.Context, id community.Identity, req Request, n Notification) []ChannelResult {
	names := req.Channels
	if len(names) == 0 {
		names = d.Channels()
	}
	names = lo.Uniq(names)

	results := make([]ChannelResult, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		ch, ok := d.channels[name]
		if !ok {
			results[i] = d.failed(name, ErrUnknownChannel)
			continue
		}
		addr := d.address(name, id)
		if addr == "" {
			err := ErrNoAddress
			if name == ChannelRealtime {
				err = ErrRecipientOffline
			}
			results[i] = d.failed(name, err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = d.attempt(ctx, ch, addr, id, n)
		}()
	}
	wg.Wait()
	return results
}

func (d *Dispatcher) failed(name ChannelName, err error) ChannelResult {
	if d.observer != nil {
		d.observer.ChannelAttempt(name, false, 0)
	}
	return ChannelResult{Channel: name, Error: err.Error(), Err: err, At: d.now()}
}

func (d *Dispatcher) attempt(ctx context.Context, ch Channel, addr string, id community.Identity, n Notification) ChannelResult {
	name := ch.Name()
	res := ChannelResult{Channel: name, At: d.now()}

	title, body, err := d.templates.Render(n.Kind, name, TemplateData{
		Title:     n.Title,
		Message:   n.Message,
		Kind:      n.Kind,
		Recipient: id.DisplayName,
		Data:      n.Payload,
	})
	if err != nil {
		res.Err, res.Error = err, err.Error()
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	err = ch.Deliver(ctx, addr, Rendered{
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		Kind:           n.Kind,
		Title:          title,
		Body:           body,
		Data:           n.Payload,
		CreatedAt:      n.CreatedAt,
	})
	took := time.Since(start)

	if d.observer != nil {
		d.observer.ChannelAttempt(name, err == nil, took)
	}
	if err != nil {
		if !errors.Is(err, ErrChannelFailed) {
			err = channelErr(name, err)
		}
		res.Err, res.Error = err, err.Error()
		d.log.LogAttrs(ctx, slog.LevelWarn, "channel delivery failed",
			logger.NotificationID(n.ID),
			logger.UserID(n.RecipientID),
			logger.Channel(string(name)),
			logger.Duration(took),
			logger.Error(err),
		)
		return res
	}
	res.Success = true
	return res
}
