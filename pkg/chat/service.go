// Package chat is the session layer between the UI and the document store:
// it owns the room registry, the per-room subscription lifecycle, the
// archive coordinator, message normalization, and the session user.
package chat

import (
	"context"
	"sync"
	"time"

	"meshchat/pkg/attachments"
	"meshchat/pkg/feed"
	"meshchat/pkg/localstore"
	"meshchat/pkg/logger"
	"meshchat/pkg/models"
	"meshchat/pkg/store"
)

// Options configures a Service.
type Options struct {
	// UsersCollection is the replicated collection holding ChatUser docs.
	UsersCollection string
	// RetentionDays bounds the message feed window.
	RetentionDays int
	// DefaultRoomName names the bootstrap public room.
	DefaultRoomName string
	// AcceptLargeImages enables the large-image leg of image messages.
	AcceptLargeImages bool
}

func (o *Options) withDefaults() {
	if o.UsersCollection == "" {
		o.UsersCollection = models.DefaultUsersCollectionID
	}
	if o.RetentionDays <= 0 {
		o.RetentionDays = 30
	}
	if o.DefaultRoomName == "" {
		o.DefaultRoomName = models.DefaultPublicRoomName
	}
}

// Service is one chat session. It is constructed explicitly with its
// dependencies and owns every subscription handle it registers; Close is
// the single teardown point.
type Service struct {
	opts        Options
	local       *localstore.Store
	attachments *attachments.Store

	mu          sync.Mutex
	messageSubs map[string]*store.Subscription
	roomSubs    map[string]*store.Subscription
	usersSub    *store.Subscription
	loggedOut   bool
	// archiving holds room ids whose archive is in flight but whose marker
	// has not landed yet; the registry must not resubscribe them.
	archiving map[string]struct{}

	publicObs  *store.Observer
	privateObs *store.Observer
	usersObs   *store.Observer

	visibleFeed *feed.Feed[[]models.Room]
	usersFeed   *feed.Feed[[]models.ChatUser]
	currentFeed *feed.Feed[*models.ChatUser]

	// attachCtx bounds in-flight attachment operations; Logout cancels it.
	attachMu     sync.Mutex
	attachCtx    context.Context
	attachCancel context.CancelFunc

	done chan struct{}
	wg   sync.WaitGroup
}

// New builds the session layer over an opened document store. It bootstraps
// the default public room, registers the users subscription, and starts the
// room registry loop.
func New(opts Options, local *localstore.Store, attach *attachments.Store) *Service {
	opts.withDefaults()
	// a persisted device preference wins over the configured default
	if local.AcceptLargeImages() {
		opts.AcceptLargeImages = true
	}
	s := &Service{
		opts:        opts,
		local:       local,
		attachments: attach,
		messageSubs: map[string]*store.Subscription{},
		roomSubs:    map[string]*store.Subscription{},
		archiving:   map[string]struct{}{},
		visibleFeed: feed.New[[]models.Room](),
		usersFeed:   feed.New[[]models.ChatUser](),
		currentFeed: feed.New[*models.ChatUser](),
		done:        make(chan struct{}),
	}
	s.resetAttachContext()

	s.usersSub = store.Subscribe(opts.UsersCollection, nil)
	s.bootstrapDefaultRoom()

	s.publicObs = store.Observe(models.PublicRoomsCollectionID, nil, nil)
	s.privateObs = store.Observe(models.PrivateRoomsCollectionID, nil, nil)
	s.usersObs = store.Observe(opts.UsersCollection, nil, byUserID)

	s.wg.Add(1)
	go s.registryLoop()
	return s
}

// bootstrapDefaultRoom creates the well-known public room on first launch.
// The ignore policy keeps a replicated copy's createdOn intact.
func (s *Service) bootstrapDefaultRoom() {
	room := models.Room{
		ID:          models.DefaultPublicRoomID,
		Name:        s.opts.DefaultRoomName,
		MessagesID:  models.PublicMessagesCollectionID,
		CreatedBy:   models.UnknownUserID,
		CreatedOn:   time.Now().UTC(),
		IsGenerated: true,
	}
	if err := store.Upsert(models.PublicRoomsCollectionID, room.ToDoc(), store.ConflictIgnore); err != nil {
		logger.Error("default_room_bootstrap_failed", "error", err)
	}
}

// registryLoop is the single owner of registry recomputation: every update
// of the room feeds or the archived set re-derives the visible list and
// reconciles subscriptions.
func (s *Service) registryLoop() {
	defer s.wg.Done()

	archCh, archCancel := s.local.ArchivedRoomsFeed().Subscribe()
	defer archCancel()
	userCh, userCancel := s.local.CurrentUserIDFeed().Subscribe()
	defer userCancel()

	var publicRooms, privateRooms []models.Room
	var users []models.ChatUser
	currentID := s.local.CurrentUserID()

	for {
		select {
		case <-s.done:
			return
		case docs := <-s.publicObs.C():
			publicRooms = decodeRooms(docs)
		case docs := <-s.privateObs.C():
			privateRooms = decodeRooms(docs)
		case docs := <-s.usersObs.C():
			users = decodeUsers(docs)
			s.usersFeed.Publish(users)
			s.publishCurrentUser(users, currentID)
			continue
		case id := <-userCh:
			currentID = id
			s.publishCurrentUser(users, currentID)
			continue
		case <-archCh:
		}
		s.reconcile(append(append([]models.Room{}, publicRooms...), privateRooms...))
	}
}

// reconcile recomputes the visible list, guarantees each visible room an
// active subscription and each archived room none, and publishes the result.
func (s *Service) reconcile(all []models.Room) {
	archived := s.local.ArchivedRoomIDs()
	visible := ComputeVisibleRooms(all, archived)

	s.mu.Lock()
	if !s.loggedOut {
		for _, room := range visible {
			s.addSubscriptionsLocked(room)
		}
	}
	for id := range archived {
		if _, ok := s.messageSubs[id]; ok {
			s.removeSubscriptionsLocked(models.Room{ID: id})
		}
	}
	s.mu.Unlock()

	s.visibleFeed.Publish(visible)
}

func (s *Service) publishCurrentUser(users []models.ChatUser, id string) {
	if id == "" {
		s.currentFeed.Publish(nil)
		return
	}
	for i := range users {
		if users[i].ID == id {
			u := users[i]
			s.currentFeed.Publish(&u)
			return
		}
	}
}

func (s *Service) resetAttachContext() {
	s.attachMu.Lock()
	defer s.attachMu.Unlock()
	s.attachCtx, s.attachCancel = context.WithCancel(context.Background())
}

// attachContext derives a context bounded by both the caller and the
// session, so Logout cancels in-flight attachment work.
func (s *Service) attachContext(ctx context.Context) (context.Context, context.CancelFunc) {
	s.attachMu.Lock()
	base := s.attachCtx
	s.attachMu.Unlock()
	merged, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(base, cancel)
	return merged, func() { stop(); cancel() }
}

// VisibleRooms streams the non-archived room list, newest first.
func (s *Service) VisibleRooms() *feed.Feed[[]models.Room] { return s.visibleFeed }

// ArchivedRooms streams the archived-room snapshots.
func (s *Service) ArchivedRooms() *feed.Feed[[]models.Room] {
	return s.local.ArchivedRoomsFeed()
}

// AllUsers streams every known chat user.
func (s *Service) AllUsers() *feed.Feed[[]models.ChatUser] { return s.usersFeed }

// CurrentUserFeed streams the session user; nil means logged out.
func (s *Service) CurrentUserFeed() *feed.Feed[*models.ChatUser] { return s.currentFeed }

// Close tears the session down: logout barrier, then observer shutdown.
func (s *Service) Close() {
	s.Logout()
	close(s.done)
	s.publicObs.Cancel()
	s.privateObs.Cancel()
	s.usersObs.Cancel()
	s.wg.Wait()
}

func decodeRooms(docs []models.Doc) []models.Room {
	out := make([]models.Room, 0, len(docs))
	for _, d := range docs {
		out = append(out, models.RoomFromDoc(d))
	}
	return out
}

func decodeUsers(docs []models.Doc) []models.ChatUser {
	out := make([]models.ChatUser, 0, len(docs))
	for _, d := range docs {
		out = append(out, models.UserFromDoc(d))
	}
	return out
}

func byUserID(a, b models.Doc) bool {
	as, _ := a[models.DBIDKey].(string)
	bs, _ := b[models.DBIDKey].(string)
	return as < bs
}
