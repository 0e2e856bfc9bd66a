package models

// Wire keys shared by the canonical and legacy message schemas. The legacy
// ("TAK") keys are retained on converted documents for back-compat reads.
const (
	DBIDKey                = "_id"
	NameKey                = "name"
	MessagesIDKey          = "messagesId"
	CollectionIDKey        = "collectionId"
	CreatedByKey           = "createdBy"
	CreatedOnKey           = "createdOn"
	IsGeneratedKey         = "isGenerated"
	IsPrivateKey           = "isPrivate"
	RoomIDKey              = "roomId"
	TextKey                = "text"
	UserIDKey              = "userId"
	LargeImageTokenKey     = "largeImageToken"
	ThumbnailImageTokenKey = "thumbnailImageToken"
	ArchivedMessageKey     = "archivedMessage"
	IsArchivedKey          = "isArchived"
	HasBeenConvertedKey    = "hasBeenConverted"
	SubscriptionsKey       = "subscriptions"
	MentionsKey            = "mentions"
	FirstNameKey           = "firstName"
	LastNameKey            = "lastName"

	// Legacy message schema.
	AuthorCsKey   = "authorCs"
	AuthorIDKey   = "authorId"
	AuthorLocKey  = "authorLoc"
	AuthorTypeKey = "authorType"
	MsgKey        = "msg"
	ParentKey     = "parent"
	PksKey        = "pks"
	RoomKey       = "room"
	SchVerKey     = "schver"
	TakUIDKey     = "takUid"
	TimeMsKey     = "timeMs"
)

// Well-known collections and room identifiers.
const (
	PublicRoomsCollectionID    = "rooms"
	PublicMessagesCollectionID = "messages"
	PrivateRoomsCollectionID   = "privateRooms"
	DefaultUsersCollectionID   = "users"

	DefaultPublicRoomID   = "public"
	DefaultPublicRoomName = "Public Room"
)

// Placeholder values.
const (
	UnknownUserID       = "unknownUserId"
	UnknownUserName     = "[unknown]"
	NoNameUser          = "[no name]"
	DeletedTextMessage  = "[text deleted by sender]"
	DeletedImageMessage = "[image deleted by sender]"
)
