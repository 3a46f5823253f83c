// Package activitymap converts auth activity events into a transport
// agnostic shape for downstream systems (activity feeds, SIEM pipelines,
// analytics brokers).
package activitymap

import (
	"context"
	"strings"
	"time"

	authcore "github.com/kesslerlabs/go-authcore"
)

const (
	// MetadataKeyActorType stores the actor type derived from authcore.ActorRef.Type.
	MetadataKeyActorType = "actor_type"
	// MetadataKeyKind names the metadata entry carrying a classified failure
	// kind. Normalization promotes it to the top-level Kind field.
	MetadataKeyKind = "kind"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = "user"
	defaultActorID    = "system"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
// Kind carries the classified failure kind on failure verbs, empty otherwise.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	Kind       string         `json:"kind,omitempty"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel          string
	objectType       string
	actorFallback    string
	objectIDResolver func(authcore.ActivityEvent) string
}

// WithDefaultChannel sets the channel stamped on normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the object type stamped on normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithObjectIDResolver overrides object-id extraction from ActivityEvent.
func WithObjectIDResolver(resolver func(authcore.ActivityEvent) string) Option {
	return func(opts *normalizeOptions) {
		opts.objectIDResolver = resolver
	}
}

// WithActorFallback sets the final actor-id fallback when actor/user ids are empty.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// Normalize converts an authcore.ActivityEvent into a generic normalized shape.
func Normalize(event authcore.ActivityEvent, opts ...Option) Normalized {
	options := normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	out := Normalized{
		Verb:       string(event.EventType),
		ObjectType: strings.TrimSpace(options.objectType),
		Channel:    strings.TrimSpace(options.channel),
		OccurredAt: event.OccurredAt,
	}
	if out.OccurredAt.IsZero() {
		out.OccurredAt = time.Now().UTC()
	}

	out.ActorID = strings.TrimSpace(event.Actor.ID)
	if out.ActorID == "" {
		out.ActorID = strings.TrimSpace(event.UserID)
	}
	if out.ActorID == "" {
		out.ActorID = strings.TrimSpace(options.actorFallback)
	}

	if options.objectIDResolver != nil {
		out.ObjectID = strings.TrimSpace(options.objectIDResolver(event))
	} else {
		out.ObjectID = strings.TrimSpace(event.UserID)
	}

	out.Kind, out.Metadata = splitMetadata(event)
	return out
}

// splitMetadata copies the event metadata without mutating the source,
// promoting the classified kind out of the map and folding the actor type in.
func splitMetadata(event authcore.ActivityEvent) (string, map[string]any) {
	var kind string
	var metadata map[string]any

	for key, value := range event.Metadata {
		if key == MetadataKeyKind {
			if s, ok := value.(string); ok {
				kind = s
				continue
			}
		}
		if metadata == nil {
			metadata = make(map[string]any, len(event.Metadata))
		}
		metadata[key] = value
	}

	actorType := strings.TrimSpace(event.Actor.Type)
	if actorType == "" {
		return kind, metadata
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	if _, exists := metadata[MetadataKeyActorType]; !exists {
		metadata[MetadataKeyActorType] = actorType
	}
	return kind, metadata
}

// Sink adapts a consumer of normalized records into an authcore.ActivitySink.
func Sink(consume func(Normalized) error, opts ...Option) authcore.ActivitySink {
	return authcore.ActivitySinkFunc(func(_ context.Context, event authcore.ActivityEvent) error {
		if consume == nil {
			return nil
		}
		return consume(Normalize(event, opts...))
	})
}
