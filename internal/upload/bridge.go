package upload

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Tyrowin/minichat/internal/room"
)

// Poster is the part of the hub the bridge needs.
type Poster interface {
	Post(id string, m room.Message) (room.Message, error)
}

// Descriptor is an accepted upload as handed over by the store's caller.
type Descriptor struct {
	SenderID     string
	StoredRef    string
	MediaKind    room.MediaKind
	OriginalName string
	SizeBytes    int64
}

// Bridge posts accepted uploads into the room as image or file messages. Size and
// type checks have already happened by the time a descriptor arrives.
type Bridge struct {
	hub    Poster
	logger *zap.Logger
}

// NewBridge creates a bridge posting to hub.
func NewBridge(hub Poster, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{hub: hub, logger: logger.Named("bridge")}
}

// Submit builds the message for d and posts it as d.SenderID.
func (b *Bridge) Submit(d Descriptor) (room.Message, error) {
	msg := room.NewAttachment(d.MediaKind, d.StoredRef, d.OriginalName)
	posted, err := b.hub.Post(d.SenderID, msg)
	if err != nil {
		return room.Message{}, fmt.Errorf("post upload %s: %w", d.StoredRef, err)
	}
	b.logger.Debug("upload posted",
		zap.String("conn", d.SenderID),
		zap.String("ref", d.StoredRef),
		zap.Int64("size", d.SizeBytes))
	return posted, nil
}
