package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Tyrowin/minichat/internal/room"
)

func TestBridgeSubmitPostsAttachment(t *testing.T) {
	hub := room.NewHub(room.DefaultOptions(), zap.NewNop())
	_, err := hub.Connect("a")
	require.NoError(t, err)
	_, err = hub.Join("a", "alice")
	require.NoError(t, err)

	bridge := NewBridge(hub, zap.NewNop())

	img, err := bridge.Submit(Descriptor{
		SenderID:     "a",
		StoredRef:    "/uploads/1.png",
		MediaKind:    room.MediaImage,
		OriginalName: "cat.png",
		SizeBytes:    2048,
	})
	require.NoError(t, err)
	assert.Equal(t, room.KindImage, img.Kind)
	assert.Equal(t, "alice", img.Sender)
	assert.Equal(t, "cat.png", img.Name)

	file, err := bridge.Submit(Descriptor{
		SenderID:  "a",
		StoredRef: "/uploads/2.pdf",
		MediaKind: room.MediaFile,
	})
	require.NoError(t, err)
	assert.Equal(t, room.KindFile, file.Kind)

	hist := hub.History()
	require.Len(t, hist, 2)
	assert.Equal(t, "/uploads/1.png", hist[0].FileRef)
	assert.Equal(t, room.MediaFile, hist[1].MediaKind)
}

func TestBridgeSubmitRequiresJoin(t *testing.T) {
	hub := room.NewHub(room.DefaultOptions(), zap.NewNop())
	bridge := NewBridge(hub, nil)

	_, err := bridge.Submit(Descriptor{SenderID: "ghost", StoredRef: "/uploads/1.png", MediaKind: room.MediaImage})
	assert.ErrorIs(t, err, room.ErrNotJoined)
	assert.Empty(t, hub.History())
}
