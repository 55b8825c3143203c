package render

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anotherai/gateway/runtime/blob"
	"github.com/anotherai/gateway/runtime/model"
)

func TestFileRefResolver_ResolvesDataURIToImagePart(t *testing.T) {
	store, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	resolver := NewFileRefResolver(store)

	payload := base64.StdEncoding.EncodeToString([]byte("fake png bytes"))
	msg := textMessage(model.ConversationRoleUser, "data:image/png;base64,"+payload)

	out, err := resolver.Resolve(context.Background(), []*model.Message{msg})
	require.NoError(t, err)

	img, ok := out[0].Parts[0].(model.ImagePart)
	require.True(t, ok)
	require.Equal(t, model.ImageFormatPNG, img.Format)
	require.Equal(t, []byte("fake png bytes"), img.Bytes)
}

func TestFileRefResolver_LeavesPlainTextUntouched(t *testing.T) {
	store, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	resolver := NewFileRefResolver(store)

	msg := textMessage(model.ConversationRoleUser, "just some rendered prose, not a file ref")
	out, err := resolver.Resolve(context.Background(), []*model.Message{msg})
	require.NoError(t, err)

	text, ok := out[0].Parts[0].(model.TextPart)
	require.True(t, ok)
	require.Equal(t, msg.Parts[0].(model.TextPart).Text, text.Text)
}

func TestFileRefResolver_RejectsMalformedDataURI(t *testing.T) {
	store, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	resolver := NewFileRefResolver(store)

	msg := textMessage(model.ConversationRoleUser, "data:image/png;base64,not-valid-base64!!")
	_, err = resolver.Resolve(context.Background(), []*model.Message{msg})
	require.Error(t, err)
}
