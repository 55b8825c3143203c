package google

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/require"

	"github.com/anotherai/gateway/runtime/model"
)

func TestSanitizeToolName_PreservesNamespace(t *testing.T) {
	require.Equal(t, "atlas_read_get_time_series", SanitizeToolName("atlas.read.get_time_series"))
}

func TestSanitizeToolName_LeadingDigitGetsPrefixed(t *testing.T) {
	got := SanitizeToolName("123tool")
	require.Equal(t, "_123tool", got)
}

func TestSanitizeToolName_TruncatesWithStableSuffix(t *testing.T) {
	in := "atlas.read.chat." + stringsRepeat("segment_", 12) + "tool"
	got := SanitizeToolName(in)
	require.LessOrEqual(t, len(got), 64)
	require.Equal(t, got, SanitizeToolName(in))
}

func stringsRepeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}

func TestToGenaiSchema_ConvertsObjectWithProperties(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"location": map[string]any{"type": "string", "description": "City name"},
			"count":    map[string]any{"type": "integer"},
		},
		"required": []any{"location"},
	}
	out, err := toGenaiSchema(schema)
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Len(t, out.Properties, 2)
	require.Contains(t, out.Required, "location")
	require.Equal(t, "City name", out.Properties["location"].Description)
}

func TestEncodeMessages_SplitsHistoryAndFinalTurn(t *testing.T) {
	msgs := []*model.Message{
		{Role: model.ConversationRoleSystem, Parts: []model.Part{model.TextPart{Text: "be nice"}}},
		{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: "hello"}}},
		{Role: model.ConversationRoleAssistant, Parts: []model.Part{model.TextPart{Text: "hi"}}},
		{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: "how are you"}}},
	}
	history, turn, err := encodeMessages(msgs, nil)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Len(t, turn, 1)
}

func TestEncodeMessages_FailsOnUnknownToolUse(t *testing.T) {
	msgs := []*model.Message{
		{
			Role: model.ConversationRoleAssistant,
			Parts: []model.Part{
				model.ToolUsePart{ID: "t1", Name: "unknown_tool", Input: map[string]any{}},
			},
		},
		{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: "ok"}}},
	}
	_, _, err := encodeMessages(msgs, map[string]string{})
	require.Error(t, err)
}

func TestIsRateLimited_DetectsQuotaErrors(t *testing.T) {
	require.True(t, isRateLimited(errQuota{}))
	require.False(t, isRateLimited(nil))
}

type errQuota struct{}

func (errQuota) Error() string { return "rpc error: code = ResourceExhausted desc = quota exceeded" }

func TestNew_RequiresClientAndModel(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)

	_, err = New(Options{Client: fakeGenerativeClient{}})
	require.Error(t, err)

	c, err := New(Options{Client: fakeGenerativeClient{}, DefaultModel: "gemini-2.5-flash"})
	require.NoError(t, err)
	require.Equal(t, "gemini-2.5-flash", c.DefaultModel())
}

type fakeGenerativeClient struct{}

func (fakeGenerativeClient) GenerativeModel(name string) *genai.GenerativeModel {
	return nil
}
