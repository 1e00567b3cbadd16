package conversation

import (
	"testing"

	"github.com/chriscow/voice-agent-go/pkg/ai/llm"
	"github.com/matryer/is"
)

func TestTranscript_AppendOnce(t *testing.T) {
	is := is.New(t)

	tr := NewTranscript("be brief")
	is.True(tr.Append("a1", llm.RoleUser, "hello"))
	is.True(!tr.Append("a1", llm.RoleUser, "hello")) // redelivery ignored
	is.True(tr.Append("", llm.RoleAssistant, "hi"))
	is.True(tr.Append("", llm.RoleAssistant, "hi")) // fresh ids are distinct

	msgs := tr.Messages()
	is.Equal(len(msgs), 4)
	is.Equal(msgs[0], llm.Message{Role: llm.RoleSystem, Content: "be brief"})
	is.Equal(msgs[1].Content, "hello")
	is.Equal(tr.Entries()[1].ID, "a1")
}

func TestTranscript_MessagesIsCopy(t *testing.T) {
	is := is.New(t)

	tr := NewTranscript("")
	is.Equal(tr.Len(), 0)
	tr.Append("", llm.RoleUser, "one")

	msgs := tr.Messages()
	msgs[0].Content = "changed"
	is.Equal(tr.Messages()[0].Content, "one")
}
