// Chat ⇄ Completions adapter, spec.md §4.5.5.
package translator

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// CompletionsPromptToChatMessage wraps a Completions "prompt" field
// into a single user Chat message, per spec.md §6's /v1/completions
// handling ("wrap prompt into a single user Chat message").
func CompletionsPromptToChatMessage(completionsJSON []byte) []byte {
	root := gjson.ParseBytes(completionsJSON)
	out := `{}`
	out, _ = sjson.Set(out, "model", root.Get("model").String())
	if root.Get("stream").Exists() {
		out, _ = sjson.Set(out, "stream", root.Get("stream").Bool())
	}
	out, _ = sjson.Set(out, "messages.0.role", "user")
	out, _ = sjson.Set(out, "messages.0.content", root.Get("prompt").String())
	return []byte(out)
}

// ChatCompletionToTextCompletion converts a non-streaming chat.completion
// object into a text_completion object.
func ChatCompletionToTextCompletion(chatCompletionJSON []byte) []byte {
	root := gjson.ParseBytes(chatCompletionJSON)
	out := `{}`
	out, _ = sjson.Set(out, "id", root.Get("id").String())
	out, _ = sjson.Set(out, "object", "text_completion")
	out, _ = sjson.Set(out, "created", root.Get("created").Int())
	out, _ = sjson.Set(out, "model", root.Get("model").String())
	out, _ = sjson.Set(out, "choices.0.index", 0)
	out, _ = sjson.Set(out, "choices.0.text", root.Get("choices.0.message.content").String())
	finish := root.Get("choices.0.finish_reason")
	if finish.Exists() {
		out, _ = sjson.Set(out, "choices.0.finish_reason", finish.String())
	} else {
		out, _ = sjson.SetRaw(out, "choices.0.finish_reason", "null")
	}
	out, _ = sjson.SetRaw(out, "choices.0.logprobs", "null")
	if u := root.Get("usage"); u.Exists() {
		out, _ = sjson.SetRaw(out, "usage", u.Raw)
	}
	return []byte(out)
}

// ChatChunkToCompletionsChunk maps one chat.completion.chunk SSE
// payload to its text_completion streaming equivalent: delta.content
// becomes text, finish_reason passes through.
func ChatChunkToCompletionsChunk(chatChunkJSON []byte) []byte {
	root := gjson.ParseBytes(chatChunkJSON)
	out := `{}`
	out, _ = sjson.Set(out, "id", root.Get("id").String())
	out, _ = sjson.Set(out, "object", "text_completion")
	out, _ = sjson.Set(out, "created", root.Get("created").Int())
	out, _ = sjson.Set(out, "model", root.Get("model").String())
	out, _ = sjson.Set(out, "choices.0.index", 0)
	out, _ = sjson.Set(out, "choices.0.text", root.Get("choices.0.delta.content").String())
	if fr := root.Get("choices.0.finish_reason"); fr.Exists() {
		out, _ = sjson.Set(out, "choices.0.finish_reason", fr.String())
	}
	return []byte(out)
}
