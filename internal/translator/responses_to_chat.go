// Responses → Chat (non-streaming), spec.md §4.5.3. Grounded on the
// teacher's ConvertCodexResponseToOpenAINonStream in
// internal/translator/codex/openai/chat-completions/codex_openai_response.go,
// which scans a captured SSE blob for the response.completed line and
// walks its response.output array.
package translator

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ResponsesToChatNonStream scans sseBlob for the single response.completed
// event and composes a chat.completion object from it, de-shortening
// tool-call names via reverse (short -> long, as produced by ShortenNames).
func ResponsesToChatNonStream(sseBlob []byte, reverse map[string]string) []byte {
	completed := findEvent(sseBlob, "response.completed")
	if !completed.Exists() {
		out, _ := sjson.Set(`{}`, "error", "invalid_upstream_response")
		return []byte(out)
	}
	resp := completed.Get("response")

	out := `{}`
	out, _ = sjson.Set(out, "id", resp.Get("id").String())
	out, _ = sjson.Set(out, "created", resp.Get("created_at").Int())
	out, _ = sjson.Set(out, "model", resp.Get("model").String())
	out, _ = sjson.Set(out, "object", "chat.completion")

	out, _ = sjson.Set(out, "usage.prompt_tokens", resp.Get("usage.input_tokens").Int())
	out, _ = sjson.Set(out, "usage.completion_tokens", resp.Get("usage.output_tokens").Int())
	out, _ = sjson.Set(out, "usage.total_tokens", resp.Get("usage.total_tokens").Int())
	out, _ = sjson.Set(out, "usage.completion_tokens_details.reasoning_tokens",
		resp.Get("usage.output_tokens_details.reasoning_tokens").Int())

	var content, reasoning strings.Builder
	toolCallIdx := 0
	hasToolCalls := false

	resp.Get("output").ForEach(func(_, item gjson.Result) bool {
		switch item.Get("type").String() {
		case "reasoning":
			if s := item.Get("summary_text"); s.Exists() {
				reasoning.WriteString(s.String())
			}
		case "message":
			item.Get("content").ForEach(func(_, part gjson.Result) bool {
				if part.Get("type").String() == "output_text" {
					content.WriteString(part.Get("text").String())
					return false
				}
				return true
			})
		case "function_call":
			name := item.Get("name").String()
			if long, ok := reverse[name]; ok {
				name = long
			}
			base := "choices.0.message.tool_calls." + strconv.Itoa(toolCallIdx)
			out, _ = sjson.Set(out, base+".id", item.Get("call_id").String())
			out, _ = sjson.Set(out, base+".type", "function")
			out, _ = sjson.Set(out, base+".function.name", name)
			out, _ = sjson.Set(out, base+".function.arguments", item.Get("arguments").String())
			toolCallIdx++
			hasToolCalls = true
		}
		return true
	})

	out, _ = sjson.Set(out, "choices.0.index", 0)
	out, _ = sjson.Set(out, "choices.0.message.role", "assistant")
	out, _ = sjson.Set(out, "choices.0.message.content", content.String())
	if reasoning.Len() > 0 {
		out, _ = sjson.Set(out, "choices.0.message.reasoning_content", reasoning.String())
	}

	finish := "stop"
	if hasToolCalls {
		finish = "tool_calls"
	}
	out, _ = sjson.Set(out, "choices.0.finish_reason", finish)
	out, _ = sjson.Set(out, "choices.0.native_finish_reason", finish)

	return []byte(out)
}

// findEvent scans an SSE blob line by line for a "data: " record whose
// JSON payload has the given type, returning its parsed result.
func findEvent(sseBlob []byte, eventType string) gjson.Result {
	for _, line := range splitSSELines(sseBlob) {
		payload, ok := sseDataPayload(line)
		if !ok {
			continue
		}
		parsed := gjson.ParseBytes(payload)
		if parsed.Get("type").String() == eventType {
			return parsed
		}
	}
	return gjson.Result{}
}

func splitSSELines(blob []byte) []string {
	return strings.Split(string(blob), "\n")
}

func sseDataPayload(line string) ([]byte, bool) {
	line = strings.TrimRight(line, "\r")
	const prefix = "data: "
	if !strings.HasPrefix(line, prefix) {
		return nil, false
	}
	data := strings.TrimPrefix(line, prefix)
	if data == "" || data == "[DONE]" {
		return nil, false
	}
	return []byte(data), true
}

