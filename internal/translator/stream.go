// Responses → Chat (streaming), spec.md §4.5.4. Grounded on the
// teacher's ConvertCodexResponseToOpenAI in
// internal/translator/codex/openai/chat-completions/codex_openai_response.go,
// which threads a small per-call param struct across repeated calls,
// one per SSE event line, and returns zero or more emitted chunk
// strings per call.
package translator

import (
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// StreamState is the small per-stream record spec.md §9 requires:
// fnIdx (last tool-call index emitted, -1 meaning none yet) plus
// stream identity metadata captured from the first seen event. It
// must not be promoted to shared state across streams.
type StreamState struct {
	FnIdx     int
	ID        string
	Model     string
	CreatedAt int64
	Reverse   map[string]string
	inited    bool
}

func NewStreamState(reverse map[string]string) *StreamState {
	return &StreamState{FnIdx: -1, Reverse: reverse}
}

// HandleEvent processes one Responses SSE event's JSON payload and
// returns zero or more re-framed Chat SSE "data: ...\n\n" records to
// emit downstream, in order.
func (st *StreamState) HandleEvent(eventJSON []byte) []string {
	evt := gjson.ParseBytes(eventJSON)
	typ := evt.Get("type").String()

	if !st.inited {
		if resp := evt.Get("response"); resp.Exists() {
			st.ID = resp.Get("id").String()
			st.Model = resp.Get("model").String()
			st.CreatedAt = resp.Get("created_at").Int()
		}
		if st.CreatedAt == 0 {
			st.CreatedAt = time.Now().Unix()
		}
		st.inited = true
	}

	switch typ {
	case "response.reasoning_summary_text.delta":
		return []string{st.chunk(func(out string) string {
			out, _ = sjson.Set(out, "choices.0.delta.reasoning_content", evt.Get("delta").String())
			return out
		})}
	case "response.reasoning_summary_text.done":
		return []string{st.chunk(func(out string) string {
			out, _ = sjson.Set(out, "choices.0.delta.reasoning_content", "\n\n")
			return out
		})}
	case "response.output_text.delta":
		return []string{st.chunk(func(out string) string {
			out, _ = sjson.Set(out, "choices.0.delta.content", evt.Get("delta").String())
			return out
		})}
	case "response.output_item.done":
		item := evt.Get("item")
		if item.Get("type").String() != "function_call" {
			return nil
		}
		st.FnIdx++
		name := item.Get("name").String()
		if long, ok := st.Reverse[name]; ok {
			name = long
		}
		return []string{st.chunk(func(out string) string {
			base := "choices.0.delta.tool_calls.0"
			out, _ = sjson.Set(out, base+".index", st.FnIdx)
			out, _ = sjson.Set(out, base+".id", item.Get("call_id").String())
			out, _ = sjson.Set(out, base+".type", "function")
			out, _ = sjson.Set(out, base+".function.name", name)
			out, _ = sjson.Set(out, base+".function.arguments", item.Get("arguments").String())
			return out
		})}
	case "response.completed":
		finish := "stop"
		if st.FnIdx >= 0 {
			finish = "tool_calls"
		}
		return []string{st.chunk(func(out string) string {
			out, _ = sjson.Set(out, "choices.0.delta", map[string]any{})
			out, _ = sjson.Set(out, "choices.0.finish_reason", finish)
			out, _ = sjson.Set(out, "choices.0.native_finish_reason", finish)
			return out
		})}
	default:
		return nil
	}
}

func (st *StreamState) chunk(mutate func(out string) string) string {
	out := `{}`
	out, _ = sjson.Set(out, "id", st.ID)
	out, _ = sjson.Set(out, "object", "chat.completion.chunk")
	out, _ = sjson.Set(out, "created", st.CreatedAt)
	out, _ = sjson.Set(out, "model", st.Model)
	out, _ = sjson.Set(out, "choices.0.index", 0)
	out = mutate(out)
	return "data: " + out + "\n\n"
}
