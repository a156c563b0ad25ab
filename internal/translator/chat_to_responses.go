// Chat-Completions → Responses request translation, spec.md §4.5.2.
// Grounded on the teacher's
// internal/translator/codex/openai/responses/codex_openai-responses_request.go
// pattern of building the target payload as a JSON template string
// mutated in place with sjson.Set/SetRaw, rather than round-tripping
// through Go structs.
package translator

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var gpt5Variants = map[string]string{
	"gpt-5-minimal": "minimal",
	"gpt-5-low":     "low",
	"gpt-5-high":    "high",
	"gpt-5-medium":  "medium",
}

// ChatToResponses converts a Chat payload (raw JSON) into a Responses
// payload (raw JSON), returning the tool-name shortening map used so
// the caller can invert it later when translating the response back.
func ChatToResponses(chatJSON []byte) (responsesJSON []byte, shortToLong map[string]string, err error) {
	root := gjson.ParseBytes(chatJSON)

	out := `{}`

	model := root.Get("model").String()
	effort := root.Get("reasoning_effort").String()
	if effort == "" {
		effort = "low"
	}
	if mapped, ok := gpt5Variants[model]; ok {
		effort = mapped
		model = "gpt-5"
	}
	out, err = sjson.Set(out, "model", model)
	if err != nil {
		return nil, nil, err
	}
	out, err = sjson.Set(out, "reasoning.effort", effort)
	if err != nil {
		return nil, nil, err
	}
	out, err = sjson.Set(out, "reasoning.summary", "auto")
	if err != nil {
		return nil, nil, err
	}
	out, err = sjson.Set(out, "parallel_tool_calls", true)
	if err != nil {
		return nil, nil, err
	}
	out, err = sjson.Set(out, "include", []string{"reasoning.encrypted_content"})
	if err != nil {
		return nil, nil, err
	}

	// The upstream only emits the response.completed SSE record this
	// package scans for (internal/translator/responses_to_chat.go,
	// stream.go) when the Responses request itself asks to stream, per
	// the teacher's codex_openai-responses_request.go:19. This is
	// independent of whether the Chat caller asked to stream: a
	// non-streaming Chat client still gets an SSE blob from upstream,
	// buffered and translated into one JSON response by the caller
	// (see handleChatCompletions/handleCompletions).
	out, err = sjson.Set(out, "stream", true)
	if err != nil {
		return nil, nil, err
	}

	if rf := root.Get("response_format"); rf.Exists() {
		out, err = applyResponseFormat(out, root, rf)
		if err != nil {
			return nil, nil, err
		}
		out, err = sjson.Set(out, "store", true)
	} else {
		out, err = sjson.Set(out, "store", false)
	}
	if err != nil {
		return nil, nil, err
	}

	shortToLong = map[string]string{}
	if tools := root.Get("tools"); tools.IsArray() {
		names := functionToolNames(tools)
		fwd, rev := ShortenNames(names)
		shortToLong = rev
		out, err = buildToolsArray(out, tools, fwd)
		if err != nil {
			return nil, nil, err
		}
	}

	instructions := "You are a helpful assistant."
	if sys := firstSystemMessage(root); sys.Exists() {
		if s := messageTextContent(sys); s != "" {
			instructions = s
		}
	}
	out, err = sjson.Set(out, "instructions", instructions)
	if err != nil {
		return nil, nil, err
	}

	out, err = buildInputFromMessages(out, root.Get("messages"), shortToLongInverse(shortToLong))
	if err != nil {
		return nil, nil, err
	}

	return []byte(out), shortToLong, nil
}

func shortToLongInverse(shortToLong map[string]string) map[string]string {
	// Already short->long; ChatToResponses needs long->short while
	// emitting function_call items, so invert once for convenience.
	longToShort := make(map[string]string, len(shortToLong))
	for short, long := range shortToLong {
		longToShort[long] = short
	}
	return longToShort
}

func applyResponseFormat(out string, root gjson.Result, rf gjson.Result) (string, error) {
	var err error
	switch rf.Get("type").String() {
	case "text":
		out, err = sjson.Set(out, "text.format.type", "text")
	case "json_schema":
		js := rf.Get("json_schema")
		out, err = sjson.Set(out, "text.format.type", "json_schema")
		if err == nil {
			out, err = sjson.Set(out, "text.format.name", js.Get("name").String())
		}
		if err == nil {
			out, err = sjson.Set(out, "text.format.strict", js.Get("strict").Bool())
		}
		if err == nil && js.Get("schema").Exists() {
			out, err = sjson.SetRaw(out, "text.format.schema", js.Get("schema").Raw)
		}
	}
	if err == nil {
		if v := root.Get("text.verbosity"); v.Exists() {
			out, err = sjson.Set(out, "text.verbosity", v.String())
		}
	}
	return out, err
}

func functionToolNames(tools gjson.Result) []string {
	var names []string
	tools.ForEach(func(_, t gjson.Result) bool {
		if t.Get("type").String() == "function" {
			if n := t.Get("function.name").String(); n != "" {
				names = append(names, n)
			} else if n := t.Get("name").String(); n != "" {
				names = append(names, n)
			}
		}
		return true
	})
	return names
}

// buildToolsArray keeps only function-typed tools, shortens names, and
// emits {type:"function", name, description?, parameters?, strict?}.
// Non-function (built-in) tools are dropped, per the supplemental
// feature documented in SPEC_FULL.md.
func buildToolsArray(out string, tools gjson.Result, fwd map[string]string) (string, error) {
	var err error
	idx := 0
	tools.ForEach(func(_, t gjson.Result) bool {
		if t.Get("type").String() != "function" {
			return true
		}
		fn := t
		if t.Get("function").Exists() {
			fn = t.Get("function")
		}
		name := fn.Get("name").String()
		short, ok := fwd[name]
		if !ok {
			short = name
		}
		base := "tools." + strconv.Itoa(idx)
		out, err = sjson.Set(out, base+".type", "function")
		if err != nil {
			return false
		}
		out, err = sjson.Set(out, base+".name", short)
		if err != nil {
			return false
		}
		if d := fn.Get("description"); d.Exists() {
			out, err = sjson.Set(out, base+".description", d.String())
			if err != nil {
				return false
			}
		}
		if p := fn.Get("parameters"); p.Exists() {
			out, err = sjson.SetRaw(out, base+".parameters", p.Raw)
			if err != nil {
				return false
			}
		}
		if s := fn.Get("strict"); s.Exists() {
			out, err = sjson.Set(out, base+".strict", s.Bool())
			if err != nil {
				return false
			}
		}
		idx++
		return true
	})
	return out, err
}

func firstSystemMessage(root gjson.Result) gjson.Result {
	var found gjson.Result
	root.Get("messages").ForEach(func(_, m gjson.Result) bool {
		if m.Get("role").String() == "system" {
			found = m
			return false
		}
		return true
	})
	return found
}

// messageTextContent extracts the textual content of a message whose
// content may be a plain string or an array of typed parts.
func messageTextContent(m gjson.Result) string {
	c := m.Get("content")
	if c.Type == gjson.String {
		return c.String()
	}
	if c.IsArray() {
		var b strings.Builder
		c.ForEach(func(_, part gjson.Result) bool {
			if t := part.Get("text"); t.Exists() {
				b.WriteString(t.String())
			}
			return true
		})
		return b.String()
	}
	return ""
}

// buildInputFromMessages constructs the Responses "input" array from
// Chat "messages" in order, per spec.md §4.5.2.
func buildInputFromMessages(out string, messages gjson.Result, longToShort map[string]string) (string, error) {
	var err error
	idx := 0
	appendItem := func(raw string) bool {
		out, err = sjson.SetRaw(out, "input."+strconv.Itoa(idx), raw)
		if err != nil {
			return false
		}
		idx++
		return true
	}

	messages.ForEach(func(_, m gjson.Result) bool {
		role := m.Get("role").String()

		// System messages are already carried via "instructions"
		// (spec.md §4.5.2); they must not also appear in "input",
		// which would send the system prompt to the model twice.
		if role == "system" {
			return true
		}

		if role == "tool" {
			item := `{}`
			item, _ = sjson.Set(item, "type", "function_call_output")
			item, _ = sjson.Set(item, "call_id", m.Get("tool_call_id").String())
			item, _ = sjson.Set(item, "output", messageTextContent(m))
			return appendItem(item)
		}

		parts := contentParts(m, role)
		item := `{}`
		item, _ = sjson.Set(item, "type", "message")
		item, _ = sjson.Set(item, "role", role)
		item, _ = sjson.SetRaw(item, "content", parts)
		if !appendItem(item) {
			return false
		}

		if role == "assistant" {
			var ok bool
			m.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
				if tc.Get("type").String() != "function" && tc.Get("type").Exists() {
					return true
				}
				name := tc.Get("function.name").String()
				short, have := longToShort[name]
				if !have {
					short = name
				}
				call := `{}`
				call, _ = sjson.Set(call, "type", "function_call")
				call, _ = sjson.Set(call, "call_id", tc.Get("id").String())
				call, _ = sjson.Set(call, "name", short)
				call, _ = sjson.Set(call, "arguments", tc.Get("function.arguments").String())
				ok = appendItem(call)
				return ok
			})
		}
		return true
	})
	return out, err
}

// contentParts renders a message's content (string or typed-part
// array) into the Responses content-part array JSON, as a raw string.
func contentParts(m gjson.Result, outRole string) string {
	isAssistant := outRole == "assistant"
	textType := "input_text"
	if isAssistant {
		textType = "output_text"
	}

	c := m.Get("content")
	parts := `[]`
	if c.Type == gjson.String {
		p := `{}`
		p, _ = sjson.Set(p, "type", textType)
		p, _ = sjson.Set(p, "text", c.String())
		parts, _ = sjson.SetRaw(parts, "0", p)
		return parts
	}
	idx := 0
	c.ForEach(func(_, part gjson.Result) bool {
		switch part.Get("type").String() {
		case "text":
			p := `{}`
			p, _ = sjson.Set(p, "type", textType)
			p, _ = sjson.Set(p, "text", part.Get("text").String())
			parts, _ = sjson.SetRaw(parts, strconv.Itoa(idx), p)
			idx++
		case "image_url":
			if !isAssistant {
				p := `{}`
				p, _ = sjson.Set(p, "type", "input_image")
				url := part.Get("image_url.url")
				if !url.Exists() {
					url = part.Get("image_url")
				}
				p, _ = sjson.Set(p, "image_url", url.String())
				parts, _ = sjson.SetRaw(parts, strconv.Itoa(idx), p)
				idx++
			}
		}
		return true
	})
	return parts
}
