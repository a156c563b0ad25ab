package translator

import (
	"testing"

	"github.com/tidwall/gjson"
)

func TestChatToResponsesBasicFields(t *testing.T) {
	chat := `{
		"model": "gpt-5",
		"stream": true,
		"messages": [
			{"role": "system", "content": "You are terse."},
			{"role": "user", "content": "hi"}
		]
	}`
	out, _, err := ChatToResponses([]byte(chat))
	if err != nil {
		t.Fatal(err)
	}
	r := gjson.ParseBytes(out)

	if got := r.Get("model").String(); got != "gpt-5" {
		t.Errorf("model = %q, want gpt-5", got)
	}
	if got := r.Get("reasoning.summary").String(); got != "auto" {
		t.Errorf("reasoning.summary = %q, want auto", got)
	}
	if !r.Get("parallel_tool_calls").Bool() {
		t.Error("parallel_tool_calls must be true")
	}
	if !r.Get("stream").Bool() {
		t.Error("upstream stream must be true")
	}
	if got := r.Get("instructions").String(); got != "You are terse." {
		t.Errorf("instructions = %q, want the first system message", got)
	}
	if got := len(r.Get("input").Array()); got != 1 {
		t.Fatalf("input array length = %d, want 1 (system message must not be duplicated into input)", got)
	}
	if got := r.Get("input.0.content.0.text").String(); got != "hi" {
		t.Errorf("input.0 text = %q, want hi", got)
	}
	if got := r.Get("input.0.role").String(); got != "user" {
		t.Errorf("input.0 role = %q, want user", got)
	}
}

func TestChatToResponsesAlwaysRequestsUpstreamStreamRegardlessOfCaller(t *testing.T) {
	for _, chat := range []string{
		`{"model":"gpt-5","stream":false,"messages":[]}`,
		`{"model":"gpt-5","messages":[]}`,
	} {
		out, _, err := ChatToResponses([]byte(chat))
		if err != nil {
			t.Fatal(err)
		}
		if !gjson.GetBytes(out, "stream").Bool() {
			t.Errorf("ChatToResponses(%s): upstream stream = false, want true (the upstream only emits response.completed via SSE)", chat)
		}
	}
}

func TestChatToResponsesGPT5VariantRewriting(t *testing.T) {
	out, _, err := ChatToResponses([]byte(`{"model":"gpt-5-high","messages":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	r := gjson.ParseBytes(out)
	if got := r.Get("model").String(); got != "gpt-5" {
		t.Errorf("model = %q, want gpt-5", got)
	}
	if got := r.Get("reasoning.effort").String(); got != "high" {
		t.Errorf("reasoning.effort = %q, want high", got)
	}
}

func TestChatToResponsesDefaultReasoningEffort(t *testing.T) {
	out, _, err := ChatToResponses([]byte(`{"model":"gpt-5","messages":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	if got := gjson.GetBytes(out, "reasoning.effort").String(); got != "low" {
		t.Errorf("reasoning.effort = %q, want low default", got)
	}
}

func TestChatToResponsesStoreTrueOnlyWithResponseFormat(t *testing.T) {
	withRF, _, err := ChatToResponses([]byte(`{"model":"gpt-5","messages":[],"response_format":{"type":"text"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if !gjson.GetBytes(withRF, "store").Bool() {
		t.Error("store should be true when response_format is present")
	}

	without, _, err := ChatToResponses([]byte(`{"model":"gpt-5","messages":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	if gjson.GetBytes(without, "store").Bool() {
		t.Error("store should be false when response_format is absent")
	}
}

// S5: an over-long mcp__ function tool name gets shortened in the
// tools array and the returned map recovers the original on request.
func TestChatToResponsesShortensLongFunctionToolNames(t *testing.T) {
	long := "mcp__some_really_long_namespace_segment_here__do_the_thing_please"
	chat := `{"model":"gpt-5","messages":[],"tools":[{"type":"function","function":{"name":"` + long + `","description":"d"}}]}`
	out, shortToLong, err := ChatToResponses([]byte(chat))
	if err != nil {
		t.Fatal(err)
	}
	short := gjson.GetBytes(out, "tools.0.name").String()
	if len(short) > maxToolNameLen {
		t.Fatalf("tools.0.name length = %d, want <= %d", len(short), maxToolNameLen)
	}
	if shortToLong[short] != long {
		t.Errorf("shortToLong[%q] = %q, want %q", short, shortToLong[short], long)
	}
}

func TestChatToResponsesDropsNonFunctionTools(t *testing.T) {
	chat := `{"model":"gpt-5","messages":[],"tools":[{"type":"code_interpreter"},{"type":"function","function":{"name":"f"}}]}`
	out, _, err := ChatToResponses([]byte(chat))
	if err != nil {
		t.Fatal(err)
	}
	tools := gjson.GetBytes(out, "tools")
	if len(tools.Array()) != 1 {
		t.Fatalf("tools array length = %d, want 1 (non-function tool dropped)", len(tools.Array()))
	}
	if got := gjson.GetBytes(out, "tools.0.name").String(); got != "f" {
		t.Errorf("remaining tool name = %q, want f", got)
	}
}

func TestChatToResponsesToolMessageBecomesFunctionCallOutput(t *testing.T) {
	chat := `{"model":"gpt-5","messages":[{"role":"tool","tool_call_id":"call_1","content":"42"}]}`
	out, _, err := ChatToResponses([]byte(chat))
	if err != nil {
		t.Fatal(err)
	}
	if got := gjson.GetBytes(out, "input.0.type").String(); got != "function_call_output" {
		t.Errorf("input.0.type = %q, want function_call_output", got)
	}
	if got := gjson.GetBytes(out, "input.0.call_id").String(); got != "call_1" {
		t.Errorf("input.0.call_id = %q, want call_1", got)
	}
}
