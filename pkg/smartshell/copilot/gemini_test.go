package copilot

import (
	"testing"

	"google.golang.org/genai"

	"github.com/jholhewres/smartshell/pkg/smartshell/session"
	"github.com/jholhewres/smartshell/pkg/smartshell/tools"
)

func TestToGenaiContents(t *testing.T) {
	turns := []session.Turn{
		session.TextTurn(session.RoleUser, "list"),
		session.CallTurn("", []tools.Call{{ID: "1", Name: "list_directory", Args: map[string]any{"path": "."}}}),
		session.ResultTurn([]tools.Result{{ID: "1", Name: "list_directory", Value: "a.txt"}}),
		session.TextTurn(session.RoleModel, "a.txt"),
	}
	contents := toGenaiContents(turns)
	if len(contents) != 4 {
		t.Fatalf("len = %d", len(contents))
	}
	if contents[1].Role != string(genai.RoleModel) || contents[1].Parts[0].FunctionCall.Name != "list_directory" {
		t.Errorf("call content = %+v", contents[1])
	}
	fr := contents[2].Parts[0].FunctionResponse
	if contents[2].Role != string(genai.RoleUser) || fr == nil || fr.Response["result"] != "a.txt" {
		t.Errorf("result content = %+v", contents[2])
	}
}

func TestToFunctionDeclarations(t *testing.T) {
	decls := toFunctionDeclarations([]tools.Spec{
		{Name: "status"},
		{Name: "kill_process", Params: []tools.Param{
			{Name: "pid", Type: tools.TypeInteger, Required: true},
			{Name: "force", Type: tools.TypeBoolean},
		}},
	})
	if decls[0].Parameters != nil {
		t.Error("tool without params should have no schema")
	}
	schema := decls[1].Parameters
	if schema.Type != genai.TypeObject || schema.Properties["pid"].Type != genai.TypeInteger {
		t.Errorf("schema = %+v", schema)
	}
	if len(schema.Required) != 1 || schema.Required[0] != "pid" {
		t.Errorf("required = %v", schema.Required)
	}
}

func TestFromGenaiResponse(t *testing.T) {
	t.Run("prompt blocked with reason", func(t *testing.T) {
		resp := fromGenaiResponse(&genai.GenerateContentResponse{
			PromptFeedback: &genai.GenerateContentResponsePromptFeedback{
				BlockReason:        genai.BlockedReasonSafety,
				BlockReasonMessage: "unsafe",
			},
		})
		if !resp.Blocked || resp.BlockReason == "" {
			t.Errorf("resp = %+v", resp)
		}
	})

	t.Run("no candidates", func(t *testing.T) {
		resp := fromGenaiResponse(&genai.GenerateContentResponse{})
		if !resp.Blocked || resp.BlockReason != "" {
			t.Errorf("resp = %+v", resp)
		}
	})

	t.Run("function calls get ids", func(t *testing.T) {
		resp := fromGenaiResponse(&genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{
					{FunctionCall: &genai.FunctionCall{Name: "cwd"}},
					{FunctionCall: &genai.FunctionCall{Name: "list_directory", Args: map[string]any{"path": "."}}},
				}},
			}},
		})
		if len(resp.Calls) != 2 || resp.Calls[0].ID != "call_0" || resp.Calls[1].ID != "call_1" {
			t.Errorf("calls = %+v", resp.Calls)
		}
	})

	t.Run("text", func(t *testing.T) {
		resp := fromGenaiResponse(&genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content:      &genai.Content{Parts: []*genai.Part{{Text: " hello "}}},
				FinishReason: genai.FinishReasonStop,
			}},
		})
		if resp.Blocked || resp.Text != "hello" {
			t.Errorf("resp = %+v", resp)
		}
	})
}

func TestThoughtSignatureRoundTrip(t *testing.T) {
	sig := []byte{0x01, 0x02, 0x03}
	resp := fromGenaiResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonStop,
			Content: &genai.Content{Role: string(genai.RoleModel), Parts: []*genai.Part{
				{FunctionCall: &genai.FunctionCall{Name: "list_directory"}, ThoughtSignature: sig},
			}},
		}},
	})
	if len(resp.Calls) != 1 || string(resp.Calls[0].Signature) != string(sig) {
		t.Fatalf("calls = %+v", resp.Calls)
	}

	contents := toGenaiContents([]session.Turn{session.CallTurn("", resp.Calls)})
	part := contents[0].Parts[0]
	if part.FunctionCall == nil || string(part.ThoughtSignature) != string(sig) {
		t.Errorf("signature not echoed: %+v", part)
	}
}
