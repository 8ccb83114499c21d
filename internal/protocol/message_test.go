package protocol

import (
	"bytes"
	"reflect"
	"testing"
)

func TestWorkBlockEventRoundtrip(t *testing.T) {
	orig := WorkBlockEvent{
		Block: WorkBlockMsg{
			ID:           "wb-1",
			ContextType:  "doc",
			ContextID:    "doc-42",
			ContextTitle: "design.md",
			StartedAt:    1000,
			EndedAt:      2000,
			DurationSecs: 1,
			AutoSummary:  "edited design.md",
			EditCount:    3,
			ResearchURLs: []string{"https://example.com"},
			Tags:         []string{"writing"},
			CreatedAt:    2000,
			UpdatedAt:    2000,
		},
	}

	env, err := NewEnvelope(TypeWorkBlockEvent, 0, &orig)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteMsg(&buf, env); err != nil {
		t.Fatalf("WriteMsg: %v", err)
	}

	got, err := ReadMsg(&buf)
	if err != nil {
		t.Fatalf("ReadMsg: %v", err)
	}
	if got.Type != TypeWorkBlockEvent {
		t.Fatalf("type = %q, want %q", got.Type, TypeWorkBlockEvent)
	}

	var decoded WorkBlockEvent
	if err := DecodeBody(got.Body, &decoded); err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if !reflect.DeepEqual(decoded, orig) {
		t.Fatalf("decoded = %+v, want %+v", decoded, orig)
	}
}

func TestSourceLinkEventRoundtrip(t *testing.T) {
	orig := SourceLinkEvent{
		Link: SourceLinkMsg{
			ID:         "link-1",
			DocID:      "doc-42",
			CreatedAt:  1500,
			Confidence: 0.72,
			Sources: []LinkedSourceMsg{
				{SourceType: "webpage", SourceID: "https://docs.example.com", Relevance: 0.8, ContributionType: "referenced"},
			},
		},
	}

	env, err := NewEnvelope(TypeSourceLinkEvent, 0, &orig)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteMsg(&buf, env); err != nil {
		t.Fatalf("WriteMsg: %v", err)
	}

	got, err := ReadMsg(&buf)
	if err != nil {
		t.Fatalf("ReadMsg: %v", err)
	}

	var decoded SourceLinkEvent
	if err := DecodeBody(got.Body, &decoded); err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if !reflect.DeepEqual(decoded, orig) {
		t.Fatalf("decoded = %+v, want %+v", decoded, orig)
	}
}

func TestCaptureEventRoundtrip(t *testing.T) {
	orig := CaptureEvent{Kind: "clipboard", ID: "cap-1", Timestamp: 100}

	env, err := NewEnvelope(TypeCaptureEvent, 0, &orig)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}

	data, err := EncodeBody(&orig)
	if err != nil {
		t.Fatalf("EncodeBody: %v", err)
	}
	if !bytes.Equal(data, env.Body) {
		t.Fatalf("EncodeBody and NewEnvelope body disagree")
	}

	var decoded CaptureEvent
	if err := DecodeBody(env.Body, &decoded); err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if decoded != orig {
		t.Fatalf("decoded = %+v, want %+v", decoded, orig)
	}
}

func TestHelloRoundtrip(t *testing.T) {
	env, err := NewEnvelope(TypeHello, 7, &HelloResp{ProtocolVersion: 1, Version: "test"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteMsg(&buf, env); err != nil {
		t.Fatalf("WriteMsg: %v", err)
	}

	got, err := ReadMsg(&buf)
	if err != nil {
		t.Fatalf("ReadMsg: %v", err)
	}
	if got.ID != 7 {
		t.Fatalf("id = %d, want 7", got.ID)
	}

	var decoded HelloResp
	if err := DecodeBody(got.Body, &decoded); err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if decoded.ProtocolVersion != 1 || decoded.Version != "test" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestErrorResultRoundtrip(t *testing.T) {
	env, err := NewEnvelope(TypeError, 3, &ErrorResult{Error: "boom"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}

	var decoded ErrorResult
	if err := DecodeBody(env.Body, &decoded); err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if decoded.Error != "boom" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestAnnotateBlockReqRoundtrip(t *testing.T) {
	orig := AnnotateBlockReq{
		ID:          "wb-1",
		UserSummary: "Refactored the linker",
		Notes:       "took longer than expected",
		Tags:        []string{"refactor", "linker"},
		IsPinned:    true,
	}

	env, err := NewEnvelope(TypeActionAnnotateBlock, 1, &orig)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}

	var decoded AnnotateBlockReq
	if err := DecodeBody(env.Body, &decoded); err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if !reflect.DeepEqual(decoded, orig) {
		t.Fatalf("decoded = %+v, want %+v", decoded, orig)
	}
}

func TestSessionMsgOmitsEmptyFields(t *testing.T) {
	orig := SessionMsg{ID: "sess-1", StartedAt: 100}

	data, err := EncodeBody(&orig)
	if err != nil {
		t.Fatalf("EncodeBody: %v", err)
	}

	var decoded SessionMsg
	if err := DecodeBody(data, &decoded); err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if decoded.Title != "" || decoded.EndedAt != 0 || decoded.BlockIDs != nil {
		t.Fatalf("decoded = %+v, want zero-valued optional fields", decoded)
	}
}

func TestUnsubscribeRoundtrip(t *testing.T) {
	env, err := NewEnvelope(TypeUnsubscribe, 0, &Unsubscribe{Topic: "work_blocks"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}

	var decoded Unsubscribe
	if err := DecodeBody(env.Body, &decoded); err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if decoded.Topic != "work_blocks" {
		t.Fatalf("decoded = %+v", decoded)
	}
}
