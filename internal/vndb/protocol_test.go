package vndb

import (
	"testing"
)

func TestRequestText(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want string
	}{
		{
			name: "login",
			req:  Login(),
			want: `login {"protocol":1,"client":"roseline","clientver":1.0}`,
		},
		{
			name: "vn by id",
			req:  VNByID(17),
			want: "get vn basic (id = 17)",
		},
		{
			name: "user by id",
			req:  GetByID(KindUser, 55),
			want: "get user basic (id = 55)",
		},
		{
			name: "exact title",
			req:  VNByExactTitle("Muv-Luv"),
			want: `get vn basic (title = "Muv-Luv" or original = "Muv-Luv")`,
		},
		{
			name: "fuzzy title",
			req:  VNByFuzzyTitle("Muv"),
			want: `get vn basic (title ~ "Muv" or original ~ "Muv")`,
		},
		{
			name: "title with quotes",
			req:  VNByExactTitle(`say "hi"`),
			want: `get vn basic (title = "say \"hi\"" or original = "say \"hi\"")`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseResponse(t *testing.T) {
	resp, err := ParseResponse("ok")
	if err != nil {
		t.Fatalf("parse ok: %v", err)
	}
	if resp.Kind != ResponseOk {
		t.Errorf("expected ok kind, got %s", resp.Kind)
	}

	resp, err = ParseResponse(`results {"num":1,"more":false,"items":[{"id":17,"title":"Ever17"}]}`)
	if err != nil {
		t.Fatalf("parse results: %v", err)
	}
	results, err := resp.Results()
	if err != nil {
		t.Fatalf("decode results: %v", err)
	}
	if results.Num != 1 || results.More {
		t.Errorf("unexpected results header: %+v", results)
	}
	vns, err := results.VNs()
	if err != nil {
		t.Fatalf("decode vns: %v", err)
	}
	if len(vns) != 1 || vns[0].ID != 17 || vns[0].Title != "Ever17" {
		t.Errorf("unexpected vns: %+v", vns)
	}

	resp, err = ParseResponse(`error {"id":"parse","msg":"Invalid command"}`)
	if err != nil {
		t.Fatalf("parse error frame: %v", err)
	}
	apiErr, err := resp.Err()
	if err != nil {
		t.Fatalf("decode error frame: %v", err)
	}
	if apiErr.ID != "parse" || apiErr.Msg != "Invalid command" {
		t.Errorf("unexpected api error: %+v", apiErr)
	}

	if _, err := ParseResponse("sessiontoken abc"); err == nil {
		t.Error("expected error for unknown response")
	}
}

func TestParseRefKind(t *testing.T) {
	for _, ch := range []byte{'v', 'c', 'r', 'p', 'u'} {
		if _, ok := ParseRefKind(ch); !ok {
			t.Errorf("expected %q to parse", ch)
		}
	}
	for _, ch := range []byte{'d', 'x', '1', ' '} {
		if _, ok := ParseRefKind(ch); ok {
			t.Errorf("expected %q to be rejected", ch)
		}
	}
}

func TestObjectLabel(t *testing.T) {
	tests := []struct {
		obj  ObjectItem
		want string
	}{
		{ObjectItem{Title: "Ever17", Name: "ignored"}, "Ever17"},
		{ObjectItem{Name: "Coco"}, "Coco"},
		{ObjectItem{Username: "yorhel"}, "yorhel"},
	}
	for _, tt := range tests {
		if got := tt.obj.Label(); got != tt.want {
			t.Errorf("Label() = %q, want %q", got, tt.want)
		}
	}
}
