package model

import (
	"encoding/json"
	"testing"
)

func TestFlexBoolUnmarshal(t *testing.T) {
	cases := []struct {
		raw     string
		want    bool
		wantErr bool
	}{
		{`true`, true, false},
		{`false`, false, false},
		{`null`, false, false},
		{`"true"`, true, false},
		{`"TRUE"`, true, false},
		{`"1"`, true, false},
		{`"yes"`, true, false},
		{`"false"`, false, false},
		{`"0"`, false, false},
		{`"no"`, false, false},
		{`"maybe"`, false, true},
		{`1`, false, true},
		{`{}`, false, true},
	}

	for _, c := range cases {
		var b FlexBool
		err := json.Unmarshal([]byte(c.raw), &b)
		if c.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", c.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", c.raw, err)
			continue
		}
		if b.Bool() != c.want {
			t.Errorf("%s: got %v, want %v", c.raw, b.Bool(), c.want)
		}
	}
}

func TestErrorMarshal(t *testing.T) {
	raw, err := json.Marshal(Error{Message: "boom", Type: ErrorTypeUpstream, Code: "upstream_error"})
	if err != nil {
		t.Fatal(err)
	}
	// param must be omitted when unset, code must always be present
	if string(raw) != `{"message":"boom","type":"upstream_error","code":"upstream_error"}` {
		t.Fatalf("unexpected envelope: %s", raw)
	}

	raw, err = json.Marshal(Error{Message: "bad n", Type: ErrorTypeValidation, Param: "n", Code: "invalid_n"})
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"message":"bad n","type":"validation_error","param":"n","code":"invalid_n"}` {
		t.Fatalf("unexpected envelope: %s", raw)
	}
}

func TestImageUsageZeroShape(t *testing.T) {
	raw, err := json.Marshal(ImageUsage{})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"total_tokens":0,"input_tokens":0,"output_tokens":0,"input_tokens_details":{"text_tokens":0,"image_tokens":0}}`
	if string(raw) != want {
		t.Fatalf("unexpected usage shape: %s", raw)
	}
}
