package gcode

import "testing"

func TestParseLineKinds(t *testing.T) {
	tests := []struct {
		line string
		name string
		kind Kind
	}{
		{"G1 X10", "G1", KindLinear},
		{"g01 x10", "G1", KindLinear},
		{"G0", "G0", KindLinear},
		{"G00 Z1", "G0", KindLinear},
		{"G2 X0 Y0 I5", "G2", KindArcCW},
		{"G03 X1", "G3", KindArcCCW},
		{"M82", "M82", KindAbsoluteExtrusion},
		{"m83", "M83", KindRelativeExtrusion},
		{"M3 S500", "M3", KindLaserOn},
		{"M05", "M5", KindLaserOff},
		{"G90", "G90", KindAbsolute},
		{"G91", "G91", KindRelative},
		{"M101", "M101", KindDirectOn},
		{"M103", "M103", KindDirectOff},
		{"G92 E0", "G92", KindSetPosition},
		{"G28 X", "G28", KindHome},
		{"$H", "$H", KindHome},
		{"G20", "G20", KindInches},
		{"G21", "G21", KindMillimeters},
		{"M30", "M30", KindUnknown},
		{"M104 S200", "M104", KindUnknown},
		{"G10", "G10", KindUnknown},
		{"M300 S440 P200", "M300", KindUnknown},
		{"G92.1", "G92.1", KindUnknown},
		{"G280", "G280", KindUnknown},
		{"T1X", "T1X", KindUnknown},
	}

	for _, tt := range tests {
		cmd := ParseLine(tt.line)
		if cmd == nil {
			t.Errorf("ParseLine(%q) returned nil", tt.line)
			continue
		}
		if cmd.Name != tt.name || cmd.Kind != tt.kind {
			t.Errorf("ParseLine(%q) = %s/%v, want %s/%v", tt.line, cmd.Name, cmd.Kind, tt.name, tt.kind)
		}
	}
}

func TestParseLineComments(t *testing.T) {
	tests := []string{"", "   ", "; layer 1", "(comment only)", "\t;G1 X5"}
	for _, line := range tests {
		if cmd := ParseLine(line); cmd != nil {
			t.Errorf("ParseLine(%q) = %+v, want nil", line, cmd)
		}
	}

	cmd := ParseLine("G1 X5 (move) Y7")
	if cmd.Has('Y') {
		t.Error("text after '(' should be stripped")
	}
	cmd = ParseLine("G1 X5 ; Y7")
	if v, ok := cmd.Get('X'); !ok || v != 5 || cmd.Has('Y') {
		t.Errorf("unexpected params %+v", cmd.Params)
	}
}

func TestParseLineMalformed(t *testing.T) {
	cmd := ParseLine("G1 X abc Y10 Znan E1e400 F1500")

	if cmd.Has('X') {
		t.Error("bare X should be skipped")
	}
	if cmd.Has('Z') || cmd.Has('E') {
		t.Error("non-finite values should be skipped")
	}
	if v, ok := cmd.Get('Y'); !ok || v != 10 {
		t.Errorf("expected Y10, got %v %v", v, ok)
	}
	if v, _ := cmd.Get('F'); v != 1500 {
		t.Errorf("expected F1500, got %v", v)
	}
	if len(cmd.Malformed) != 4 {
		t.Errorf("expected 4 malformed tokens, got %v", cmd.Malformed)
	}
}

func TestParseLineTool(t *testing.T) {
	cmd := ParseLine("T2")
	if cmd.Kind != KindTool || cmd.Tool != 2 {
		t.Errorf("expected tool 2, got %+v", cmd)
	}
	if cmd := ParseLine("T"); cmd.Kind != KindUnknown {
		t.Errorf("bare T should be unknown, got %v", cmd.Kind)
	}
	if cmd := ParseLine("TX"); cmd.Kind != KindUnknown {
		t.Errorf("TX should be unknown, got %v", cmd.Kind)
	}
}

func TestParseLineBareAndLastWins(t *testing.T) {
	if !ParseLine("G92").Bare {
		t.Error("G92 without args should be bare")
	}
	if ParseLine("G92 E0").Bare {
		t.Error("G92 E0 should not be bare")
	}
	cmd := ParseLine("G1 X1 X2")
	if v, _ := cmd.Get('X'); v != 2 {
		t.Errorf("expected last X to win, got %v", v)
	}
	if len(cmd.Params) != 2 {
		t.Errorf("expected both params kept in order, got %v", cmd.Params)
	}
}

func TestMentioned(t *testing.T) {
	cmd := ParseLine("G28 x Y0")
	if !cmd.Mentioned('X') || !cmd.Mentioned('Y') {
		t.Errorf("expected X and Y mentioned, got %+v", cmd)
	}
	if cmd.Mentioned('Z') {
		t.Error("Z was not mentioned")
	}
}

func TestUnknownCommandHasNoParams(t *testing.T) {
	cmd := ParseLine("M104 S200")
	if len(cmd.Params) != 0 {
		t.Errorf("unknown command should carry no params, got %v", cmd.Params)
	}
}
