package models

import "testing"

func TestValidateSnapshotName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "my-snapshot", false},
		{"valid single char", "a", false},
		{"valid with numbers", "run123", false},
		{"valid with hyphens", "weibull-sweep-2024", false},
		{"empty", "", true},
		{"too long", string(make([]byte, 129)), true},
		{"uppercase", "MySnapshot", true},
		{"spaces", "my snapshot", true},
		{"underscore", "my_snapshot", true},
		{"starts with hyphen", "-snapshot", true},
		{"ends with hyphen", "snapshot-", true},
		{"path", "../etc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSnapshotName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSnapshotName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestContainsSectionAndCode(t *testing.T) {
	if !ContainsSection(nil, SectionSamples) {
		t.Error("empty section list should select everything")
	}
	if ContainsSection([]string{SectionValues}, SectionSamples) {
		t.Error("samples should not be selected")
	}
	if !ContainsCode(nil, "exp(1)") {
		t.Error("empty code list should select everything")
	}
	if !ContainsCode([]string{"KS_exp", "exp(1)"}, "exp(1)") {
		t.Error("exp(1) should be selected")
	}
	if ContainsCode([]string{"KS_exp"}, "CM_exp") {
		t.Error("CM_exp should not be selected")
	}
}
