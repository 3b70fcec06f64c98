package api

import "testing"

func TestNewExecutionID(t *testing.T) {
	id := NewExecutionID()
	if !ValidateExecutionID(id) {
		t.Errorf("NewExecutionID() = %q, want valid execution ID", id)
	}
	if other := NewExecutionID(); other == id {
		t.Errorf("NewExecutionID() returned duplicate %q", id)
	}
}

func TestValidateExecutionID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"valid", "exec_0123456789abcdef0123456789abcdef", true},
		{"uppercase hex", "exec_0123456789ABCDEF0123456789ABCDEF", false},
		{"dashed uuid", "exec_01234567-89ab-cdef-0123-456789abcdef", false},
		{"wrong prefix", "resp_0123456789abcdef0123456789abcdef", false},
		{"too short", "exec_abc", false},
		{"empty", "", false},
		{"prefix only", "exec_", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateExecutionID(tt.id); got != tt.want {
				t.Errorf("ValidateExecutionID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}
