package app

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestNewOperation(t *testing.T) {
	tests := []struct {
		name       string
		operation  string
		parameters string
	}{
		{
			name:       "with parameters",
			operation:  "Backup",
			parameters: "/home/user/docs",
		},
		{
			name:       "empty parameters",
			operation:  "ListRuns",
			parameters: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation(tt.operation, tt.parameters)

			if op.Name != tt.operation {
				t.Errorf("Name = %q, want %q", op.Name, tt.operation)
			}
			if op.Parameters != tt.parameters {
				t.Errorf("Parameters = %q, want %q", op.Parameters, tt.parameters)
			}
			if op.Status != "success" {
				t.Errorf("Status = %q, want %q", op.Status, "success")
			}
			if _, err := uuid.Parse(op.ID); err != nil {
				t.Errorf("ID = %q is not a uuid: %v", op.ID, err)
			}
		})
	}

	if NewOperation("a", "").ID == NewOperation("a", "").ID {
		t.Error("two operations share an ID")
	}
}

func TestOperation_Fail(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error keeps success", err: nil, want: false},
		{name: "error marks failure", err: errors.New("boom"), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation("Backup", "")
			if got := op.Fail(tt.err); got != tt.err {
				t.Errorf("Fail() = %v, want %v", got, tt.err)
			}
			if op.Failed() != tt.want {
				t.Errorf("Failed() = %v, want %v", op.Failed(), tt.want)
			}
		})
	}
}
