package matching

import (
	"errors"
	"testing"
	"time"
)

func validOverride() AdminOverride {
	return AdminOverride{
		RequestID:   "req-1",
		AdminUserID: "admin-7",
		Reason:      "Manual VIP assignment per policy",
		Action:      CancelMatching{},
	}
}

func TestAdminOverride_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AdminOverride)
		wantErr bool
	}{
		{"valid", func(o *AdminOverride) {}, false},
		{"blank request id", func(o *AdminOverride) { o.RequestID = "  " }, true},
		{"blank admin id", func(o *AdminOverride) { o.AdminUserID = "" }, true},
		{"short reason", func(o *AdminOverride) { o.Reason = "short" }, true},
		{"padded short reason", func(o *AdminOverride) { o.Reason = "   byes    " }, true},
		{"nil action", func(o *AdminOverride) { o.Action = nil }, true},
		{"exactly ten chars", func(o *AdminOverride) { o.Reason = "0123456789" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ov := validOverride()
			tt.mutate(&ov)
			err := ov.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %#v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAdminOverride_Validate_ActionFields(t *testing.T) {
	tests := []struct {
		name    string
		action  Action
		wantErr bool
	}{
		{"force match with targets", ForceMatch{TargetAgentIDs: []string{"a1", "a2"}}, false},
		{"force match without targets", ForceMatch{}, true},
		{"force match with blank target", ForceMatch{TargetAgentIDs: []string{"a1", "  "}}, true},
		{"extend timeout positive", ExtendTimeout{NewTimeout: time.Hour}, false},
		{"extend timeout zero", ExtendTimeout{}, true},
		{"extend timeout negative", ExtendTimeout{NewTimeout: -time.Hour}, true},
		{"force rematch", ForceRematch{}, false},
		{"tier override", OverrideTierRequirement{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ov := validOverride()
			ov.Action = tt.action
			err := ov.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %#v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Errorf("Validate() error type = %T, want *ValidationError", err)
				}
			}
		})
	}
}

func TestParseOverrideAction(t *testing.T) {
	tests := []struct {
		name   string
		action string
		want   OverrideAction
	}{
		{"force match", "FORCE_MATCH", ActionForceMatch},
		{"force rematch", "FORCE_REMATCH", ActionForceRematch},
		{"cancel", "CANCEL_MATCHING", ActionCancelMatching},
		{"extend", "EXTEND_TIMEOUT", ActionExtendTimeout},
		{"tier", "OVERRIDE_TIER_REQUIREMENT", ActionOverrideTierRequirement},
		{"lowercase", "force_match", ActionForceMatch},
		{"padded", "  cancel_matching ", ActionCancelMatching},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOverrideAction(tt.action, []string{"a1"}, 12)
			if err != nil {
				t.Fatalf("ParseOverrideAction(%q) error = %#v", tt.action, err)
			}
			if got.Kind() != tt.want {
				t.Errorf("ParseOverrideAction(%q).Kind() = %v, want %v", tt.action, got.Kind(), tt.want)
			}
		})
	}

	if _, err := ParseOverrideAction("DELETE_EVERYTHING", nil, 0); err == nil {
		t.Error("ParseOverrideAction() accepted an unknown action")
	}

	got, err := ParseOverrideAction("EXTEND_TIMEOUT", nil, 12)
	if err != nil {
		t.Fatalf("ParseOverrideAction() error = %#v", err)
	}
	ext, ok := got.(ExtendTimeout)
	if !ok || ext.NewTimeout != 12*time.Hour {
		t.Errorf("ParseOverrideAction() = %#v, want ExtendTimeout of 12h", got)
	}

	fm, err := ParseOverrideAction("FORCE_MATCH", []string{"x", "y"}, 0)
	if err != nil {
		t.Fatalf("ParseOverrideAction() error = %#v", err)
	}
	if targets := fm.(ForceMatch).TargetAgentIDs; len(targets) != 2 || targets[0] != "x" {
		t.Errorf("ParseOverrideAction() targets = %v, want [x y]", targets)
	}
}

func TestValidationError_Permanent(t *testing.T) {
	err := newValidationError("bad input")
	var p interface{ Permanent() bool }
	if !errors.As(err, &p) || !p.Permanent() {
		t.Errorf("ValidationError should report Permanent() == true")
	}
	if errors.As(ErrUnknownRequest, &p) {
		t.Errorf("ErrUnknownRequest must stay retryable, got Permanent marker")
	}
}
