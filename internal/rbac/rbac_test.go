package rbac

import "testing"

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role string
		perm string
		want bool
	}{
		{RoleOperator, PermControlLoops, true},
		{RoleOperator, PermViewWallet, true},
		{RoleOperator, PermViewLedger, true},
		{RoleViewer, PermViewLedger, true},
		{RoleViewer, PermViewWallet, false},
		{RoleViewer, PermControlLoops, false},
		{"", PermViewLedger, false},
		{"admin", PermViewLedger, false},
	}

	for _, tt := range tests {
		got := HasPermission(tt.role, tt.perm)
		if got != tt.want {
			t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}
}

func TestMovesValue(t *testing.T) {
	if !MovesValue(PermControlLoops) {
		t.Error("loop control must be treated as value-moving")
	}
	if MovesValue(PermViewLedger) {
		t.Error("ledger view must not be value-moving")
	}
}
