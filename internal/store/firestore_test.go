// README: Firestore adapter unit tests for the pure translation helpers;
// store round-trips live in memory_test.go and against real credentials.
package store

import (
	"testing"

	"cloud.google.com/go/firestore"
)

func TestChangeKindMapping(t *testing.T) {
	tests := []struct {
		in   firestore.DocumentChangeKind
		want ChangeKind
	}{
		{firestore.DocumentAdded, Added},
		{firestore.DocumentModified, Modified},
		{firestore.DocumentRemoved, Removed},
	}
	for _, tt := range tests {
		if got := changeKind(tt.in); got != tt.want {
			t.Errorf("changeKind(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestToValueSentinels(t *testing.T) {
	if got := toValue(Delete); got != firestore.Delete {
		t.Errorf("Delete sentinel mapped to %v", got)
	}
	if got := toValue(ServerTimestamp); got != firestore.ServerTimestamp {
		t.Errorf("ServerTimestamp sentinel mapped to %v", got)
	}
	if got := toValue("plain"); got != "plain" {
		t.Errorf("plain value mapped to %v", got)
	}
}
