package testutil

import (
	"strings"
	"testing"
)

func TestDBName(t *testing.T) {
	if got := dbName("TestStore_Log"); got != "gate_test_TestStore_Log" {
		t.Errorf("dbName = %q", got)
	}
	if got := dbName("TestX/sub case"); got != "gate_test_TestX_sub_case" {
		t.Errorf("dbName = %q", got)
	}

	long := "TestAPIToggle/" + strings.Repeat("very_long_subtest_name_", 4)
	a := dbName(long + "a")
	b := dbName(long + "b")
	if len(a) > maxDBName || len(b) > maxDBName {
		t.Fatalf("names exceed %d bytes: %d, %d", maxDBName, len(a), len(b))
	}
	if a == b {
		t.Errorf("long names collide: %q", a)
	}
}
