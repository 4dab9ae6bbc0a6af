package policy

import (
	"strings"
	"testing"
)

func TestValidateRejectsTwoTopLevelSubqueries(t *testing.T) {
	predicate := Predicate{
		Where: `"channelId" IN (SELECT "channelId" FROM channel_access WHERE "userId" = $1)` +
			` AND "organizationId" IN (SELECT "organizationId" FROM organization_members WHERE "userId" = $1)`,
		Params: []any{"user-1"},
	}
	err := Validate(predicate)
	if err == nil {
		t.Fatalf("expected two sibling subqueries rejected")
	}
	if !strings.Contains(err.Error(), "subqueries") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateAcceptsNestedSubquery(t *testing.T) {
	predicate := Predicate{
		Where:  `"channelLinkId" IN (SELECT id FROM chat_sync_channel_links WHERE "channelId" IN (SELECT "channelId" FROM channel_access WHERE "userId" = $1))`,
		Params: []any{"user-1"},
	}
	if err := Validate(predicate); err != nil {
		t.Fatalf("nested subquery should pass: %v", err)
	}
}

func TestValidateRejectsQualifiedColumns(t *testing.T) {
	predicate := Predicate{Where: `channels."deletedAt" IS NULL`}
	err := Validate(predicate)
	if err == nil {
		t.Fatalf("expected qualified column rejected")
	}
	if !strings.Contains(err.Error(), "qualified") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsPlaceholderParamMismatch(t *testing.T) {
	cases := []struct {
		name      string
		predicate Predicate
	}{
		{"placeholder without param", Predicate{Where: `"userId" = $1`}},
		{"param without placeholder", Predicate{Where: `"deletedAt" IS NULL`, Params: []any{"user-1"}}},
		{"gap in placeholders", Predicate{Where: `"userId" = $2`, Params: []any{"a", "b"}}},
	}
	for _, tc := range cases {
		if err := Validate(tc.predicate); err == nil {
			t.Fatalf("%s: expected validation failure", tc.name)
		}
	}
}

func TestValidateRejectsUnparsablePredicate(t *testing.T) {
	if err := Validate(Predicate{Where: `"userId" = = $1`, Params: []any{"a"}}); err == nil {
		t.Fatalf("expected parse failure")
	}
}

func TestValidateAcceptsBooleanLiterals(t *testing.T) {
	for _, where := range []string{"true", "false"} {
		if err := Validate(Predicate{Where: where}); err != nil {
			t.Fatalf("literal %q should validate: %v", where, err)
		}
	}
}
