package gmailctl

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/lu-zhengda/mailsweep/internal/rules"
)

const sampleExport = `{
  "filters": [
    {"id": "f1", "criteria": {"from": "news@shop.example"}, "action": {"removeLabelIds": ["INBOX", "UNREAD"]}},
    {"criteria": {"from": "{a@x.com b@y.com}"}, "action": {"addLabelIds": ["TRASH"]}},
    {"id": "f3", "name": "receipts", "criteria": {"subject": "receipt", "list": "billing.example"}, "action": {"addLabelIds": ["Label_7", "STARRED", "CATEGORY_UPDATES"]}},
    {"id": "f4", "criteria": {"to": "me+lists@example.com"}, "action": {"removeLabelIds": ["INBOX"]}},
    {"id": "f5", "criteria": {"from": "boss@example.com"}, "action": {"addLabelIds": ["IMPORTANT"]}},
    {"id": "f6", "criteria": {}, "action": {"addLabelIds": ["STARRED"]}}
  ],
  "labels": [{"id": "Label_7", "name": "Receipts", "type": "user"}]
}`

func TestDecode(t *testing.T) {
	export, err := Decode(strings.NewReader(sampleExport))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if len(export.Filters) != 6 || len(export.Labels) != 1 {
		t.Errorf("Decode() = %d filters, %d labels; want 6, 1", len(export.Filters), len(export.Labels))
	}

	if _, err := Decode(strings.NewReader(`{"filters": []}`)); err == nil {
		t.Error("expected error for empty export")
	}
	if _, err := Decode(strings.NewReader(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestToFilterRules(t *testing.T) {
	export, err := Decode(strings.NewReader(sampleExport))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	converted, skipped := ToFilterRules(export)
	if len(converted) != 3 {
		t.Fatalf("converted %d rules, want 3: %+v", len(converted), converted)
	}
	if len(skipped) != 3 {
		t.Errorf("skipped %d filters, want 3", len(skipped))
	}

	archive := converted[0]
	if len(archive.Conditions) != 1 || archive.Conditions[0] != (rules.Condition{Field: rules.FieldSenderEmail, Operator: rules.OpContains, Value: "news@shop.example"}) {
		t.Errorf("archive conditions = %v", archive.Conditions)
	}
	if !archive.Actions.Archive || !archive.Actions.MarkAsRead || archive.Actions.Delete {
		t.Errorf("archive actions = %+v", archive.Actions)
	}
	if !archive.Enabled {
		t.Error("converted rules should be enabled")
	}

	trash := converted[1]
	if trash.Conditions[0].Operator != rules.OpMatchesRegex || trash.Conditions[0].Value != `(?:a@x\.com|b@y\.com)` {
		t.Errorf("trash condition = %v", trash.Conditions[0])
	}
	if !trash.Actions.Delete {
		t.Errorf("trash actions = %+v", trash.Actions)
	}

	labeled := converted[2]
	if labeled.Name != "receipts" {
		t.Errorf("Name = %q, want %q", labeled.Name, "receipts")
	}
	if len(labeled.Conditions) != 2 {
		t.Errorf("labeled conditions = %v, want list and subject", labeled.Conditions)
	}
	if labeled.Actions.AddLabel != "Receipts" || !labeled.Actions.Star {
		t.Errorf("labeled actions = %+v", labeled.Actions)
	}

	for _, r := range converted {
		if err := rules.Validate(r); err != nil {
			t.Errorf("converted rule %q invalid: %v", r.Name, err)
		}
	}
}

func TestToFilterRules_StableIDs(t *testing.T) {
	export, err := Decode(strings.NewReader(sampleExport))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	first, _ := ToFilterRules(export)
	second, _ := ToFilterRules(export)
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("rule %d ID changed between conversions: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
	if first[0].ID == first[1].ID {
		t.Error("distinct filters produced the same ID")
	}
}

func TestSplitTerms(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"A@X.com", []string{"a@x.com"}},
		{"{a b}", []string{"a", "b"}},
		{"a OR b", []string{"a", "b"}},
		{`"quoted@x.com"`, []string{"quoted@x.com"}},
	}
	for _, tt := range tests {
		got := splitTerms(tt.in)
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("splitTerms(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRunnerExportFilters(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stub requires a POSIX shell")
	}
	dir := t.TempDir()
	out := filepath.Join(dir, "out.json")
	if err := os.WriteFile(out, []byte(sampleExport), 0o600); err != nil {
		t.Fatal(err)
	}
	bin := filepath.Join(dir, "gmailctl")
	script := "#!/bin/sh\ncat " + out + "\n"
	if err := os.WriteFile(bin, []byte(script), 0o700); err != nil {
		t.Fatal(err)
	}

	export, err := Runner{Binary: bin}.ExportFilters(context.Background())
	if err != nil {
		t.Fatalf("ExportFilters() error: %v", err)
	}
	if len(export.Filters) != 6 {
		t.Errorf("len(Filters) = %d, want 6", len(export.Filters))
	}

	failing := filepath.Join(dir, "failing")
	if err := os.WriteFile(failing, []byte("#!/bin/sh\necho boom >&2\nexit 1\n"), 0o700); err != nil {
		t.Fatal(err)
	}
	if _, err := (Runner{Binary: failing}).ExportFilters(context.Background()); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("ExportFilters() error = %v, want one mentioning stderr", err)
	}
}
