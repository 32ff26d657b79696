package relay

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultTemplates_Valid(t *testing.T) {
	tpl, err := DefaultTemplates()
	if err != nil {
		t.Fatal(err)
	}
	if tpl.Footer == "" || tpl.LossLabel == "" {
		t.Error("expected footer and loss label")
	}
}

func TestLoadTemplates_Overlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	overlay := "footer: \"Join us\"\nresults:\n  win: \"WINNER\"\n"
	if err := os.WriteFile(path, []byte(overlay), 0o644); err != nil {
		t.Fatal(err)
	}

	tpl, err := LoadTemplates(path)
	if err != nil {
		t.Fatal(err)
	}
	if tpl.Footer != "Join us" || tpl.Results["win"] != "WINNER" {
		t.Errorf("overlay not applied: %q %q", tpl.Footer, tpl.Results["win"])
	}
	if tpl.Results["doji"] == "" || tpl.Signal[VariantClassic] == "" {
		t.Error("keys absent from the overlay should keep their defaults")
	}
}

func TestLoadTemplates_Errors(t *testing.T) {
	if _, err := LoadTemplates(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("results: [oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTemplates(bad); err == nil {
		t.Error("expected parse error")
	}
}

func TestTemplates_Validate(t *testing.T) {
	tpl, err := DefaultTemplates()
	if err != nil {
		t.Fatal(err)
	}
	delete(tpl.Results, "loss_consecutive")
	if err := tpl.Validate(); err == nil {
		t.Error("expected missing result template error")
	}
}
