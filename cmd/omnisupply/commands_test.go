package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/vinayprograms/omnisupply/internal/storage"
)

func TestVersionCmd(t *testing.T) {
	var buf bytes.Buffer
	if err := (&VersionCmd{}).Run(&buf); err != nil {
		t.Fatalf("version error: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "omnisupply version "+version) {
		t.Errorf("unexpected version output: %q", buf.String())
	}
}

func TestAgentsCmd_Markdown(t *testing.T) {
	g := &Globals{Config: writeConfig(t, "")}
	var buf bytes.Buffer
	if err := (&AgentsCmd{Format: "markdown"}).Run(g, &buf); err != nil {
		t.Fatalf("agents error: %v", err)
	}
	out := buf.String()
	for _, name := range []string{"## data_analyst", "## risk_agent", "## finance_agent", "## meeting_agent", "## email_agent"} {
		if !strings.Contains(out, name) {
			t.Errorf("missing %s in %q", name, out)
		}
	}
	if !strings.Contains(out, "- Multi-dimensional risk scoring") {
		t.Error("capabilities not listed")
	}
}

func TestAgentsCmd_JSON(t *testing.T) {
	g := &Globals{Config: writeConfig(t, "")}
	var buf bytes.Buffer
	if err := (&AgentsCmd{Format: "json"}).Run(g, &buf); err != nil {
		t.Fatalf("agents error: %v", err)
	}
	var infos []agentInfo
	if err := json.Unmarshal(buf.Bytes(), &infos); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(infos) != 5 || infos[0].Name != "data_analyst" || len(infos[1].Capabilities) == 0 {
		t.Errorf("unexpected agents: %+v", infos)
	}
}

func TestAgentsCmd_BadConfig(t *testing.T) {
	g := &Globals{Config: writeConfig(t, "[supervisor]\ndefault_order = \"random\"\n")}
	var buf bytes.Buffer
	if err := (&AgentsCmd{Format: "markdown"}).Run(g, &buf); err == nil {
		t.Error("expected error for invalid config")
	}
}

func TestInitDBAndHealth(t *testing.T) {
	g := &Globals{Config: writeConfig(t, "")}

	var buf bytes.Buffer
	if err := (&InitDBCmd{Sample: true}).Run(g, &buf); err != nil {
		t.Fatalf("init-db error: %v", err)
	}
	if !strings.Contains(buf.String(), "Sample data loaded") {
		t.Errorf("unexpected init-db output: %q", buf.String())
	}

	buf.Reset()
	if err := (&HealthCmd{}).Run(g, &buf); err != nil {
		t.Fatalf("health error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "TABLE") || !strings.Contains(out, "financial_transactions") {
		t.Errorf("unexpected health output: %q", out)
	}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(strings.ReplaceAll(line, "│", " "))
		if len(fields) == 2 && fields[0] == "orders" && fields[1] == "0" {
			t.Errorf("sample orders missing: %q", out)
		}
	}
}

func TestHealthTable(t *testing.T) {
	out := healthTable(map[string]int{"orders": 12, "inventory": 3}).String()
	lines := strings.Split(out, "\n")
	if len(lines) < len(storage.Tables)+3 {
		t.Fatalf("expected a bordered row per table, got:\n%s", out)
	}
	found := false
	for _, line := range lines {
		fields := strings.Fields(strings.ReplaceAll(line, "│", " "))
		if len(fields) == 2 && fields[0] == "orders" {
			found = fields[1] == "12"
		}
	}
	if !found {
		t.Errorf("orders row missing or wrong:\n%s", out)
	}
	if !strings.Contains(out, "report_archive") {
		t.Errorf("every schema table should be listed:\n%s", out)
	}
}

func TestRunCmd_RequiresModel(t *testing.T) {
	g := &Globals{Config: writeConfig(t, "")}
	var buf bytes.Buffer
	err := (&RunCmd{Query: []string{"What", "is", "our", "risk?"}, Format: "markdown", Quiet: true}).Run(g, &buf)
	if !errors.Is(err, errNoModel) {
		t.Errorf("expected errNoModel, got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("nothing should be written without a model, got %q", buf.String())
	}
}
