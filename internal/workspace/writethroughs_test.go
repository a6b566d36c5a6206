package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteInstructionsComposesGlobalProjectAndContextFiles(t *testing.T) {
	dir := t.TempDir()
	req := CreateRequest{
		GlobalInstructions:  "Be concise.",
		ProjectInstructions: "This repo uses trunk-based development.",
		ContextFiles:        []string{"README.md", "docs/ARCHITECTURE.md"},
	}
	if err := writeInstructions(req, dir); err != nil {
		t.Fatalf("writeInstructions() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "AGENTS.md"))
	if err != nil {
		t.Fatalf("expected AGENTS.md to be written: %v", err)
	}
	content := string(data)
	for _, want := range []string{"Be concise.", "trunk-based development", "README.md", "docs/ARCHITECTURE.md"} {
		if !strings.Contains(content, want) {
			t.Errorf("AGENTS.md missing %q:\n%s", want, content)
		}
	}
}

func TestWriteInstructionsSkipsFileWhenEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := writeInstructions(CreateRequest{}, dir); err != nil {
		t.Fatalf("writeInstructions() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "AGENTS.md")); !os.IsNotExist(err) {
		t.Errorf("expected no AGENTS.md when nothing to write")
	}
}

func TestWriteInstructionsTruncatesContextFiles(t *testing.T) {
	dir := t.TempDir()
	files := make([]string, 25)
	for i := range files {
		files[i] = filepath.Join("pkg", "file.go")
	}
	req := CreateRequest{ContextFiles: files}
	if err := writeInstructions(req, dir); err != nil {
		t.Fatalf("writeInstructions() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "AGENTS.md"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "5 more not listed") {
		t.Errorf("expected truncation marker, got:\n%s", string(data))
	}
}

func TestWriteHookConfigSkippedWithoutEndpoint(t *testing.T) {
	dir := t.TempDir()
	if err := writeHookConfig(CreateRequest{AgentID: "a1b2c3"}, dir); err != nil {
		t.Fatalf("writeHookConfig() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".claude", "settings.local.json")); !os.IsNotExist(err) {
		t.Errorf("expected no hook config written without an endpoint")
	}
}

func TestWriteHookConfigRegistersSubagentCallbacks(t *testing.T) {
	dir := t.TempDir()
	req := CreateRequest{AgentID: "a1b2c3", HookEndpoint: "http://localhost:8080/api/hooks/event"}
	if err := writeHookConfig(req, dir); err != nil {
		t.Fatalf("writeHookConfig() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, ".claude", "settings.local.json"))
	if err != nil {
		t.Fatalf("expected settings.local.json to be written: %v", err)
	}
	content := string(data)
	for _, want := range []string{"SubagentStart", "SubagentStop", "a1b2c3", "localhost:8080/api/hooks/event"} {
		if !strings.Contains(content, want) {
			t.Errorf("settings.local.json missing %q:\n%s", want, content)
		}
	}
}

func TestCopyCatalogDirsReplicatesFilesRecursively(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "skills", "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "skills", "top.md"), []byte("top"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "skills", "nested", "deep.md"), []byte("deep"), 0o644); err != nil {
		t.Fatal(err)
	}

	dst := t.TempDir()
	if err := copyCatalogDirs([]string{filepath.Join(src, "skills")}, dst); err != nil {
		t.Fatalf("copyCatalogDirs() error = %v", err)
	}

	top, err := os.ReadFile(filepath.Join(dst, "skills", "top.md"))
	if err != nil || string(top) != "top" {
		t.Errorf("top.md not copied correctly: %v, %q", err, top)
	}
	deep, err := os.ReadFile(filepath.Join(dst, "skills", "nested", "deep.md"))
	if err != nil || string(deep) != "deep" {
		t.Errorf("nested/deep.md not copied correctly: %v, %q", err, deep)
	}
}

func TestCopyCatalogDirsIgnoresMissingSource(t *testing.T) {
	dst := t.TempDir()
	if err := copyCatalogDirs([]string{filepath.Join(dst, "does-not-exist")}, dst); err != nil {
		t.Errorf("copyCatalogDirs() should ignore a missing source, got error = %v", err)
	}
}
