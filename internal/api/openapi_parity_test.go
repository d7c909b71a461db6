package api

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestOpenAPIContainsImplementedOperationalPaths(t *testing.T) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	repoRoot := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	openAPIPath := filepath.Join(repoRoot, "api", "openapi.yaml")

	content, err := os.ReadFile(openAPIPath)
	if err != nil {
		t.Fatalf("read openapi file error = %v", err)
	}
	var document struct {
		Paths map[string]map[string]any `yaml:"paths"`
	}
	if err := yaml.Unmarshal(content, &document); err != nil {
		t.Fatalf("parse openapi file error = %v", err)
	}

	requiredOperations := map[string]string{
		"/v1/health":        "get",
		"/v1/ready":         "get",
		"/v1/metrics":       "get",
		"/v1/ask":           "post",
		"/v1/schema":        "get",
		"/v1/sessions":      "get",
		"/v1/sessions/{id}": "get",
	}
	for path, method := range requiredOperations {
		operations, ok := document.Paths[path]
		if !ok {
			t.Fatalf("openapi missing path %s", path)
		}
		if _, ok := operations[method]; !ok {
			t.Fatalf("openapi path %s missing %s operation", path, method)
		}
	}
}
