package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/itinerary/domain/report"
)

const pipelineYAML = `
name: test-pipeline
version: "1.0"
agent:
  pool_size: 2
  max_itinerary_steps: 20
logging:
  level: error
storage:
  driver: %s
  dir: %s
stations:
  - name: IdPlace
    data_type: UNKNOWN
    service_name: ID
    service_type: ID
    set_form: TEXT
  - name: LowerPlace
    data_type: TEXT
    service_name: LOWER
    service_type: TRANSFORM
    set_form: LOWER_TEXT
  - name: Output
    data_type: LOWER_TEXT
    service_name: OUTPUT
    service_type: IO
    set_form: DONE
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func pipelineConfig(t *testing.T, driver, dir string) string {
	t.Helper()
	content := strings.Replace(pipelineYAML, "%s", driver, 1)
	content = strings.Replace(content, "%s", dir, 1)
	return writeConfig(t, content)
}

func TestApp_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{"version"})
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "itinerary version") {
		t.Errorf("version output missing 'itinerary version', got: %s", output)
	}
}

func TestApp_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{"--help"})
	if err != nil {
		t.Fatalf("help command failed: %v", err)
	}

	output := stdout.String()
	for _, want := range []string{"stations", "run", "validate", "reports"} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q, got: %s", want, output)
		}
	}
}

func TestApp_Validate(t *testing.T) {
	configPath := pipelineConfig(t, "memory", "")

	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{"validate", "-c", configPath})
	if err != nil {
		t.Fatalf("validate command failed: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "valid") {
		t.Errorf("validate output missing 'valid', got: %s", output)
	}
	if !strings.Contains(output, "LowerPlace (TEXT::TRANSFORM)") {
		t.Errorf("validate output missing station summary, got: %s", output)
	}
}

func TestApp_ValidateInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"negative pool", "agent:\n  pool_size: -1\n"},
		{"bad action", "sentinel:\n  default:\n    action: EXPLODE\n"},
		{"unknown field", "agents:\n  pool_size: 1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			app := New().WithOutput(&stdout, &stderr)

			err := app.ExecuteWithArgs(context.Background(), []string{"validate", "-c", writeConfig(t, tt.content)})
			if err == nil {
				t.Error("validate should fail for invalid config")
			}
		})
	}
}

func TestApp_ValidateMissingConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{"validate"})
	if err == nil {
		t.Error("validate should fail without config")
	}
}

func TestApp_Run(t *testing.T) {
	configPath := pipelineConfig(t, "memory", "")
	input := filepath.Join(t.TempDir(), "letter.txt")
	if err := os.WriteFile(input, []byte("Hello"), 0o644); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}

	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{
		"run", "-c", configPath, "--timeout", "10s", "--input", "memo", input,
	})
	if err != nil {
		t.Fatalf("run command failed: %v\nstderr: %s", err, stderr.String())
	}

	output := stdout.String()
	for _, want := range []string{"✓ letter.txt DONE", "✓ memo DONE", "4 stations"} {
		if !strings.Contains(output, want) {
			t.Errorf("run output missing %q, got: %s", want, output)
		}
	}
}

func TestApp_RunBatchJSON(t *testing.T) {
	configPath := pipelineConfig(t, "memory", "")

	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{
		"run", "-c", configPath, "--timeout", "10s", "--batch", "--json",
		"--input", "a=TEXT", "--input", "b=TEXT",
	})
	if err != nil {
		t.Fatalf("run command failed: %v\nstderr: %s", err, stderr.String())
	}

	var reports []report.Report
	if err := json.Unmarshal(stdout.Bytes(), &reports); err != nil {
		t.Fatalf("run output is not JSON: %v\n%s", err, stdout.String())
	}
	if len(reports) != 2 {
		t.Fatalf("len(reports) = %d, want 2", len(reports))
	}
	for _, r := range reports {
		if len(r.Forms) != 1 || r.Forms[0] != "DONE" {
			t.Errorf("%s Forms = %v, want [DONE]", r.ShortName, r.Forms)
		}
		if r.Batch != 2 {
			t.Errorf("%s Batch = %d, want 2", r.ShortName, r.Batch)
		}
	}
}

func TestApp_RunRequiresInput(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{"run", "-c", pipelineConfig(t, "memory", "")})
	if err == nil || !strings.Contains(err.Error(), "nothing to run") {
		t.Errorf("run error = %v, want nothing to run", err)
	}
}

func TestApp_Reports(t *testing.T) {
	configPath := pipelineConfig(t, "badger", filepath.Join(t.TempDir(), "reports"))

	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)
	err := app.ExecuteWithArgs(context.Background(), []string{
		"run", "-c", configPath, "--timeout", "10s", "--input", "invoice-1", "--input", "memo",
	})
	if err != nil {
		t.Fatalf("run command failed: %v\nstderr: %s", err, stderr.String())
	}

	stdout.Reset()
	app = New().WithOutput(&stdout, &stderr)
	err = app.ExecuteWithArgs(context.Background(), []string{"reports", "-c", configPath, "--prefix", "invoice"})
	if err != nil {
		t.Fatalf("reports command failed: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "invoice-1 DONE") {
		t.Errorf("reports output missing invoice-1, got: %s", output)
	}
	if strings.Contains(output, "memo") {
		t.Errorf("reports output should filter memo, got: %s", output)
	}
}

func TestApp_ReportsMemoryStore(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{"reports", "-c", pipelineConfig(t, "memory", "")})
	if err == nil {
		t.Error("reports should fail for a store that keeps nothing")
	}
}

func TestApp_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "itinerary.env")
	if err := os.WriteFile(envPath, []byte("ITINERARY_TEST_POOL=3\n"), 0o644); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("ITINERARY_TEST_POOL") })
	configPath := writeConfig(t, "agent:\n  pool_size: ${ITINERARY_TEST_POOL}\n")

	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{"validate", "-c", configPath, "--env-file", envPath, "--strict"})
	if err != nil {
		t.Fatalf("validate command failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "Pool size: 3") {
		t.Errorf("validate output missing pool size from env file, got: %s", stdout.String())
	}
}
