package environment_test

import (
	"context"
	"testing"

	"github.com/railwayapp/stevedore/internal/environment"
	"github.com/railwayapp/stevedore/internal/environment/extractors"
	"github.com/railwayapp/stevedore/internal/environment/types"
	"github.com/railwayapp/stevedore/internal/filesystems"
)

func botContext() *filesystems.MemoryFS {
	mfs := filesystems.NewMemoryFS()
	mfs.AddFile("Dockerfile", []byte(`FROM python:3.11-slim
WORKDIR /app
COPY requirements.txt ./
RUN pip install --no-cache-dir -r requirements.txt
COPY . .
ENV PYTHONDONTWRITEBYTECODE=1 PYTHONUNBUFFERED=1
CMD ["python", "main.py"]
`))
	mfs.AddFile("main.py", []byte(`import os

def main():
    # Get the BOT_TOKEN from environment variables
    BOT_TOKEN = os.getenv('BOT_TOKEN')
    admin = os.environ.get("ADMIN_CHAT_ID", "0")
`))
	mfs.AddFile(".env.example", []byte("BOT_TOKEN=\nLOG_LEVEL=info\n"))
	mfs.AddFile("venv/lib/site.py", []byte("os.environ['HIDDEN']\n"))
	mfs.AddFile("tests/test_main.py", []byte("os.getenv('TEST_ONLY')\n"))
	return mfs
}

func TestExtractor_Scan(t *testing.T) {
	results, err := environment.NewExtractor(botContext()).Scan(context.Background(), ".")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	seen := make(map[string]bool)
	for _, r := range results {
		seen[r.VarName] = true
	}
	for _, name := range []string{"BOT_TOKEN", "ADMIN_CHAT_ID", "LOG_LEVEL", "PYTHONUNBUFFERED", "PYTHONDONTWRITEBYTECODE"} {
		if !seen[name] {
			t.Errorf("expected %s to be found", name)
		}
	}
	for _, name := range []string{"HIDDEN", "TEST_ONLY"} {
		if seen[name] {
			t.Errorf("did not expect %s to be found", name)
		}
	}

	for i := 1; i < len(results); i++ {
		if results[i-1].VarName > results[i].VarName {
			t.Fatalf("results not sorted: %s before %s", results[i-1].VarName, results[i].VarName)
		}
	}
}

func TestSummarize(t *testing.T) {
	results, err := environment.NewExtractor(botContext()).Scan(context.Background(), ".")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	s := environment.Summarize(results)
	if s.Baked["PYTHONUNBUFFERED"] != "1" || s.Baked["PYTHONDONTWRITEBYTECODE"] != "1" {
		t.Errorf("unexpected baked variables %v", s.Baked)
	}
	if s.Declared["LOG_LEVEL"] != "info" {
		t.Errorf("unexpected declared variables %v", s.Declared)
	}
	want := []string{"ADMIN_CHAT_ID", "BOT_TOKEN"}
	if len(s.Required) != len(want) || s.Required[0] != want[0] || s.Required[1] != want[1] {
		t.Errorf("expected required %v, got %v", want, s.Required)
	}
}

func TestSummarize_BakedIsNotRequired(t *testing.T) {
	s := environment.Summarize([]types.EnvResult{
		{VarName: "PYTHONUNBUFFERED", Value: "1", Origin: types.OriginBaked},
		{VarName: "PYTHONUNBUFFERED", Origin: types.OriginRequired},
	})
	if len(s.Required) != 0 {
		t.Errorf("expected nothing required, got %v", s.Required)
	}
}

func TestPythonSourceExtractor(t *testing.T) {
	e := extractors.NewPythonSourceExtractor()

	if !e.CanHandle("bot/main.py") || e.CanHandle("test_main.py") || e.CanHandle("main.go") {
		t.Fatal("unexpected CanHandle results")
	}

	results, err := e.Extract(context.Background(), "main.py", []byte(`
token = os.getenv("BOT_TOKEN")  # os.getenv("COMMENTED")
again = os.environ["BOT_TOKEN"]
# os.environ.get("ALSO_COMMENTED")
url = "http://example.com/#frag"; db = environ.get('DATABASE_URL')
`))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %+v", results)
	}
	if results[0].VarName != "BOT_TOKEN" || !results[0].Sensitive || results[0].Origin != types.OriginRequired {
		t.Errorf("unexpected first result %+v", results[0])
	}
	if results[1].VarName != "DATABASE_URL" || results[1].Type != types.EnvTypeDatabase {
		t.Errorf("unexpected second result %+v", results[1])
	}
}

func TestDockerComposeExtractor(t *testing.T) {
	e := extractors.NewDockerComposeExtractor()
	results, err := e.Extract(context.Background(), "compose.yaml", []byte(`services:
  bot:
    build: .
    environment:
      BOT_TOKEN:
      PYTHONUNBUFFERED: "1"
`))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	origins := make(map[string]types.Origin)
	for _, r := range results {
		origins[r.VarName] = r.Origin
	}
	if origins["BOT_TOKEN"] != types.OriginRequired {
		t.Errorf("expected BOT_TOKEN to be required, got %q", origins["BOT_TOKEN"])
	}
	if origins["PYTHONUNBUFFERED"] != types.OriginDeclared {
		t.Errorf("expected PYTHONUNBUFFERED to be declared, got %q", origins["PYTHONUNBUFFERED"])
	}
}

func TestClassifyEnvVar(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		wantType  types.EnvType
		sensitive bool
	}{
		{"BOT_TOKEN", "", types.EnvTypeSecret, true},
		{"PYTHONUNBUFFERED", "1", types.EnvTypeRuntime, false},
		{"DATABASE_URL", "", types.EnvTypeDatabase, true},
		{"DEBUG", "true", types.EnvTypeBoolean, false},
		{"WORKERS", "4", types.EnvTypeNumeric, false},
		{"HOME", "/root", types.EnvTypeUnknown, false},
	}

	for _, tt := range tests {
		gotType, sensitive := types.ClassifyEnvVar(tt.name, tt.value)
		if gotType != tt.wantType || sensitive != tt.sensitive {
			t.Errorf("ClassifyEnvVar(%s) = %s, %v; want %s, %v", tt.name, gotType, sensitive, tt.wantType, tt.sensitive)
		}
	}
}

func TestRedact(t *testing.T) {
	tests := []struct {
		name, value, want string
	}{
		{"BOT_TOKEN", "123456:ABCDEFGHIJ", "12******IJ"},
		{"BOT_TOKEN", "short", "****"},
		{"PYTHONUNBUFFERED", "1", "1"},
		{"BOT_TOKEN", "", ""},
	}
	for _, tt := range tests {
		if got := types.Redact(tt.name, tt.value); got != tt.want {
			t.Errorf("Redact(%s, %q) = %q, want %q", tt.name, tt.value, got, tt.want)
		}
	}
}
