package config

import (
	"strings"
	"testing"
)

func valid() Config {
	c := Config{
		API:      API{BaseURL: "https://example.gov/api", Key: "k"},
		Storage:  Storage{Kind: "sqlite", DB: DB{Path: "tm.db"}},
		Datasets: []string{"TRTDXFAP"},
	}
	c.applyDefaults()
	return c
}

func findIssue(issues []Issue, path string) (Issue, bool) {
	for _, i := range issues {
		if i.Path == path {
			return i, true
		}
	}
	return Issue{}, false
}

func TestValidateCleanConfig(t *testing.T) {
	if issues := Validate(valid()); HasErrors(issues) {
		t.Fatalf("unexpected errors: %v", issues)
	}
}

func TestValidateMissingBaseURL(t *testing.T) {
	c := valid()
	c.API.BaseURL = "  "
	issues := Validate(c)
	iss, ok := findIssue(issues, "api.base_url")
	if !ok || iss.Severity != SeverityError {
		t.Fatalf("issues = %v", issues)
	}
}

func TestValidateMissingAPIKeyIsWarning(t *testing.T) {
	c := valid()
	c.API.Key = ""
	issues := Validate(c)
	iss, ok := findIssue(issues, "api.api_key")
	if !ok || iss.Severity != SeverityWarning {
		t.Fatalf("issues = %v", issues)
	}
	if HasErrors(issues) {
		t.Errorf("warning treated as error: %v", issues)
	}
}

func TestValidateStorageKinds(t *testing.T) {
	c := valid()
	c.Storage = Storage{Kind: "postgres"}
	if issues := Validate(c); !HasErrors(issues) {
		t.Error("postgres without dsn should error")
	}
	c.Storage = Storage{Kind: "oracle"}
	if issues := Validate(c); !HasErrors(issues) {
		t.Error("unknown kind should error")
	}
	c.Storage = Storage{Kind: "postgres", DB: DB{DSN: "postgresql://h/db"}}
	if issues := Validate(c); HasErrors(issues) {
		t.Errorf("valid postgres flagged: %v", issues)
	}
}

func TestValidateDatasets(t *testing.T) {
	c := valid()
	c.Datasets = []string{"TRTDXFAP", "BOGUS", "trtdxfap"}
	issues := Validate(c)
	if iss, ok := findIssue(issues, "datasets[1]"); !ok || iss.Severity != SeverityError {
		t.Errorf("unknown dataset: %v", issues)
	}
	if iss, ok := findIssue(issues, "datasets[2]"); !ok || iss.Severity != SeverityWarning {
		t.Errorf("duplicate dataset: %v", issues)
	}
}

func TestValidateMetricsBackends(t *testing.T) {
	c := valid()
	c.Metrics = Metrics{Backend: "prometheus"}
	if issues := Validate(c); !HasErrors(issues) {
		t.Error("prometheus without gateway URL should error")
	}
	c.Metrics = Metrics{Backend: "datadog", DogstatsdAddr: "127.0.0.1:8125"}
	if issues := Validate(c); HasErrors(issues) {
		t.Errorf("valid datadog flagged: %v", issues)
	}
}

func TestIssueError(t *testing.T) {
	iss := Issue{Severity: SeverityError, Path: "storage.kind", Message: "bad"}
	if got := iss.Error(); !strings.Contains(got, "storage.kind") || !strings.Contains(got, "bad") {
		t.Errorf("Error() = %q", got)
	}
}
