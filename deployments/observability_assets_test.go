package deployments

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"
)

func TestPrometheusRulesContainExpectedAlerts(t *testing.T) {
	root := repoRoot(t)
	path := filepath.Join(root, "deployments", "observability", "prometheus", "dunefetch_rules.yaml")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read rules file: %v", err)
	}
	text := string(content)

	requiredAlerts := []string{
		"DunefetchExecutionFailed",
		"DunefetchRemoteAuthFailures",
		"DunefetchRemoteServerErrors",
		"DunefetchExecutionWaitHigh",
		"DunefetchExportFailed",
		"DunefetchEmptyResult",
	}
	for _, alertName := range requiredAlerts {
		if !strings.Contains(text, "alert: "+alertName) {
			t.Fatalf("rules missing alert %q", alertName)
		}
	}
}

func TestPrometheusRulesReferenceExportedMetrics(t *testing.T) {
	root := repoRoot(t)
	rules, err := os.ReadFile(filepath.Join(root, "deployments", "observability", "prometheus", "dunefetch_rules.yaml"))
	if err != nil {
		t.Fatalf("read rules file: %v", err)
	}
	metricsSource, err := os.ReadFile(filepath.Join(root, "internal", "observability", "metrics.go"))
	if err != nil {
		t.Fatalf("read metrics source: %v", err)
	}

	defined := map[string]bool{}
	for _, match := range regexp.MustCompile(`Name:\s+"(dunefetch_[a-z_]+)"`).FindAllStringSubmatch(string(metricsSource), -1) {
		defined[match[1]] = true
	}
	if len(defined) == 0 {
		t.Fatal("no metric names found in metrics source")
	}

	referenced := regexp.MustCompile(`dunefetch_[a-z_]+`).FindAllString(string(rules), -1)
	if len(referenced) == 0 {
		t.Fatal("rules reference no dunefetch metrics")
	}
	for _, name := range referenced {
		base := strings.TrimSuffix(strings.TrimSuffix(strings.TrimSuffix(name, "_bucket"), "_sum"), "_count")
		if !defined[base] {
			t.Fatalf("rules reference undefined metric %q", name)
		}
	}
}

func TestPrometheusConfigScrapesPushgatewayWithRules(t *testing.T) {
	root := repoRoot(t)
	path := filepath.Join(root, "deployments", "observability", "prometheus", "prometheus.yaml")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read prometheus config: %v", err)
	}
	text := string(content)

	requiredTokens := []string{
		"job_name: dunefetch-pushgateway",
		"honor_labels: true",
		"pushgateway:9091",
		"dunefetch_rules.yaml",
	}
	for _, token := range requiredTokens {
		if !strings.Contains(text, token) {
			t.Fatalf("prometheus config missing token %q", token)
		}
	}
}

func TestComposeMatchesDefaultObjectStoreCredentials(t *testing.T) {
	root := repoRoot(t)
	content, err := os.ReadFile(filepath.Join(root, "deployments", "docker-compose.yaml"))
	if err != nil {
		t.Fatalf("read compose file: %v", err)
	}
	text := string(content)

	requiredTokens := []string{
		"postgres:",
		"minio:",
		"pushgateway:",
		"MINIO_ROOT_USER: minio",
		"MINIO_ROOT_PASSWORD: miniostorage",
		`"9000:9000"`,
		`"9091:9091"`,
	}
	for _, token := range requiredTokens {
		if !strings.Contains(text, token) {
			t.Fatalf("compose file missing token %q", token)
		}
	}
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), ".."))
}
