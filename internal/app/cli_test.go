package app

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestRegisterFlags(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)

	// Verify all flags are registered
	expectedFlags := []string{
		"transport",
		"host",
		"port",
		"auth-type",
		"auth-basic-username",
		"auth-basic-password",
		"auth-api-keys",
		"repositories-config-file",
		"repositories-data-dir",
		"repositories-scan-on-startup",
		"repositories-lock-timeout",
		"repositories-stats-file",
		"repositories-max-file-size",
		"repositories-page-size",
		"repositories-max-search-hits",
		"repositories-max-parallel-scans",
		"repositories-watch-config",
		"repositories-history-retention",
	}

	for _, name := range expectedFlags {
		if flags.Lookup(name) == nil {
			t.Errorf("Expected flag %q to be registered", name)
		}
	}
}

func TestRegisterFlags_Shorthand(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)

	shorthandFlags := map[string]string{
		"transport":                "t",
		"host":                     "H",
		"port":                     "p",
		"auth-type":                "a",
		"auth-basic-username":      "u",
		"auth-basic-password":      "P",
		"auth-api-keys":            "k",
		"repositories-config-file": "c",
		"repositories-data-dir":    "d",
	}

	for name, shorthand := range shorthandFlags {
		flag := flags.Lookup(name)
		if flag == nil {
			t.Errorf("Flag %q not found", name)
			continue
		}
		if flag.Shorthand != shorthand {
			t.Errorf("Flag %q expected shorthand %q, got %q", name, shorthand, flag.Shorthand)
		}
	}
}

func TestRegisterFlags_SetValues(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)

	err := flags.Parse([]string{
		"--transport", "sse",
		"--host", "localhost",
		"--port", "9090",
		"--auth-type", "basic",
	})
	if err != nil {
		t.Fatalf("Failed to parse flags: %v", err)
	}

	transport, _ := flags.GetString("transport")
	if transport != "sse" {
		t.Errorf("Expected transport 'sse', got '%s'", transport)
	}

	host, _ := flags.GetString("host")
	if host != "localhost" {
		t.Errorf("Expected host 'localhost', got '%s'", host)
	}

	port, _ := flags.GetInt("port")
	if port != 9090 {
		t.Errorf("Expected port 9090, got %d", port)
	}

	authType, _ := flags.GetString("auth-type")
	if authType != "basic" {
		t.Errorf("Expected auth-type 'basic', got '%s'", authType)
	}
}

func TestRegisterFlags_Repositories(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)

	err := flags.Parse([]string{
		"--repositories-data-dir", "/var/relic",
		"--repositories-lock-timeout", "5s",
		"--repositories-max-parallel-scans", "4",
		"--repositories-scan-on-startup",
	})
	if err != nil {
		t.Fatalf("Failed to parse flags: %v", err)
	}

	dataDir, _ := flags.GetString("repositories-data-dir")
	if dataDir != "/var/relic" {
		t.Errorf("Expected data dir '/var/relic', got '%s'", dataDir)
	}

	timeout, _ := flags.GetDuration("repositories-lock-timeout")
	if timeout != 5*time.Second {
		t.Errorf("Expected lock timeout 5s, got %s", timeout)
	}

	parallel, _ := flags.GetInt("repositories-max-parallel-scans")
	if parallel != 4 {
		t.Errorf("Expected 4 parallel scans, got %d", parallel)
	}

	startup, _ := flags.GetBool("repositories-scan-on-startup")
	if !startup {
		t.Error("Expected scan on startup to be set")
	}
}
