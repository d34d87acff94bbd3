package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoreg-cli/internal/config"
	"github.com/xkilldash9x/autoreg-cli/internal/observability"
	"github.com/xkilldash9x/autoreg-cli/internal/provision"
	"github.com/xkilldash9x/autoreg-cli/internal/store"
)

// runCmd executes a fresh command tree inside an empty working directory so
// no stray config.yaml or .env is picked up.
func runCmd(t *testing.T, args ...string) (*app, string, string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Cleanup(observability.ResetForTest)

	rootCmd, a := newRootCmd()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return a, stdout.String(), stderr.String(), err
}

type stubAttempter struct {
	calls  int32
	result provision.Result
}

func (s *stubAttempter) CreateAndConfirmAccount(context.Context) provision.Result {
	atomic.AddInt32(&s.calls, 1)
	return s.result
}

// stubProvisioning swaps the attempter and store factories for the test.
func stubProvisioning(t *testing.T, res provision.Result) (*stubAttempter, *config.Config) {
	t.Helper()
	stub := &stubAttempter{result: res}
	seen := &config.Config{}

	origAttempter, origStore := newAttempter, openStore
	t.Cleanup(func() { newAttempter, openStore = origAttempter, origStore })

	newAttempter = func(cfg *config.Config, _ *zap.Logger, _ provision.Recorder) (provision.Attempter, error) {
		*seen = *cfg
		return stub, nil
	}
	openStore = func(context.Context, config.StoreConfig, *zap.Logger) (store.Repository, error) {
		return nil, nil
	}
	return stub, seen
}

func TestVersion(t *testing.T) {
	_, out, _, err := runCmd(t, "version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)

	_, out, _, err = runCmd(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "autoreg version "+Version+"\n", out)
}

func TestLoadConfiguration(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		a, _, _, err := runCmd(t, "remote", "--help")
		require.NoError(t, err)
		// --help skips the pre-run hooks, so load explicitly.
		require.NoError(t, a.load())
		assert.Equal(t, ":3001", a.cfg.Server.Addr)
		assert.Equal(t, "http://localhost:3001", a.cfg.Remote.BaseURL)
		assert.Equal(t, config.DefaultRegistrationURL, a.cfg.Target.RegistrationURL)
	})

	t.Run("file then environment", func(t *testing.T) {
		dir := t.TempDir()
		cfgPath := filepath.Join(dir, "autoreg.yaml")
		require.NoError(t, os.WriteFile(cfgPath, []byte("server:\n  addr: \":4000\"\nprovision:\n  max_concurrent: 3\n"), 0o600))
		t.Setenv("AUTOREG_PROVISION_MAX_CONCURRENT", "5")

		_, seen := stubProvisioning(t, provision.Succeeded(provision.AccountInfo{Email: "a@b.test", Confirmed: true}))
		_, _, _, err := runCmd(t, "--config", cfgPath, "provision", "--no-store")
		require.NoError(t, err)
		assert.Equal(t, ":4000", seen.Server.Addr)
		assert.Equal(t, 5, seen.Provision.MaxConcurrent)
	})

	t.Run("env file", func(t *testing.T) {
		envPath := filepath.Join(t.TempDir(), "test.env")
		require.NoError(t, os.WriteFile(envPath, []byte("AUTOREG_REMOTE_BASE_URL=http://example.test:9000\n"), 0o600))
		t.Cleanup(func() { _ = os.Unsetenv("AUTOREG_REMOTE_BASE_URL") })

		_, seen := stubProvisioning(t, provision.Succeeded(provision.AccountInfo{Email: "a@b.test"}))
		_, _, _, err := runCmd(t, "--env-file", envPath, "provision", "--no-store")
		require.NoError(t, err)
		assert.Equal(t, "http://example.test:9000", seen.Remote.BaseURL)
	})

	t.Run("invalid file", func(t *testing.T) {
		cfgPath := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(cfgPath, []byte("server: [unclosed"), 0o600))
		_, _, _, err := runCmd(t, "--config", cfgPath, "provision")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error reading config file")
	})
}

func TestProvisionCommand(t *testing.T) {
	t.Run("single success prints one result", func(t *testing.T) {
		stub, seen := stubProvisioning(t, provision.Succeeded(provision.AccountInfo{
			Email: "user@example.test", Username: "user_x", Password: "Pass_y", Confirmed: true,
		}))
		_, out, _, err := runCmd(t, "provision", "--no-store", "--headful", "--url", "https://signup.example.test/register")
		require.NoError(t, err)
		assert.EqualValues(t, 1, stub.calls)
		assert.False(t, seen.Browser.Headless)
		assert.Equal(t, "none", seen.Store.Type)
		assert.Equal(t, "https://signup.example.test/register", seen.Target.RegistrationURL)

		var res provision.Result
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.True(t, res.Success)
		assert.Equal(t, "user@example.test", res.AccountInfo.Email)
		assert.NotEmpty(t, res.AttemptID)
	})

	t.Run("count prints an array and reports failures", func(t *testing.T) {
		stub, _ := stubProvisioning(t, provision.Failed(provision.ErrNoEmail.Error()))
		_, out, _, err := runCmd(t, "provision", "--no-store", "-n", "3")
		require.Error(t, err)
		assert.Equal(t, "3 of 3 provisioning attempts failed", err.Error())
		assert.EqualValues(t, 3, stub.calls)

		var results []provision.Result
		require.NoError(t, json.Unmarshal([]byte(out), &results))
		require.Len(t, results, 3)
		for _, r := range results {
			assert.Equal(t, provision.ErrNoEmail.Error(), r.Error)
		}
	})

	t.Run("bad count", func(t *testing.T) {
		stubProvisioning(t, provision.Result{})
		_, _, _, err := runCmd(t, "provision", "--count", "0")
		require.Error(t, err)
	})
}

func TestRemoteCommands(t *testing.T) {
	var created int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"online"}`))
	})
	mux.HandleFunc("/api/cors-test", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"message":"CORS is configured"}`))
	})
	mux.HandleFunc("/api/create-account", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		atomic.AddInt32(&created, 1)
		_, _ = w.Write([]byte(`{"success":true,"accountInfo":{"email":"remote@example.test","username":"u","password":"p","confirmed":true},"attemptId":"r1"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	t.Run("status", func(t *testing.T) {
		_, out, _, err := runCmd(t, "remote", "status", "--url", srv.URL)
		require.NoError(t, err)
		assert.Contains(t, out, "is online")
		assert.Contains(t, out, "CORS is configured")
	})

	t.Run("create", func(t *testing.T) {
		_, out, errOut, err := runCmd(t, "remote", "create", "--url", srv.URL)
		require.NoError(t, err)
		assert.EqualValues(t, 1, atomic.LoadInt32(&created))
		assert.Contains(t, out, `"remote@example.test"`)
		assert.Contains(t, errOut, "created and confirmed")
	})

	t.Run("offline", func(t *testing.T) {
		_, _, _, err := runCmd(t, "remote", "status", "--url", "http://127.0.0.1:1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "offline")
	})
}
