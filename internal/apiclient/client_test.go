package apiclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scan.png")
	require.NoError(t, os.WriteFile(path, []byte("png-bytes"), 0o644))
	return path
}

func TestAnalyze(t *testing.T) {
	var gotPath, gotQuery, gotFile string
	var gotContent []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery

		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		gotFile = header.Filename
		gotContent, _ = io.ReadAll(file)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"completed","num_findings":0}`))
	}))
	defer server.Close()

	client := New(server.URL + "/")
	raw, err := client.Analyze(context.Background(), writeTempImage(t), AnalyzeOptions{
		Mode:    "local",
		Bucket:  "results",
		Prefix:  "patients/jane/",
		Patient: "Jane",
		Debug:   true,
	})

	require.NoError(t, err)
	assert.Equal(t, "/analyze-ortopan", gotPath)
	assert.Contains(t, gotQuery, "mode=local")
	assert.Contains(t, gotQuery, "s3_bucket=results")
	assert.Contains(t, gotQuery, "s3_prefix=patients%2Fjane%2F")
	assert.Contains(t, gotQuery, "patient_name=Jane")
	assert.Contains(t, gotQuery, "debug=true")
	assert.NotContains(t, gotQuery, "wait_for_result")
	assert.Equal(t, "scan.png", gotFile)
	assert.Equal(t, []byte("png-bytes"), gotContent)
	assert.JSONEq(t, `{"status":"completed","num_findings":0}`, string(raw))
}

func TestAnalyze_WaitFlag(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := New(server.URL).Analyze(context.Background(), writeTempImage(t), AnalyzeOptions{
		Mode: "remote",
		Wait: true,
	})

	require.NoError(t, err)
	assert.Contains(t, gotQuery, "wait_for_result=true")
}

func TestAnalyze_MissingImage(t *testing.T) {
	_, err := New("http://127.0.0.1:1").Analyze(context.Background(), "/does/not/exist.png", AnalyzeOptions{})
	require.Error(t, err)
}

func TestAnalyze_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"inference queue is full, try again later"}`))
	}))
	defer server.Close()

	_, err := New(server.URL).Analyze(context.Background(), writeTempImage(t), AnalyzeOptions{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "inference queue is full")
}

func TestJobStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/job-status/rp-9", r.URL.Path)
		_, _ = w.Write([]byte(`{"job_id":"rp-9","status":"IN_PROGRESS"}`))
	}))
	defer server.Close()

	raw, err := New(server.URL).JobStatus(context.Background(), "rp-9")

	require.NoError(t, err)
	assert.JSONEq(t, `{"job_id":"rp-9","status":"IN_PROGRESS"}`, string(raw))
}

func TestJobStatus_ErrorWithoutBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := New(server.URL).JobStatus(context.Background(), "rp-9")

	require.Error(t, err)
	assert.Equal(t, "server returned 500", err.Error())
}

func TestCancelJob(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/job-cancel/rp-9", r.URL.Path)
		_, _ = w.Write([]byte(`{"job_id":"rp-9","status":"cancelled"}`))
	}))
	defer server.Close()

	raw, err := New(server.URL).CancelJob(context.Background(), "rp-9")

	require.NoError(t, err)
	assert.Contains(t, string(raw), "cancelled")
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"healthy","models_loaded":true,"models_available":true}`))
	}))
	defer server.Close()

	raw, err := New(server.URL).Health(context.Background())

	require.NoError(t, err)
	assert.Contains(t, string(raw), "healthy")
}
