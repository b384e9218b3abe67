package runpod

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dental-inference-service/internal/config"
	"dental-inference-service/internal/core/domain"
)

func testClient(serverURL string) *Client {
	return NewClient(&config.RunPodConfig{
		APIKey:       "test-key",
		EndpointID:   "ep-1",
		BaseURL:      serverURL,
		PollTimeout:  200 * time.Millisecond,
		PollInterval: 20 * time.Millisecond,
	})
}

func TestClient_Submit(t *testing.T) {
	var gotPath, gotAuth, gotContentType, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"job-1","status":"IN_QUEUE"}`)
	}))
	defer server.Close()

	client := testClient(server.URL)
	jobID, err := client.Submit(context.Background(), domain.JobInput{
		ImageURL: "https://bucket.nyc3.digitaloceanspaces.com/cases/input/scan.png",
		S3Bucket: "bucket",
		S3Prefix: "cases/",
		Debug:    true,
	})

	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)
	assert.Equal(t, "/ep-1/run", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
	assert.JSONEq(t, `{"input":{
		"image_url":"https://bucket.nyc3.digitaloceanspaces.com/cases/input/scan.png",
		"s3_bucket":"bucket",
		"s3_prefix":"cases/",
		"debug":true
	}}`, gotBody)
}

func TestClient_Submit_NotConfigured(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	client := NewClient(&config.RunPodConfig{BaseURL: server.URL, EndpointID: "ep-1"})
	assert.False(t, client.Configured())

	_, err := client.Submit(context.Background(), domain.JobInput{})

	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "RUNPOD_API_KEY")
	assert.Contains(t, cfgErr.Checked, "RUNPOD_API_KEY")
	assert.Contains(t, cfgErr.Checked, "RUNPOD_ENDPOINT_ID")
	assert.Equal(t, int32(0), calls.Load(), "no request should be made without credentials")
}

func TestClient_Submit_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid api key"}`)
	}))
	defer server.Close()

	_, err := testClient(server.URL).Submit(context.Background(), domain.JobInput{})

	var subErr *domain.SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, "submit", subErr.Op)
	assert.Equal(t, http.StatusUnauthorized, subErr.StatusCode)
	assert.Contains(t, subErr.Body, "invalid api key")
}

func TestClient_Status(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/ep-1/status/job-9", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"id":"job-9","status":"COMPLETED","output":{"num_findings":3}}`)
	}))
	defer server.Close()

	job, err := testClient(server.URL).Status(context.Background(), "job-9")

	require.NoError(t, err)
	assert.Equal(t, "job-9", job.ID)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.JSONEq(t, `{"num_findings":3}`, string(job.Output))
}

func TestClient_Wait_Completes(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := polls.Add(1)
		if n < 3 {
			fmt.Fprint(w, `{"id":"job-2","status":"IN_PROGRESS"}`)
			return
		}
		fmt.Fprint(w, `{"id":"job-2","status":"COMPLETED","output":{"findings":[],"num_findings":0}}`)
	}))
	defer server.Close()

	job, err := testClient(server.URL).Wait(context.Background(), "job-2")

	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.JSONEq(t, `{"findings":[],"num_findings":0}`, string(job.Output))
	assert.Equal(t, int32(3), polls.Load())
}

func TestClient_Wait_Failed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"job-3","status":"FAILED","error":"worker ran out of memory"}`)
	}))
	defer server.Close()

	_, err := testClient(server.URL).Wait(context.Background(), "job-3")

	var jobErr *domain.RemoteJobError
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, "job-3", jobErr.JobID)
	assert.Contains(t, jobErr.Error(), "worker ran out of memory")
}

func TestClient_Wait_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"job-4","status":"IN_PROGRESS"}`)
	}))
	defer server.Close()

	client := NewClient(&config.RunPodConfig{
		APIKey:       "test-key",
		EndpointID:   "ep-1",
		BaseURL:      server.URL,
		PollTimeout:  100 * time.Millisecond,
		PollInterval: 30 * time.Millisecond,
	})

	start := time.Now()
	_, err := client.Wait(context.Background(), "job-4")
	elapsed := time.Since(start)

	var timeoutErr *domain.JobTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "job-4", timeoutErr.JobID)
	// Timeout is noticed after the poll that crosses the deadline, so the
	// total wait lands within one interval past the configured timeout.
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 250*time.Millisecond)
}

func TestClient_Wait_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"job-5","status":"IN_PROGRESS"}`)
	}))
	defer server.Close()

	client := NewClient(&config.RunPodConfig{
		APIKey:       "test-key",
		EndpointID:   "ep-1",
		BaseURL:      server.URL,
		PollTimeout:  10 * time.Second,
		PollInterval: 50 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := client.Wait(ctx, "job-5")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second, "cancellation should interrupt the poll sleep")
}

func TestClient_Wait_TransientStatusErrors(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := polls.Add(1)
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"id":"job-6","status":"COMPLETED","output":{}}`)
	}))
	defer server.Close()

	job, err := testClient(server.URL).Wait(context.Background(), "job-6")

	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, int32(2), polls.Load())
}

func TestClient_Cancel(t *testing.T) {
	var gotPath, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		fmt.Fprint(w, `{"id":"job-7","status":"FAILED"}`)
	}))
	defer server.Close()

	err := testClient(server.URL).Cancel(context.Background(), "job-7")

	require.NoError(t, err)
	assert.Equal(t, "/ep-1/cancel/job-7", gotPath)
	assert.Equal(t, http.MethodPost, gotMethod)
}

func TestClient_Cancel_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"job not found"}`)
	}))
	defer server.Close()

	err := testClient(server.URL).Cancel(context.Background(), "missing")

	var subErr *domain.SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, "cancel", subErr.Op)
	assert.Equal(t, http.StatusNotFound, subErr.StatusCode)
}

func TestJobResponseDecoding(t *testing.T) {
	raw := `{"id":"abc","status":"IN_QUEUE"}`
	var job jobResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &job))
	assert.Equal(t, domain.JobStatusInQueue, job.Status)
	assert.False(t, job.Status.IsTerminal())
	assert.True(t, domain.JobStatusFailed.IsTerminal())
}
