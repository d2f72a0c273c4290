package separation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/chenyichao1993/ai-stem-splitter-sub000/model"
	"go.uber.org/zap"
)

const (
	remoteSizeCap = 100 << 20
	retryAttempts = 3
)

// jobStatus is what the remote service reports while a separation runs.
type jobStatus struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
}

// separationAPI is the three-phase protocol the remote service speaks.
// The simulator implements the same set so the orchestration path never
// cares whether the real service is reachable.
type separationAPI interface {
	upload(ctx context.Context, name string, data []byte) (string, error)
	start(ctx context.Context, uploadID, modelName string, stems []string) (string, error)
	status(ctx context.Context, jobID string) (jobStatus, error)
	downloadStem(ctx context.Context, jobID, stemType string) ([]byte, error)
}

// RemoteBackend drives the remote separation service: upload, start,
// poll until terminal, then download each stem. When the upload phase
// exhausts its retries the backend flips permanently into the simulator
// so jobs still complete end to end.
type RemoteBackend struct {
	api      separationAPI
	sim      *simulator
	degraded atomic.Bool

	Model        string
	Stems        []string
	PollInterval time.Duration
	PollAttempts int
	RetryBackoff time.Duration
}

func (b *RemoteBackend) Separate(ctx context.Context, src SourceAudio, report func(progress int)) ([]Stem, error) {
	if len(src.Data) > remoteSizeCap {
		return nil, ErrTooLarge
	}

	api := b.active()

	uploadID, err := withRetry(ctx, b.RetryBackoff, "upload", func() (string, error) {
		return api.upload(ctx, src.Name, src.Data)
	})
	if err != nil {
		if b.degraded.CompareAndSwap(false, true) {
			zap.L().Warn("Separation service unreachable, switching to simulated separation permanently", zap.Error(err))
		}

		api = b.sim

		uploadID, err = api.upload(ctx, src.Name, src.Data)
		if err != nil {
			return nil, err
		}
	}
	report(10)

	jobID, err := withRetry(ctx, b.RetryBackoff, "start", func() (string, error) {
		return api.start(ctx, uploadID, b.Model, b.Stems)
	})
	if err != nil {
		return nil, err
	}
	report(15)

	if err := b.poll(ctx, api, jobID, report); err != nil {
		return nil, err
	}

	stems := b.download(ctx, api, jobID)
	if len(stems) == 0 {
		return nil, ErrDownloadFailed
	}

	report(99)
	return stems, nil
}

func (b *RemoteBackend) active() separationAPI {
	if b.degraded.Load() {
		return b.sim
	}
	return b.api
}

// poll waits for the remote job to reach a terminal status within the
// fixed attempt budget.
func (b *RemoteBackend) poll(ctx context.Context, api separationAPI, jobID string, report func(progress int)) error {
	for attempt := 0; attempt < b.PollAttempts; attempt++ {
		st, err := withRetry(ctx, b.RetryBackoff, "status", func() (jobStatus, error) {
			return api.status(ctx, jobID)
		})
		if err != nil {
			return err
		}

		switch st.Status {
		case model.JobCompleted:
			report(90)
			return nil
		case model.JobFailed:
			return fmt.Errorf("remote separation failed for job %s", jobID)
		}

		// Map the remote 0-100 into the 15-90 band this phase owns.
		report(15 + st.Progress*75/100)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.PollInterval):
		}
	}

	return fmt.Errorf("%w after %d attempts", ErrPollTimeout, b.PollAttempts)
}

// download fetches the finished stems one by one. A single stem failing
// is logged and skipped so the others still make it out.
func (b *RemoteBackend) download(ctx context.Context, api separationAPI, jobID string) []Stem {
	stems := make([]Stem, 0, len(b.Stems))

	for _, t := range b.Stems {
		data, err := withRetry(ctx, b.RetryBackoff, "download "+t, func() ([]byte, error) {
			return api.downloadStem(ctx, jobID, t)
		})
		if err != nil {
			zap.L().Warn("Failed to download stem, skipping",
				zap.String("remote_job_id", jobID),
				zap.String("stem", t),
				zap.Error(err))
			continue
		}

		stems = append(stems, Stem{
			Type:     t,
			Filename: t + ".wav",
			Data:     data,
		})
	}

	return stems
}

// withRetry runs fn up to retryAttempts times with linearly increasing
// backoff between attempts.
func withRetry[T any](ctx context.Context, backoff time.Duration, op string, fn func() (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)

	for attempt := 1; attempt <= retryAttempts; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err

		zap.L().Debug("Separation API call failed",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt == retryAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(time.Duration(attempt) * backoff):
		}
	}

	return zero, fmt.Errorf("%w, %s failed after %d attempts, %v", ErrNetwork, op, retryAttempts, lastErr)
}

// remoteAPI is the real HTTP implementation of separationAPI.
type remoteAPI struct {
	baseURL string
	apiKey  string
	std     *http.Client
	upl     *http.Client // Large timeout, uploads can take a while
}

func newRemoteAPI(baseURL, apiKey string) *remoteAPI {
	return &remoteAPI{
		baseURL: baseURL,
		apiKey:  apiKey,
		std:     &http.Client{Timeout: 30 * time.Second},
		upl:     &http.Client{Timeout: 5 * time.Minute},
	}
}

func (a *remoteAPI) upload(ctx context.Context, name string, data []byte) (string, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("failed to build multipart body, %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return "", fmt.Errorf("failed to build multipart body, %w", err)
	}
	mw.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/upload", body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp struct {
		UploadID string `json:"upload_id"`
	}
	if err := a.do(req, a.upl, &resp); err != nil {
		return "", err
	}

	return resp.UploadID, nil
}

func (a *remoteAPI) start(ctx context.Context, uploadID, modelName string, stems []string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"upload_id": uploadID,
		"model":     modelName,
		"stems":     stems,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/separate", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp struct {
		JobID string `json:"job_id"`
	}
	if err := a.do(req, a.std, &resp); err != nil {
		return "", err
	}

	return resp.JobID, nil
}

func (a *remoteAPI) status(ctx context.Context, jobID string) (jobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v1/jobs/"+jobID, nil)
	if err != nil {
		return jobStatus{}, err
	}

	var st jobStatus
	if err := a.do(req, a.std, &st); err != nil {
		return jobStatus{}, err
	}

	return st, nil
}

func (a *remoteAPI) downloadStem(ctx context.Context, jobID, stemType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v1/jobs/"+jobID+"/stems/"+stemType, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.std.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request, %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("separation API error (status %d)", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// do executes a request and decodes the JSON response into result.
func (a *remoteAPI) do(req *http.Request, client *http.Client, result any) error {
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request, %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response, %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("separation API error (status %d): %s", resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response, %w", err)
	}

	return nil
}
