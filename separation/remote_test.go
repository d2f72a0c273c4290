package separation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chenyichao1993/ai-stem-splitter-sub000/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService implements the remote separation protocol for tests.
type fakeService struct {
	mu          sync.Mutex
	statusCalls int
	// number of status calls before the job reports completed; <0 means never
	completeAfter int
	failStems     map[string]bool
	stemData      []byte
}

func (f *fakeService) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/upload", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, "bad multipart", http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, "no file", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"upload_id": "up-1"})
	})

	mux.HandleFunc("POST /v1/separate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UploadID string   `json:"upload_id"`
			Model    string   `json:"model"`
			Stems    []string `json:"stems"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.UploadID == "" || req.Model == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"job_id": "rj-1"})
	})

	mux.HandleFunc("GET /v1/jobs/rj-1", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.statusCalls++
		calls := f.statusCalls
		f.mu.Unlock()

		st := jobStatus{Status: model.JobProcessing, Progress: min(calls*30, 95)}
		if f.completeAfter >= 0 && calls > f.completeAfter {
			st = jobStatus{Status: model.JobCompleted, Progress: 100}
		}
		json.NewEncoder(w).Encode(st)
	})

	mux.HandleFunc("GET /v1/jobs/rj-1/stems/", func(w http.ResponseWriter, r *http.Request) {
		stem := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		if f.failStems[stem] {
			http.Error(w, "gone", http.StatusInternalServerError)
			return
		}
		w.Write(f.stemData)
	})

	return mux
}

func newTestRemote(baseURL string, stems []string) *RemoteBackend {
	return &RemoteBackend{
		api:          newRemoteAPI(baseURL, "test-key"),
		sim:          newSimulator(),
		Model:        "htdemucs_6s",
		Stems:        stems,
		PollInterval: time.Millisecond,
		PollAttempts: 10,
		RetryBackoff: time.Millisecond,
	}
}

func collectProgress() (func(int), *[]int) {
	var (
		mu sync.Mutex
		ps []int
	)
	return func(p int) {
		mu.Lock()
		ps = append(ps, p)
		mu.Unlock()
	}, &ps
}

func assertMonotonic(t *testing.T, ps []int) {
	t.Helper()
	for i := 1; i < len(ps); i++ {
		assert.GreaterOrEqual(t, ps[i], ps[i-1], "progress went backwards at index %d: %v", i, ps)
	}
}

func TestRemoteSeparateHappyPath(t *testing.T) {
	svc := &fakeService{completeAfter: 2, stemData: []byte("stem-bytes")}
	srv := httptest.NewServer(svc.handler())
	defer srv.Close()

	b := newTestRemote(srv.URL, []string{model.StemVocals, model.StemDrums})
	report, ps := collectProgress()

	stems, err := b.Separate(context.Background(), SourceAudio{Name: "song.wav", Data: []byte("input")}, report)
	require.NoError(t, err)
	require.Len(t, stems, 2)

	assert.Equal(t, model.StemVocals, stems[0].Type)
	assert.Equal(t, "vocals.wav", stems[0].Filename)
	assert.Equal(t, []byte("stem-bytes"), stems[0].Data)
	assertMonotonic(t, *ps)
	assert.False(t, b.degraded.Load())
}

func TestRemoteSeparatePartialStemFailure(t *testing.T) {
	svc := &fakeService{
		completeAfter: 0,
		stemData:      []byte("ok"),
		failStems:     map[string]bool{model.StemDrums: true},
	}
	srv := httptest.NewServer(svc.handler())
	defer srv.Close()

	b := newTestRemote(srv.URL, []string{model.StemVocals, model.StemDrums, model.StemBass})

	stems, err := b.Separate(context.Background(), SourceAudio{Name: "s.wav", Data: []byte("x")}, func(int) {})
	require.NoError(t, err)

	types := make([]string, 0, len(stems))
	for _, s := range stems {
		types = append(types, s.Type)
	}
	assert.ElementsMatch(t, []string{model.StemVocals, model.StemBass}, types)
}

func TestRemoteSeparateAllStemsFailing(t *testing.T) {
	svc := &fakeService{
		completeAfter: 0,
		failStems:     map[string]bool{model.StemVocals: true},
	}
	srv := httptest.NewServer(svc.handler())
	defer srv.Close()

	b := newTestRemote(srv.URL, []string{model.StemVocals})

	_, err := b.Separate(context.Background(), SourceAudio{Name: "s.wav", Data: []byte("x")}, func(int) {})
	assert.ErrorIs(t, err, ErrDownloadFailed)
}

func TestRemoteSeparatePollTimeout(t *testing.T) {
	svc := &fakeService{completeAfter: -1}
	srv := httptest.NewServer(svc.handler())
	defer srv.Close()

	b := newTestRemote(srv.URL, []string{model.StemVocals})
	b.PollAttempts = 3

	_, err := b.Separate(context.Background(), SourceAudio{Name: "s.wav", Data: []byte("x")}, func(int) {})
	assert.ErrorIs(t, err, ErrPollTimeout)
}

func TestRemoteSeparateSizeCap(t *testing.T) {
	b := newTestRemote("http://localhost:1", []string{model.StemVocals})

	_, err := b.Separate(context.Background(), SourceAudio{
		Name: "huge.wav",
		Data: make([]byte, remoteSizeCap+1),
	}, func(int) {})
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestRemoteSeparateFallsBackWhenUnreachable(t *testing.T) {
	// A server that is already closed guarantees connection errors.
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	b := newTestRemote(srv.URL, []string{model.StemVocals, model.StemDrums})
	report, ps := collectProgress()

	stems, err := b.Separate(context.Background(), SourceAudio{Name: "s.wav", Data: []byte("x")}, report)
	require.NoError(t, err)
	require.NotEmpty(t, stems)

	assert.True(t, b.degraded.Load(), "backend should be degraded permanently")
	assertMonotonic(t, *ps)

	for _, s := range stems {
		assert.NotEmpty(t, s.Data)
	}

	// Once degraded, later jobs go straight to the simulator.
	stems, err = b.Separate(context.Background(), SourceAudio{Name: "s2.wav", Data: []byte("y")}, func(int) {})
	require.NoError(t, err)
	assert.NotEmpty(t, stems)
}

func TestWithRetryExhaustion(t *testing.T) {
	calls := 0

	_, err := withRetry(context.Background(), 0, "op", func() (int, error) {
		calls++
		return 0, fmt.Errorf("nope")
	})

	assert.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, retryAttempts, calls)
}

func TestSimulatorStatusMonotonicAndTerminal(t *testing.T) {
	sim := newSimulator()

	jobID, err := sim.start(context.Background(), "up", "m", nil)
	require.NoError(t, err)

	last := -1
	for i := 0; i < 20; i++ {
		st, err := sim.status(context.Background(), jobID)
		require.NoError(t, err)
		require.GreaterOrEqual(t, st.Progress, last)
		last = st.Progress

		if st.Status == model.JobCompleted {
			assert.Equal(t, 100, st.Progress)
			return
		}
	}

	t.Fatal("simulated job never completed")
}

func TestSilenceWAVHeader(t *testing.T) {
	data := silenceWAV(2)

	require.Greater(t, len(data), 44)
	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, "WAVE", string(data[8:12]))
	assert.Equal(t, 44+2*44100*2, len(data))

	for _, b := range data[44:100] {
		assert.Zero(t, b)
	}
}
